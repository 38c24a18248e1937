package push

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendBufferSize = 100
	writeTimeout   = 5 * time.Second
)

// Peer is the subset of *websocket.Conn the push layer needs. Tests supply
// fakes; production always passes a gorilla connection.
type Peer interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Conn wraps one observer connection. All writes go through a single writer
// goroutine so concurrent broadcasts never interleave frames.
type Conn struct {
	id   string
	peer Peer

	send  chan []byte
	pings chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	mu           sync.Mutex
	filter       string
	alive        bool
	lastActivity time.Time
}

func NewConn(id string, peer Peer) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		id:           id,
		peer:         peer,
		send:         make(chan []byte, sendBufferSize),
		pings:        make(chan struct{}, 1),
		ctx:          ctx,
		cancel:       cancel,
		alive:        true,
		lastActivity: time.Now(),
	}
	go c.writeLoop()
	return c
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) writeLoop() {
	for {
		select {
		case data := <-c.send:
			if err := c.peer.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				c.Close()
				return
			}
			if err := c.peer.WriteMessage(websocket.TextMessage, data); err != nil {
				c.Close()
				return
			}
		case <-c.pings:
			if err := c.peer.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				c.Close()
				return
			}
			if err := c.peer.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// Send queues a payload for delivery. It never blocks on peer I/O: a full
// buffer or a closed connection is reported as an error so the dispatcher
// can unregister the observer.
func (c *Conn) Send(data []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnClosed
	default:
		return ErrSendBufferFull
	}
}

// Ping requests a websocket ping frame. Coalesces if one is already queued.
func (c *Conn) Ping() {
	select {
	case c.pings <- struct{}{}:
	default:
	}
}

func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		c.cancel()
		err = c.peer.Close()
	})
	return err
}

func (c *Conn) Closed() bool {
	select {
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}

// SetFilter restricts delivery to events scoped to callID. An empty callID
// clears the filter.
func (c *Conn) SetFilter(callID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter = callID
	c.lastActivity = time.Now()
}

func (c *Conn) Filter() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// wants implements the delivery rule: unfiltered observers see everything,
// filtered observers see their call plus unscoped events.
func (c *Conn) wants(scopeCallID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter == "" || scopeCallID == "" || c.filter == scopeCallID
}

// MarkAlive records proof of liveness (pong, client ping, any activity).
func (c *Conn) MarkAlive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alive = true
	c.lastActivity = time.Now()
}

// sweep is the two-phase liveness check: the first cycle that finds a
// connection unproven clears the flag and pings it; only a second
// consecutive cycle without proof reports it dead.
func (c *Conn) sweep() (dead bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.alive {
		return true
	}
	c.alive = false
	return false
}
