package push

import (
	"encoding/json"
	"net/http"
	"time"

	"academy-caller/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Handler upgrades browser clients onto the push channel and runs their
// read loop (client pings and call subscriptions).
type Handler struct {
	reg      *Registry
	upgrader websocket.Upgrader
}

func NewHandler(reg *Registry) *Handler {
	return &Handler{
		reg: reg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients are served from arbitrary origins in this
			// deployment; access control is handled upstream.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) Serve(c *gin.Context) {
	log := logger.FromGin(c)

	// Cheap pre-check; Register below still enforces the cap under lock.
	if h.reg.Full() {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "observer capacity reached"})
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "err", err)
		return
	}

	conn := NewConn(uuid.NewString(), ws)
	if err := h.reg.Register(conn); err != nil {
		log.Warn("push register rejected", "err", err)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "capacity"), time.Now().Add(writeTimeout))
		_ = conn.Close()
		return
	}
	log.Debug("push observer connected", "observer_id", conn.ID())

	if data, err := json.Marshal(Event{Type: EventConnected}); err == nil {
		_ = conn.Send(data)
	}

	ws.SetPongHandler(func(string) error {
		h.reg.MarkAlive(conn.ID())
		return nil
	})

	defer func() {
		h.reg.Unregister(conn.ID())
		log.Debug("push observer disconnected", "observer_id", conn.ID())
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		h.handleClientMessage(conn, data)
	}
}

func (h *Handler) handleClientMessage(conn *Conn, data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		// Malformed client frames are ignored; the heartbeat cycle will
		// eventually drop a peer that only sends garbage.
		return
	}

	// Any well-formed message proves the peer is alive.
	conn.MarkAlive()

	switch msg.Type {
	case clientPing:
		if data, err := json.Marshal(Event{Type: EventPong}); err == nil {
			_ = conn.Send(data)
		}
	case clientSubscribe:
		conn.SetFilter(msg.CallID)
	}
}
