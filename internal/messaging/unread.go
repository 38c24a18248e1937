package messaging

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// UnreadCounter tracks per-conversation unread inbound message counts.
// Counters are advisory UI state; losing them is harmless, so they live in
// Redis rather than the durable log.
type UnreadCounter interface {
	Increment(ctx context.Context, counterparty string) error
	Reset(ctx context.Context, counterparty string) error
	Get(ctx context.Context, counterparty string) (int, error)
}

const unreadKeyPrefix = "sms:unread:"

// RedisUnreadCounter keeps unread counts in Redis so they survive process
// restarts and are shared across instances.
type RedisUnreadCounter struct {
	rdb *redis.Client
}

func NewRedisUnreadCounter(rdb *redis.Client) *RedisUnreadCounter {
	return &RedisUnreadCounter{rdb: rdb}
}

func (c *RedisUnreadCounter) Increment(ctx context.Context, counterparty string) error {
	return c.rdb.Incr(ctx, unreadKeyPrefix+counterparty).Err()
}

func (c *RedisUnreadCounter) Reset(ctx context.Context, counterparty string) error {
	return c.rdb.Del(ctx, unreadKeyPrefix+counterparty).Err()
}

func (c *RedisUnreadCounter) Get(ctx context.Context, counterparty string) (int, error) {
	n, err := c.rdb.Get(ctx, unreadKeyPrefix+counterparty).Int()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

// MemoryUnreadCounter is the in-process fallback used in tests and when
// Redis is not configured.
type MemoryUnreadCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewMemoryUnreadCounter() *MemoryUnreadCounter {
	return &MemoryUnreadCounter{counts: make(map[string]int)}
}

func (c *MemoryUnreadCounter) Increment(ctx context.Context, counterparty string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[counterparty]++
	return nil
}

func (c *MemoryUnreadCounter) Reset(ctx context.Context, counterparty string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, counterparty)
	return nil
}

func (c *MemoryUnreadCounter) Get(ctx context.Context, counterparty string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[counterparty], nil
}
