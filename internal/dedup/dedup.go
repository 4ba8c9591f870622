// Package dedup claims idempotency keys so a trigger fires at most once per
// key across scheduler runs and API instances.
package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Claimer hands out each key once until its TTL expires.
type Claimer interface {
	// Claim returns true the first time key is seen within ttl.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release gives up a claim so a later caller can take the key again.
	Release(ctx context.Context, key string) error
}

// --------------------------------------------------------------------------
// Redis
// --------------------------------------------------------------------------

// RedisClaimer uses SET NX. If Redis is unreachable it fails open: the
// claim succeeds and the database unique index on dedup_key is the backstop.
type RedisClaimer struct {
	rdb    *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisClaimer wraps an existing client.
func NewRedisClaimer(rdb *redis.Client, logger *zap.Logger) *RedisClaimer {
	return &RedisClaimer{rdb: rdb, prefix: "pcos:dedup:", logger: logger}
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func (c *RedisClaimer) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, c.prefix+key, 1, ttl).Result()
	if err != nil {
		c.logger.Warn("Redis dedup check failed, allowing",
			zap.String("key", key),
			zap.Error(err),
		)
		return true, nil
	}
	if !ok {
		c.logger.Debug("Skipped duplicate trigger", zap.String("key", key))
	}
	return ok, nil
}

// Release deletes the key. Errors are logged and returned; the caller
// decides whether a stuck claim matters.
func (c *RedisClaimer) Release(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, c.prefix+key).Err(); err != nil {
		c.logger.Warn("Redis dedup release failed",
			zap.String("key", key),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// --------------------------------------------------------------------------
// In-memory
// --------------------------------------------------------------------------

// MemoryClaimer is a process-local Claimer for single-instance deployments
// and tests.
type MemoryClaimer struct {
	mu   sync.Mutex
	keys map[string]time.Time
	now  func() time.Time
}

// NewMemoryClaimer returns an empty MemoryClaimer.
func NewMemoryClaimer() *MemoryClaimer {
	return &MemoryClaimer{keys: make(map[string]time.Time), now: time.Now}
}

func (c *MemoryClaimer) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if exp, ok := c.keys[key]; ok && now.Before(exp) {
		return false, nil
	}
	c.keys[key] = now.Add(ttl)

	// Opportunistic sweep so the map does not grow without bound.
	if len(c.keys) > 10000 {
		for k, exp := range c.keys {
			if !now.Before(exp) {
				delete(c.keys, k)
			}
		}
	}
	return true, nil
}

func (c *MemoryClaimer) Release(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.keys, key)
	return nil
}
