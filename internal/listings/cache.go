// Package listings caches appointment listing pages in Redis.
package listings

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/museumbook/internal/bulk"
	"github.com/wolfman30/museumbook/internal/museumapi"
	"github.com/wolfman30/museumbook/pkg/logging"
)

const (
	defaultTTL    = 2 * time.Minute
	keyPrefix     = "museumbook:appointments"
	generationKey = keyPrefix + ":generation"
)

// Scope separates the caller's own listing from the admin-wide one.
type Scope string

const (
	ScopeOwn   Scope = "own"
	ScopeAdmin Scope = "admin"
)

// Cache stores listing pages under a generation number. Invalidate bumps the
// generation so every earlier page becomes unreachable and ages out by TTL.
type Cache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

func NewCache(redisClient *redis.Client, ttl time.Duration, logger *logging.Logger) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Cache{redis: redisClient, ttl: ttl, logger: logger}
}

func (c *Cache) generation(ctx context.Context) (int64, error) {
	gen, err := c.redis.Get(ctx, generationKey).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("listings: get generation: %w", err)
	}
	return gen, nil
}

func (c *Cache) key(gen int64, scope Scope, owner string, q museumapi.AppointmentQuery) string {
	return fmt.Sprintf("%s:v%d:%s:%s:%s", keyPrefix, gen, scope, owner, q.Values().Encode())
}

// Get returns a cached page. The bool is false on a miss.
func (c *Cache) Get(ctx context.Context, scope Scope, owner string, q museumapi.AppointmentQuery) (*museumapi.AppointmentPage, bool, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return nil, false, err
	}
	data, err := c.redis.Get(ctx, c.key(gen, scope, owner, q)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("listings: get page: %w", err)
	}
	var page museumapi.AppointmentPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, false, fmt.Errorf("listings: unmarshal page: %w", err)
	}
	return &page, true, nil
}

func (c *Cache) Put(ctx context.Context, scope Scope, owner string, q museumapi.AppointmentQuery, page *museumapi.AppointmentPage) error {
	gen, err := c.generation(ctx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("listings: marshal page: %w", err)
	}
	if err := c.redis.Set(ctx, c.key(gen, scope, owner, q), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("listings: set page: %w", err)
	}
	return nil
}

// Invalidate makes every cached page stale.
func (c *Cache) Invalidate(ctx context.Context) error {
	if err := c.redis.Incr(ctx, generationKey).Err(); err != nil {
		return fmt.Errorf("listings: bump generation: %w", err)
	}
	return nil
}

// AfterBatch is a bulk.CompleteFunc that invalidates the cache when a batch
// created at least one appointment.
func (c *Cache) AfterBatch(ctx context.Context, result *bulk.Result) {
	if result == nil || result.Succeeded() == 0 {
		return
	}
	if err := c.Invalidate(ctx); err != nil {
		c.logger.Warn("listing cache invalidation failed", "batch_id", result.BatchID, "error", err)
		return
	}
	c.logger.Debug("listing cache invalidated", "batch_id", result.BatchID)
}
