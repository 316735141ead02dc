package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const publicViewKey = "quiz:view:public"

// SnapshotCache keeps the last assembled public view in redis. A nil cache is valid and
// always misses. Redis failures degrade to a miss; storage stays the source of truth.
type SnapshotCache struct {
	redis *redis.Client
	ttl   time.Duration
	log   *zap.Logger
}

func NewSnapshotCache(client *redis.Client, ttl time.Duration, log *zap.Logger) *SnapshotCache {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &SnapshotCache{redis: client, ttl: ttl, log: log}
}

func (c *SnapshotCache) Set(ctx context.Context, view *PublicView) {
	if c == nil {
		return
	}
	if err := c.store(ctx, view); err != nil {
		c.log.Warn("failed to cache public view", zap.Error(err))
		// Readers fall back to the database until the next successful write.
		c.Invalidate(ctx)
	}
}

func (c *SnapshotCache) store(ctx context.Context, view *PublicView) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to marshal public view: %w", err)
	}
	if err := c.redis.Set(ctx, publicViewKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store in redis: %w", err)
	}
	return nil
}

func (c *SnapshotCache) Get(ctx context.Context) (*PublicView, bool) {
	if c == nil {
		return nil, false
	}

	data, err := c.redis.Get(ctx, publicViewKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("redis error reading public view", zap.Error(err))
		}
		return nil, false
	}

	var view PublicView
	if err := json.Unmarshal(data, &view); err != nil {
		c.log.Warn("failed to unmarshal cached public view", zap.Error(err))
		return nil, false
	}
	return &view, true
}

func (c *SnapshotCache) Invalidate(ctx context.Context) {
	if c == nil {
		return
	}
	if err := c.redis.Del(ctx, publicViewKey).Err(); err != nil {
		c.log.Warn("failed to invalidate public view", zap.Error(err))
	}
}
