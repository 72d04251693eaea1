package recommender

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/linemk/datashop/internal/domain/models"
)

// Cached хранит ответы сервиса рекомендаций в redis.
// Пустые списки не кешируются, чтобы отказ сервиса не закреплялся на ttl.
type Cached struct {
	log  *slog.Logger
	next Provider
	rdb  *redis.Client
	ttl  time.Duration
}

var _ Provider = (*Cached)(nil)

func NewCached(log *slog.Logger, next Provider, rdb *redis.Client, ttl time.Duration) *Cached {
	return &Cached{log: log, next: next, rdb: rdb, ttl: ttl}
}

func (c *Cached) Related(ctx context.Context, productID int64) []models.Recommendation {
	return c.load(ctx, cacheKey(KindRelated, productID), func() []models.Recommendation {
		return c.next.Related(ctx, productID)
	})
}

func (c *Cached) ForUser(ctx context.Context, userID int64) []models.Recommendation {
	return c.load(ctx, cacheKey(KindUser, userID), func() []models.Recommendation {
		return c.next.ForUser(ctx, userID)
	})
}

func (c *Cached) Popular(ctx context.Context) []models.Recommendation {
	return c.load(ctx, "recs:popular:all", func() []models.Recommendation {
		return c.next.Popular(ctx)
	})
}

func (c *Cached) load(ctx context.Context, key string, fetch func() []models.Recommendation) []models.Recommendation {
	const op = "recommender.Cached.load"
	logger := c.log.With(slog.String("op", op), slog.String("key", key))

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var recs []models.Recommendation
		if err := json.Unmarshal(raw, &recs); err == nil {
			return recs
		}
		logger.Warn("broken cache entry, refetching")
	case errors.Is(err, redis.Nil):
	default:
		logger.Warn("cache read failed", slog.Any("error", err))
	}

	recs := fetch()
	if len(recs) == 0 {
		return recs
	}

	data, err := json.Marshal(recs)
	if err != nil {
		logger.Warn("failed to encode recommendations", slog.Any("error", err))
		return recs
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		logger.Warn("cache write failed", slog.Any("error", err))
	}
	return recs
}

func cacheKey(kind string, id int64) string {
	return fmt.Sprintf("recs:%s:%d", kind, id)
}
