package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"habittrack/internal/model"
)

const dayCacheTTL = 5 * time.Minute

// invalidateRangeLimit bounds the per-key invalidation loop; a write
// further back than this wipes the user's whole cache instead.
const invalidateRangeLimit = 31

// ViewCache caches assembled day views. Implementations must tolerate
// the backing store being down; a cache failure degrades to a store
// read, never to an error.
//
// Invalidation granularity matters: recomputation shifts the streaks of
// every date after the edited one, so writers invalidate a date range,
// and the maintenance paths, which touch a user's whole history, drop
// everything the user has cached.
type ViewCache interface {
	GetDay(ctx context.Context, userID int, day time.Time) ([]model.Progress, bool)
	SetDay(ctx context.Context, userID int, day time.Time, records []model.Progress)
	InvalidateRange(ctx context.Context, userID int, from, to time.Time)
	InvalidateUser(ctx context.Context, userID int)
}

type RedisViewCache struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewRedisViewCache(rdb *redis.Client, logger *zap.Logger) *RedisViewCache {
	return &RedisViewCache{
		rdb:    rdb,
		logger: logger,
	}
}

func dayCacheKey(userID int, day time.Time) string {
	return fmt.Sprintf("progress:day:%d:%s", userID, day.Format("2006-01-02"))
}

func (c *RedisViewCache) GetDay(ctx context.Context, userID int, day time.Time) ([]model.Progress, bool) {
	raw, err := c.rdb.Get(ctx, dayCacheKey(userID, day)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("Day view cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var records []model.Progress
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, false
	}
	return records, true
}

func (c *RedisViewCache) SetDay(ctx context.Context, userID int, day time.Time, records []model.Progress) {
	raw, err := json.Marshal(records)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, dayCacheKey(userID, day), raw, dayCacheTTL).Err(); err != nil {
		c.logger.Warn("Day view cache write failed", zap.Error(err))
	}
}

// InvalidateRange drops the cached views for every date in [from, to].
func (c *RedisViewCache) InvalidateRange(ctx context.Context, userID int, from, to time.Time) {
	from, to = dateOnly(from), dateOnly(to)
	if to.Before(from) {
		return
	}
	if int(to.Sub(from).Hours()/24) >= invalidateRangeLimit {
		c.InvalidateUser(ctx, userID)
		return
	}

	var keys []string
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		keys = append(keys, dayCacheKey(userID, day))
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("Day view cache invalidation failed",
			zap.Int("user_id", userID),
			zap.Error(err),
		)
	}
}

// InvalidateUser drops every cached day view of one user.
func (c *RedisViewCache) InvalidateUser(ctx context.Context, userID int) {
	pattern := fmt.Sprintf("progress:day:%d:*", userID)

	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.logger.Warn("Day view cache scan failed",
				zap.Int("user_id", userID),
				zap.Error(err),
			)
			return
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				c.logger.Warn("Day view cache invalidation failed",
					zap.Int("user_id", userID),
					zap.Error(err),
				)
				return
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}
