package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper suppresses duplicate processing of redelivered events.
type Deduper struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewDeduper(rdb *redis.Client, ttl time.Duration) *Deduper {
	return &Deduper{rdb: rdb, ttl: ttl}
}

// AcquireOnce tries to acquire a dedup lock for a given handler + userID.
// Returns true if this is the FIRST time processing, false on a
// duplicate. If redis is unavailable, processing is not blocked; the
// handlers behind it are idempotent anyway.
func (d *Deduper) AcquireOnce(ctx context.Context, handler string, userID int) bool {
	key := fmt.Sprintf("dedup:%s:%d", handler, userID)

	ok, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		return true
	}
	return ok
}
