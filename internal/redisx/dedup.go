package redisx

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper marks message ids as processed with SETNX. A key expires after TTL, so a
// redelivery older than that is processed again.
type Deduper struct {
	rdb *redis.Client
	TTL time.Duration
}

func NewDeduper(rdb *redis.Client) *Deduper {
	return &Deduper{rdb: rdb, TTL: TTLDedup}
}

func (d *Deduper) MarkProcessed(ctx context.Context, scope, id string) (bool, error) {
	return d.rdb.SetNX(ctx, DedupKey(scope, id), 1, d.TTL).Result()
}

