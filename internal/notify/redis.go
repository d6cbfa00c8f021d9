// Package notify implements the real-time observer channel for order status events.
package notify

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"github.com/ariefcatur/go-bookstore-orders/internal/queue"
	"github.com/ariefcatur/go-bookstore-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// Redis publishes status events on a per-user pub/sub channel and broadcasts on the
// global one. Subscribers that are not connected miss the message.
type Redis struct {
	rdb *redis.Client
}

func NewRedis(rdb *redis.Client) *Redis { return &Redis{rdb: rdb} }

func (r *Redis) NotifyUser(ctx context.Context, userID string, ev orders.StatusEvent) error {
	b, err := queue.Marshal(ev)
	if err != nil {
		return err
	}
	if err := r.rdb.Publish(ctx, redisx.UserChannel(userID), b).Err(); err != nil {
		return fmt.Errorf("publish status for user %s: %w", userID, err)
	}
	return nil
}

func (r *Redis) NotifyAll(ctx context.Context, b orders.Broadcast) error {
	body, err := queue.Marshal(b)
	if err != nil {
		return err
	}
	if err := r.rdb.Publish(ctx, redisx.ChannelGlobal, body).Err(); err != nil {
		return fmt.Errorf("publish broadcast: %w", err)
	}
	return nil
}
