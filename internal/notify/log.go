package notify

import (
	"context"

	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"go.uber.org/zap"
)

// Log writes every event to the logger. It is the notifier when NOTIFY_DRIVER=log.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log { return &Log{log: log} }

func (l *Log) NotifyUser(ctx context.Context, userID string, ev orders.StatusEvent) error {
	l.log.Info("order status update",
		zap.String("user_id", userID),
		zap.String("order_id", ev.OrderID),
		zap.String("status", string(ev.Status)),
	)
	return nil
}

func (l *Log) NotifyAll(ctx context.Context, b orders.Broadcast) error {
	l.log.Info("global notification", zap.String("message", b.Message))
	return nil
}
