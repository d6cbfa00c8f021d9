package delivery

import (
	"context"

	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"go.uber.org/zap"
)

// Log only records what would have been sent. Used when no SMTP host is configured.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log { return &Log{log: log} }

func (l *Log) Deliver(ctx context.Context, user orders.User, books []orders.Book) error {
	l.log.Info("delivery skipped, no smtp configured",
		zap.String("user_id", user.ID),
		zap.String("email", user.Email),
		zap.String("subject", Subject(books)),
	)
	return nil
}
