package orders

import (
	"context"

	"go.uber.org/zap"
)

// Emit pushes the committed status of o to its owner. Failures are logged only.
func Emit(ctx context.Context, n Notifier, log *zap.Logger, o Order) {
	if n == nil {
		return
	}
	if err := n.NotifyUser(ctx, o.UserID, NewStatusEvent(o)); err != nil && log != nil {
		log.Warn("status notification failed",
			zap.String("order_id", o.ID),
			zap.String("status", string(o.Status)),
			zap.Error(err),
		)
	}
}
