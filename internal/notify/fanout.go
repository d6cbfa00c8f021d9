package notify

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
)

// Fanout forwards every event to all notifiers and joins their errors.
type Fanout []orders.Notifier

func (f Fanout) NotifyUser(ctx context.Context, userID string, ev orders.StatusEvent) error {
	var errs []error
	for _, n := range f {
		errs = append(errs, n.NotifyUser(ctx, userID, ev))
	}
	return errors.Join(errs...)
}

func (f Fanout) NotifyAll(ctx context.Context, b orders.Broadcast) error {
	var errs []error
	for _, n := range f {
		errs = append(errs, n.NotifyAll(ctx, b))
	}
	return errors.Join(errs...)
}
