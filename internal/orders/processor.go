package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-bookstore-orders/internal/queue"
	"go.uber.org/zap"
)

// Processor consumes order_submitted: PENDING -> PROCESSING, then forwards the order
// to inventory_reservation.
type Processor struct {
	store    Store
	channel  Publisher
	notifier Notifier
	log      *zap.Logger
}

func NewProcessor(store Store, channel Publisher, notifier Notifier, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{store: store, channel: channel, notifier: notifier, log: log}
}

// Handle dipasang sebagai handler consumer order_submitted.
func (p *Processor) Handle(ctx context.Context, m queue.Message) error {
	msg, err := queue.Decode[OrderMessage](m.Body)
	if err != nil {
		return err
	}
	log := p.log.With(zap.String("order_id", msg.OrderID))

	var o Order
	err = p.store.InTx(ctx, func(tx Tx) error {
		var err error
		o, err = Transition(ctx, tx, msg.OrderID, TriggerProcess)
		return err
	})
	switch {
	case errors.Is(err, ErrNotFound):
		log.Warn("order not found, message dropped")
		return nil
	case errors.Is(err, ErrInvalidTransition):
		log.Info("order not pending, message dropped", zap.String("status", string(o.Status)))
		return nil
	case err != nil:
		return fmt.Errorf("process order %s: %w", msg.OrderID, err)
	}
	log.Info("order processing")
	Emit(ctx, p.notifier, log, o)

	items := msg.Items
	if len(items) == 0 {
		items = o.Items
	}
	out, err := queue.NewMessage(MessageReservationRequested, PartitionKey(o.ID), OrderMessage{OrderID: o.ID, Items: items})
	if err != nil {
		return err
	}
	queue.Inject(ctx, &out)
	if err := p.channel.Publish(ctx, QueueInventoryReservation, out); err != nil {
		return fmt.Errorf("publish reservation request for order %s: %w", o.ID, err)
	}
	return nil
}
