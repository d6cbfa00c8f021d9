// Package shipping is the terminal pipeline stage: deliver the purchased artifacts
// and settle the order as DELIVERED or CANCELLED.
package shipping

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Deliverer hands the books' digital artifacts to the user, e.g. by email.
type Deliverer interface {
	Deliver(ctx context.Context, user orders.User, books []orders.Book) error
}

type Coordinator struct {
	store     orders.Store
	deliverer Deliverer
	notifier  orders.Notifier
	log       *zap.Logger
	tracer    trace.Tracer
}

func NewCoordinator(store orders.Store, deliverer Deliverer, notifier orders.Notifier, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		store:     store,
		deliverer: deliverer,
		notifier:  notifier,
		log:       log,
		tracer:    otel.Tracer("bookstore.shipping"),
	}
}

// Ship runs one shipping attempt. The delivery outcome decides the final status;
// stock already reserved for the order is not returned on failure.
func (c *Coordinator) Ship(ctx context.Context, orderID string) error {
	log := c.log.With(zap.String("order_id", orderID))
	ctx, span := c.tracer.Start(ctx, "ship_order", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	var (
		o     orders.Order
		user  orders.User
		books []orders.Book
		// set when the artifacts cannot even be looked up
		lookupErr error
	)
	err := c.store.InTx(ctx, func(tx orders.Tx) error {
		var err error
		if o, err = tx.GetOrder(ctx, orderID); err != nil {
			return err
		}
		if _, err := orders.Next(o.Status, orders.TriggerShip); err != nil {
			return err
		}
		if user, err = tx.GetUser(ctx, o.UserID); err != nil {
			lookupErr = err
			return nil
		}
		for _, id := range o.BookIDs() {
			b, err := tx.GetBook(ctx, id)
			if err != nil {
				lookupErr = err
				return nil
			}
			books = append(books, b)
		}
		return nil
	})
	switch {
	case errors.Is(err, orders.ErrNotFound):
		log.Warn("order not found, shipping skipped")
		return nil
	case errors.Is(err, orders.ErrInvalidTransition):
		log.Info("order not shippable, shipping skipped", zap.String("status", string(o.Status)))
		return nil
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "load order failed")
		return fmt.Errorf("load order %s for shipping: %w", orderID, err)
	}

	deliverErr := lookupErr
	if deliverErr == nil {
		deliverErr = c.deliverer.Deliver(ctx, user, books)
	}
	if deliverErr != nil && !errors.Is(deliverErr, orders.ErrDelivery) {
		deliverErr = fmt.Errorf("%w: %w", orders.ErrDelivery, deliverErr)
	}
	span.SetAttributes(attribute.Bool("shipping.delivered", deliverErr == nil), attribute.Int("shipping.books", len(books)))

	if _, err := c.advance(ctx, log, orderID, orders.TriggerShip); err != nil {
		return ignoreStopped(err)
	}

	final := orders.TriggerDeliver
	if deliverErr != nil {
		final = orders.TriggerFailDelivery
		span.RecordError(deliverErr)
		log.Warn("delivery failed", zap.Error(deliverErr))
	}
	o, err = c.advance(ctx, log, orderID, final)
	if err != nil {
		return ignoreStopped(err)
	}
	if o.Status == orders.StatusDelivered {
		span.SetStatus(codes.Ok, "delivered")
	} else {
		span.SetStatus(codes.Error, "cancelled")
	}
	return nil
}

// advance commits one transition and emits its status event. An order that moved on
// concurrently ends the attempt without error.
func (c *Coordinator) advance(ctx context.Context, log *zap.Logger, orderID string, t orders.Trigger) (orders.Order, error) {
	var o orders.Order
	err := c.store.InTx(ctx, func(tx orders.Tx) error {
		var err error
		o, err = orders.Transition(ctx, tx, orderID, t)
		return err
	})
	if errors.Is(err, orders.ErrInvalidTransition) || errors.Is(err, orders.ErrNotFound) {
		log.Info("order changed during shipping", zap.String("trigger", string(t)), zap.String("status", string(o.Status)))
		return o, errStopped
	}
	if err != nil {
		return o, fmt.Errorf("%s order %s: %w", t, orderID, err)
	}
	log.Info("order "+string(o.Status), zap.String("trigger", string(t)))
	orders.Emit(ctx, c.notifier, log, o)
	return o, nil
}

var errStopped = errors.New("shipping stopped")

func ignoreStopped(err error) error {
	if errors.Is(err, errStopped) {
		return nil
	}
	return err
}
