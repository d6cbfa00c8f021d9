package inventory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"github.com/ariefcatur/go-bookstore-orders/internal/queue"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Launcher starts shipping for a reserved order without blocking the caller.
type Launcher interface {
	Launch(orderID string)
}

var errOrderMissing = errors.New("order missing")

// Manager consumes inventory_reservation. It is the only pipeline component that
// changes book stock.
type Manager struct {
	store    orders.Store
	notifier orders.Notifier
	shipper  Launcher
	log      *zap.Logger
	tracer   trace.Tracer
}

func NewManager(store orders.Store, notifier orders.Notifier, shipper Launcher, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		store:    store,
		notifier: notifier,
		shipper:  shipper,
		log:      log,
		tracer:   otel.Tracer("bookstore.inventory"),
	}
}

// Handle dipasang sebagai handler consumer inventory_reservation.
func (m *Manager) Handle(ctx context.Context, msg queue.Message) error {
	req, err := queue.Decode[orders.OrderMessage](msg.Body)
	if err != nil {
		return err
	}
	log := m.log.With(zap.String("order_id", req.OrderID))

	ctx, span := m.tracer.Start(ctx, "inventory_reserve", trace.WithAttributes(
		attribute.String("order.id", req.OrderID),
		attribute.Int("order.items", len(req.Items)),
	))
	defer span.End()

	o, err := m.Reserve(ctx, req)
	switch {
	case err == nil:
		span.SetAttributes(attribute.String("inventory.status", "reserved"))
		span.SetStatus(codes.Ok, "inventory reserved")
		log.Info("inventory reserved")
		orders.Emit(ctx, m.notifier, log, o)
		if m.shipper != nil {
			m.shipper.Launch(o.ID)
		}
		return nil
	case errors.Is(err, errOrderMissing):
		log.Warn("order not found, message dropped")
		return nil
	case errors.Is(err, orders.ErrInvalidTransition):
		log.Info("order no longer reservable, message dropped", zap.String("status", string(o.Status)))
		return nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "reservation failed")
	span.SetAttributes(attribute.String("inventory.status", "rejected"))
	var se *orders.StockError
	if errors.As(err, &se) {
		log.Warn("insufficient stock, cancelling order",
			zap.String("book_id", se.BookID),
			zap.Int("requested", se.Requested),
			zap.Int("available", se.Available),
		)
	} else {
		log.Warn("reservation failed, cancelling order", zap.Error(err))
	}
	return m.reject(ctx, log, req.OrderID, err)
}

// Reserve checks every line item against stock and, only if all of them fit, deducts
// the whole order and re-asserts PROCESSING in the same transaction.
func (m *Manager) Reserve(ctx context.Context, req orders.OrderMessage) (orders.Order, error) {
	var o orders.Order
	err := m.store.InTx(ctx, func(tx orders.Tx) error {
		var err error
		o, err = tx.GetOrder(ctx, req.OrderID)
		if errors.Is(err, orders.ErrNotFound) {
			return fmt.Errorf("%w: %w", errOrderMissing, err)
		}
		if err != nil {
			return err
		}
		next, err := orders.Next(o.Status, orders.TriggerReserve)
		if err != nil {
			return err
		}

		items := req.Items
		if len(items) == 0 {
			items = o.Items
		}
		demand, err := Aggregate(items)
		if err != nil {
			return err
		}

		// validation pass: no writes until every book is known to cover its demand
		books := make(map[string]orders.Book, len(demand))
		for _, d := range demand {
			if d.Quantity == 0 {
				continue
			}
			b, err := tx.GetBook(ctx, d.BookID)
			if err != nil {
				return err
			}
			if b.Stock < d.Quantity {
				return &orders.StockError{BookID: b.ID, Requested: d.Quantity, Available: b.Stock}
			}
			books[d.BookID] = b
		}

		// deduction pass
		for _, d := range demand {
			b, ok := books[d.BookID]
			if !ok {
				continue
			}
			if err := tx.UpdateBookStock(ctx, b.ID, b.Stock-d.Quantity); err != nil {
				return err
			}
		}

		if err := tx.UpdateOrderStatus(ctx, o.ID, next); err != nil {
			return err
		}
		o.Status = next
		return nil
	})
	return o, err
}

func (m *Manager) reject(ctx context.Context, log *zap.Logger, orderID string, cause error) error {
	var o orders.Order
	err := m.store.InTx(ctx, func(tx orders.Tx) error {
		var err error
		o, err = orders.Transition(ctx, tx, orderID, orders.TriggerReject)
		return err
	})
	switch {
	case errors.Is(err, orders.ErrNotFound):
		log.Warn("order vanished before cancellation")
		return nil
	case errors.Is(err, orders.ErrInvalidTransition):
		log.Info("order already settled, not cancelled", zap.String("status", string(o.Status)))
		return nil
	case err != nil:
		return fmt.Errorf("cancel order %s after %v: %w", orderID, cause, err)
	}
	log.Info("order cancelled", zap.String("reason", reason(cause)))
	orders.Emit(ctx, m.notifier, log, o)
	return nil
}

// Aggregate sums the demand per book so duplicate line items are checked against
// stock together. The result is sorted by book id, which is also the lock order.
func Aggregate(items []orders.Item) ([]orders.Item, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: order has no items", orders.ErrValidation)
	}
	sum := make(map[string]int, len(items))
	for i, it := range items {
		if it.BookID == "" {
			return nil, fmt.Errorf("%w: items[%d] has no book_id", orders.ErrValidation, i)
		}
		if it.Quantity < 0 {
			return nil, fmt.Errorf("%w: items[%d] has negative quantity %d", orders.ErrValidation, i, it.Quantity)
		}
		if sum[it.BookID] > math.MaxInt-it.Quantity {
			return nil, fmt.Errorf("%w: demand for book %s overflows", orders.ErrValidation, it.BookID)
		}
		sum[it.BookID] += it.Quantity
	}
	out := make([]orders.Item, 0, len(sum))
	for id, q := range sum {
		out = append(out, orders.Item{BookID: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookID < out[j].BookID })
	return out, nil
}

func reason(err error) string {
	switch {
	case errors.Is(err, orders.ErrInsufficientStock):
		return "OUT_OF_STOCK"
	case errors.Is(err, orders.ErrNotFound):
		return "BOOK_NOT_FOUND"
	case errors.Is(err, orders.ErrValidation):
		return "INVALID_ITEMS"
	default:
		return "PERSISTENCE_ERROR"
	}
}
