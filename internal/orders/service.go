package orders

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/ariefcatur/go-bookstore-orders/internal/queue"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Publisher is the producing half of a queue.Channel.
type Publisher interface {
	Publish(ctx context.Context, queue string, m queue.Message) error
}

// Service is the synchronous surface of the pipeline: intake, status queries and
// cancellation, plus the catalogue reads the API needs.
type Service struct {
	store    Store
	channel  Publisher
	notifier Notifier
	log      *zap.Logger
}

func NewService(store Store, channel Publisher, notifier Notifier, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, channel: channel, notifier: notifier, log: log}
}

// MaxQuantity bounds one line item; it matches the INTEGER stock column.
const MaxQuantity = math.MaxInt32

type PlaceOrderInput struct {
	UserID     string
	Items      []Item
	ExternalID string // optional idempotency key
}

func (in PlaceOrderInput) validate() error {
	if strings.TrimSpace(in.UserID) == "" {
		return validationf("user_id is required")
	}
	if len(in.Items) == 0 {
		return validationf("items must not be empty")
	}
	for i, it := range in.Items {
		if strings.TrimSpace(it.BookID) == "" {
			return validationf("items[%d].book_id is required", i)
		}
		if it.Quantity <= 0 || it.Quantity > MaxQuantity {
			return validationf("items[%d].quantity must be between 1 and %d", i, MaxQuantity)
		}
	}
	return nil
}

// PlaceOrder persists a PENDING order, hands it to the order_submitted queue and
// emits the first status event. A publish failure after commit is logged, not returned.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (Order, error) {
	if err := in.validate(); err != nil {
		return Order{}, err
	}

	var (
		o       Order
		existed bool
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		if in.ExternalID != "" {
			prev, err := tx.FindOrderByExternalID(ctx, in.ExternalID)
			if err == nil {
				o, existed = prev, true
				return nil
			}
			if !errors.Is(err, ErrNotFound) {
				return err
			}
		}
		o = Order{
			ExternalID: in.ExternalID,
			UserID:     in.UserID,
			BookID:     in.Items[0].BookID,
			Items:      cloneItems(in.Items),
			Status:     StatusPending,
		}
		return tx.InsertOrder(ctx, &o)
	})
	if errors.Is(err, ErrAlreadyExists) && in.ExternalID != "" {
		// a concurrent request with the same external_id won the insert
		err = s.store.InTx(ctx, func(tx Tx) error {
			var err error
			o, err = tx.FindOrderByExternalID(ctx, in.ExternalID)
			return err
		})
		existed = err == nil
	}
	if err != nil {
		if !errors.Is(err, ErrPersistence) {
			err = PersistenceError("place order", err)
		}
		return Order{}, err
	}
	if existed {
		s.log.Info("order already placed", zap.String("order_id", o.ID), zap.String("external_id", in.ExternalID))
		return o, nil
	}

	log := s.log.With(zap.String("order_id", o.ID), zap.String("user_id", o.UserID))
	msg, err := queue.NewMessage(MessageOrderSubmitted, PartitionKey(o.ID), OrderMessage{OrderID: o.ID, Items: o.Items})
	if err == nil {
		queue.Inject(ctx, &msg)
		err = s.channel.Publish(ctx, QueueOrderSubmitted, msg)
	}
	if err != nil {
		log.Error("publish order_submitted failed, order stays PENDING", zap.Error(err))
	} else {
		log.Info("order submitted", zap.Int("items", len(o.Items)))
	}

	Emit(ctx, s.notifier, log, o)
	return o, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (Order, error) {
	var o Order
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		o, err = tx.GetOrder(ctx, id)
		return err
	})
	return o, err
}

func (s *Service) GetStatus(ctx context.Context, id string) (Status, error) {
	o, err := s.GetOrder(ctx, id)
	if err != nil {
		return "", err
	}
	return o.Status, nil
}

// CancelOrder moves a PENDING or PROCESSING order straight to CANCELLED, bypassing the
// queues. Any other status yields ErrInvalidTransition and the current status.
func (s *Service) CancelOrder(ctx context.Context, id string) (Status, error) {
	return s.cancel(ctx, "", id)
}

// CancelUserOrder is CancelOrder on behalf of userID. An order owned by someone else
// is reported as not found.
func (s *Service) CancelUserOrder(ctx context.Context, userID, id string) (Status, error) {
	if strings.TrimSpace(userID) == "" {
		return "", validationf("user_id is required")
	}
	return s.cancel(ctx, userID, id)
}

func (s *Service) cancel(ctx context.Context, userID, id string) (Status, error) {
	var o Order
	err := s.store.InTx(ctx, func(tx Tx) error {
		if userID != "" {
			cur, err := tx.GetOrder(ctx, id)
			if err != nil {
				return err
			}
			if cur.UserID != userID {
				return notFound("order", id)
			}
		}
		var err error
		o, err = Transition(ctx, tx, id, TriggerCancel)
		return err
	})
	if err != nil {
		return o.Status, err
	}
	s.log.Info("order cancelled by request", zap.String("order_id", o.ID))
	Emit(ctx, s.notifier, s.log, o)
	return o.Status, nil
}

func (s *Service) ListBooks(ctx context.Context) ([]Book, error) {
	var books []Book
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		books, err = tx.ListBooks(ctx)
		return err
	})
	return books, err
}

func (s *Service) GetBook(ctx context.Context, id string) (Book, error) {
	var b Book
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		b, err = tx.GetBook(ctx, id)
		return err
	})
	return b, err
}

func validateBook(b Book) error {
	switch {
	case strings.TrimSpace(b.Title) == "":
		return validationf("title is required")
	case strings.TrimSpace(b.Author) == "":
		return validationf("author is required")
	case b.Price.LessThan(decimal.Zero):
		return validationf("price must not be negative")
	case b.Stock < 0 || b.Stock > MaxQuantity:
		return validationf("stock must be between 0 and %d", MaxQuantity)
	}
	return nil
}

func (s *Service) AddBook(ctx context.Context, b Book) (Book, error) {
	if err := validateBook(b); err != nil {
		return Book{}, err
	}
	err := s.store.InTx(ctx, func(tx Tx) error { return tx.InsertBook(ctx, &b) })
	return b, err
}

// BookPatch carries the fields of a book to change; nil fields stay as they are.
type BookPatch struct {
	Title       *string
	Author      *string
	Price       *decimal.Decimal
	Stock       *int
	Description *string
}

// UpdateBook edits a book under its row lock, so a stock correction serialises with
// running reservations.
func (s *Service) UpdateBook(ctx context.Context, id string, p BookPatch) (Book, error) {
	var b Book
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		if b, err = tx.GetBook(ctx, id); err != nil {
			return err
		}
		if p.Title != nil {
			b.Title = *p.Title
		}
		if p.Author != nil {
			b.Author = *p.Author
		}
		if p.Price != nil {
			b.Price = *p.Price
		}
		if p.Stock != nil {
			b.Stock = *p.Stock
		}
		if p.Description != nil {
			b.Description = *p.Description
		}
		if err := validateBook(b); err != nil {
			return err
		}
		return tx.UpdateBook(ctx, b)
	})
	if err != nil {
		return Book{}, err
	}
	s.log.Info("book updated", zap.String("book_id", b.ID), zap.Int("stock", b.Stock))
	return b, nil
}

func (s *Service) DeleteBook(ctx context.Context, id string) error {
	err := s.store.InTx(ctx, func(tx Tx) error { return tx.DeleteBook(ctx, id) })
	if err == nil {
		s.log.Info("book deleted", zap.String("book_id", id))
	}
	return err
}

func (s *Service) RegisterUser(ctx context.Context, u User) (User, error) {
	if strings.TrimSpace(u.Username) == "" || !strings.Contains(u.Email, "@") {
		return User{}, validationf("username and a valid email are required")
	}
	err := s.store.InTx(ctx, func(tx Tx) error { return tx.InsertUser(ctx, &u) })
	return u, err
}

// Broadcast sends a global notice to every observer.
func (s *Service) Broadcast(ctx context.Context, message string) error {
	if strings.TrimSpace(message) == "" {
		return validationf("message is required")
	}
	if s.notifier == nil {
		return nil
	}
	return s.notifier.NotifyAll(ctx, Broadcast{Message: message, OccurredAt: time.Now().UTC()})
}
