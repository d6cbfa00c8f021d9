package orders

import "context"

// Store runs fn inside one transaction. fn returning an error rolls everything back;
// a nil return commits. Drivers report commit failures as ErrPersistence.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of row operations the pipeline needs. InsertOrder reports a taken
// external id as ErrAlreadyExists. Get* lock the row for the rest of
// the transaction where the driver supports it.
type Tx interface {
	InsertOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, id string) (Order, error)
	FindOrderByExternalID(ctx context.Context, externalID string) (Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status Status) error

	GetBook(ctx context.Context, id string) (Book, error)
	UpdateBookStock(ctx context.Context, id string, stock int) error
	ListBooks(ctx context.Context) ([]Book, error)
	InsertBook(ctx context.Context, b *Book) error
	UpdateBook(ctx context.Context, b Book) error
	DeleteBook(ctx context.Context, id string) error

	GetUser(ctx context.Context, id string) (User, error)
	InsertUser(ctx context.Context, u *User) error
}

// Notifier is the real-time sink for status events. Delivery is best effort.
type Notifier interface {
	NotifyUser(ctx context.Context, userID string, ev StatusEvent) error
	NotifyAll(ctx context.Context, b Broadcast) error
}

// Transition re-reads the order, applies t and persists the new status. The returned
// order carries the committed status once the surrounding transaction commits.
func Transition(ctx context.Context, tx Tx, orderID string, t Trigger) (Order, error) {
	o, err := tx.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	next, err := Next(o.Status, t)
	if err != nil {
		return o, err
	}
	if err := tx.UpdateOrderStatus(ctx, o.ID, next); err != nil {
		return o, err
	}
	o.Status = next
	return o, nil
}
