package orders

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-process Store. Transactions are serialised under one mutex and
// writes are staged until fn returns nil, so a failed fn leaves no trace.
type MemStore struct {
	mu     sync.Mutex
	orders map[string]Order
	books  map[string]Book
	users  map[string]User
	now    func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		orders: map[string]Order{},
		books:  map[string]Book{},
		users:  map[string]User{},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return PersistenceError("begin tx", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		s:      s,
		orders: map[string]Order{},
		books:  map[string]Book{},
		users:  map[string]User{},
		gone:   map[string]bool{},
	}
	if err := fn(tx); err != nil {
		return err // staged writes dropped
	}
	for id, o := range tx.orders {
		s.orders[id] = o
	}
	for id, b := range tx.books {
		s.books[id] = b
	}
	for id, u := range tx.users {
		s.users[id] = u
	}
	for id := range tx.gone {
		delete(s.books, id)
	}
	return nil
}

type memTx struct {
	s      *MemStore
	orders map[string]Order
	books  map[string]Book
	users  map[string]User
	gone   map[string]bool // deleted books
}

func (t *memTx) InsertOrder(ctx context.Context, o *Order) error {
	if o.ExternalID != "" {
		if _, err := t.FindOrderByExternalID(ctx, o.ExternalID); err == nil {
			return fmt.Errorf("%w: order external_id %s", ErrAlreadyExists, o.ExternalID)
		}
	}
	now := t.s.now()
	o.ID = uuid.NewString()
	o.CreatedAt, o.UpdatedAt = now, now
	cp := *o
	cp.Items = cloneItems(o.Items)
	t.orders[o.ID] = cp
	return nil
}

func (t *memTx) GetOrder(ctx context.Context, id string) (Order, error) {
	o, ok := t.orders[id]
	if !ok {
		o, ok = t.s.orders[id]
	}
	if !ok {
		return Order{}, notFound("order", id)
	}
	o.Items = cloneItems(o.Items)
	return o, nil
}

func (t *memTx) FindOrderByExternalID(ctx context.Context, externalID string) (Order, error) {
	for _, m := range []map[string]Order{t.orders, t.s.orders} {
		for _, o := range m {
			if externalID != "" && o.ExternalID == externalID {
				o.Items = cloneItems(o.Items)
				return o, nil
			}
		}
	}
	return Order{}, notFound("order external_id", externalID)
}

func (t *memTx) UpdateOrderStatus(ctx context.Context, id string, status Status) error {
	o, err := t.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	o.Status = status
	o.UpdatedAt = t.s.now()
	t.orders[id] = o
	return nil
}

func (t *memTx) GetBook(ctx context.Context, id string) (Book, error) {
	if t.gone[id] {
		return Book{}, notFound("book", id)
	}
	b, ok := t.books[id]
	if !ok {
		b, ok = t.s.books[id]
	}
	if !ok {
		return Book{}, notFound("book", id)
	}
	return b, nil
}

func (t *memTx) UpdateBookStock(ctx context.Context, id string, stock int) error {
	if stock < 0 {
		return PersistenceError("update book stock", validationf("stock for book %s would be %d", id, stock))
	}
	b, err := t.GetBook(ctx, id)
	if err != nil {
		return err
	}
	b.Stock = stock
	t.books[id] = b
	return nil
}

func (t *memTx) ListBooks(ctx context.Context) ([]Book, error) {
	merged := make(map[string]Book, len(t.s.books)+len(t.books))
	for id, b := range t.s.books {
		merged[id] = b
	}
	for id, b := range t.books {
		merged[id] = b
	}
	for id := range t.gone {
		delete(merged, id)
	}
	out := make([]Book, 0, len(merged))
	for _, b := range merged {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (t *memTx) InsertBook(ctx context.Context, b *Book) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	delete(t.gone, b.ID)
	t.books[b.ID] = *b
	return nil
}

func (t *memTx) UpdateBook(ctx context.Context, b Book) error {
	if _, err := t.GetBook(ctx, b.ID); err != nil {
		return err
	}
	t.books[b.ID] = b
	return nil
}

func (t *memTx) DeleteBook(ctx context.Context, id string) error {
	if _, err := t.GetBook(ctx, id); err != nil {
		return err
	}
	delete(t.books, id)
	t.gone[id] = true
	return nil
}

func (t *memTx) GetUser(ctx context.Context, id string) (User, error) {
	u, ok := t.users[id]
	if !ok {
		u, ok = t.s.users[id]
	}
	if !ok {
		return User{}, notFound("user", id)
	}
	return u, nil
}

func (t *memTx) InsertUser(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	t.users[u.ID] = *u
	return nil
}
