package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Store is the pgx implementation of orders.Store. Reads inside a transaction take
// row locks (FOR UPDATE), so concurrent pipeline stages on the same order or book wait
// for each other instead of racing.
type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func (s *Store) InTx(ctx context.Context, fn func(tx orders.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return orders.PersistenceError("begin tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err // rollback via defer
	}
	if err := tx.Commit(ctx); err != nil {
		return orders.PersistenceError("commit", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

const uniqueViolation = "23505"

const orderColumns = `id, COALESCE(external_id, ''), user_id, book_id, items, status, created_at, updated_at`

func scanOrder(row pgx.Row) (orders.Order, error) {
	var (
		o      orders.Order
		status string
	)
	if err := row.Scan(&o.ID, &o.ExternalID, &o.UserID, &o.BookID, &o.Items, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return orders.Order{}, err
	}
	o.Status = orders.Status(status)
	return o, nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o *orders.Order) error {
	now := time.Now().UTC()
	o.ID = uuid.NewString()
	o.CreatedAt, o.UpdatedAt = now, now
	items := o.Items
	if items == nil {
		items = []orders.Item{}
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders(id, external_id, user_id, book_id, items, status, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $7)`,
		o.ID, o.ExternalID, o.UserID, o.BookID, items, string(o.Status), now,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: order external_id %s", orders.ErrAlreadyExists, o.ExternalID)
	}
	if err != nil {
		return orders.PersistenceError("insert order", err)
	}
	return nil
}

func (t *pgTx) GetOrder(ctx context.Context, id string) (orders.Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id))
	return o, rowErr(err, "order", id)
}

func (t *pgTx) FindOrderByExternalID(ctx context.Context, externalID string) (orders.Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE external_id=$1`, externalID))
	return o, rowErr(err, "order external_id", externalID)
}

func (t *pgTx) UpdateOrderStatus(ctx context.Context, id string, status orders.Status) error {
	ct, err := t.tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`, id, string(status))
	if err != nil {
		return orders.PersistenceError("update order status", err)
	}
	if ct.RowsAffected() != 1 {
		return orders.NotFoundError("order", id)
	}
	return nil
}

const bookColumns = `id, title, author, price::text, stock, artifact_path, description`

func scanBook(row pgx.Row) (orders.Book, error) {
	var (
		b     orders.Book
		price string
	)
	if err := row.Scan(&b.ID, &b.Title, &b.Author, &price, &b.Stock, &b.ArtifactPath, &b.Description); err != nil {
		return orders.Book{}, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return orders.Book{}, err
	}
	b.Price = p
	return b, nil
}

func (t *pgTx) GetBook(ctx context.Context, id string) (orders.Book, error) {
	b, err := scanBook(t.tx.QueryRow(ctx, `SELECT `+bookColumns+` FROM books WHERE id=$1 FOR UPDATE`, id))
	return b, rowErr(err, "book", id)
}

func (t *pgTx) UpdateBookStock(ctx context.Context, id string, stock int) error {
	ct, err := t.tx.Exec(ctx, `UPDATE books SET stock=$2 WHERE id=$1`, id, stock)
	if err != nil {
		return orders.PersistenceError("update book stock", err)
	}
	if ct.RowsAffected() != 1 {
		return orders.NotFoundError("book", id)
	}
	return nil
}

func (t *pgTx) ListBooks(ctx context.Context) ([]orders.Book, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+bookColumns+` FROM books ORDER BY title`)
	if err != nil {
		return nil, orders.PersistenceError("list books", err)
	}
	defer rows.Close()

	var out []orders.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, orders.PersistenceError("scan book", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, orders.PersistenceError("list books", err)
	}
	return out, nil
}

func (t *pgTx) InsertBook(ctx context.Context, b *orders.Book) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO books(id, title, author, price, stock, artifact_path, description)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)`,
		b.ID, b.Title, b.Author, b.Price.String(), b.Stock, b.ArtifactPath, b.Description,
	)
	if err != nil {
		return orders.PersistenceError("insert book", err)
	}
	return nil
}

// UpdateBook is called after GetBook, which holds the row lock.
func (t *pgTx) UpdateBook(ctx context.Context, b orders.Book) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE books SET title=$2, author=$3, price=$4::numeric, stock=$5, description=$6
		WHERE id=$1`,
		b.ID, b.Title, b.Author, b.Price.String(), b.Stock, b.Description,
	)
	if err != nil {
		return orders.PersistenceError("update book", err)
	}
	if ct.RowsAffected() != 1 {
		return orders.NotFoundError("book", b.ID)
	}
	return nil
}

func (t *pgTx) DeleteBook(ctx context.Context, id string) error {
	ct, err := t.tx.Exec(ctx, `DELETE FROM books WHERE id=$1`, id)
	if err != nil {
		return orders.PersistenceError("delete book", err)
	}
	if ct.RowsAffected() != 1 {
		return orders.NotFoundError("book", id)
	}
	return nil
}

func (t *pgTx) GetUser(ctx context.Context, id string) (orders.User, error) {
	var u orders.User
	err := t.tx.QueryRow(ctx, `SELECT id, username, email FROM users WHERE id=$1`, id).
		Scan(&u.ID, &u.Username, &u.Email)
	return u, rowErr(err, "user", id)
}

func (t *pgTx) InsertUser(ctx context.Context, u *orders.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if _, err := t.tx.Exec(ctx, `INSERT INTO users(id, username, email) VALUES ($1, $2, $3)`, u.ID, u.Username, u.Email); err != nil {
		return orders.PersistenceError("insert user", err)
	}
	return nil
}

func rowErr(err error, kind, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return orders.NotFoundError(kind, id)
	default:
		return orders.PersistenceError("get "+kind, err)
	}
}
