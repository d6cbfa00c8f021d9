package orders_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_FailedTxLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	s := orders.NewMemStore()
	require.NoError(t, s.InTx(ctx, func(tx orders.Tx) error {
		return tx.InsertBook(ctx, &orders.Book{ID: "b1", Title: "Dune", Stock: 5})
	}))

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx orders.Tx) error {
		require.NoError(t, tx.UpdateBookStock(ctx, "b1", 1))
		b, err := tx.GetBook(ctx, "b1")
		require.NoError(t, err)
		assert.Equal(t, 1, b.Stock, "a tx sees its own writes")
		return boom
	})
	require.ErrorIs(t, err, boom)

	_ = s.InTx(ctx, func(tx orders.Tx) error {
		b, err := tx.GetBook(ctx, "b1")
		require.NoError(t, err)
		assert.Equal(t, 5, b.Stock)
		return nil
	})
}

func TestMemStore_NegativeStockRejected(t *testing.T) {
	ctx := context.Background()
	s := orders.NewMemStore()
	_ = s.InTx(ctx, func(tx orders.Tx) error {
		return tx.InsertBook(ctx, &orders.Book{ID: "b1", Title: "Dune", Stock: 1})
	})
	err := s.InTx(ctx, func(tx orders.Tx) error { return tx.UpdateBookStock(ctx, "b1", -1) })
	assert.ErrorIs(t, err, orders.ErrPersistence)
}

func TestMemStore_OrdersAndLookups(t *testing.T) {
	ctx := context.Background()
	s := orders.NewMemStore()

	o := orders.Order{ExternalID: "ext-1", UserID: "u1", BookID: "b1", Items: []orders.Item{{BookID: "b1", Quantity: 2}}, Status: orders.StatusPending}
	require.NoError(t, s.InTx(ctx, func(tx orders.Tx) error { return tx.InsertOrder(ctx, &o) }))
	require.NotEmpty(t, o.ID)
	assert.False(t, o.CreatedAt.IsZero())

	_ = s.InTx(ctx, func(tx orders.Tx) error {
		got, err := tx.FindOrderByExternalID(ctx, "ext-1")
		require.NoError(t, err)
		assert.Equal(t, o.ID, got.ID)

		_, err = tx.GetOrder(ctx, "nope")
		assert.ErrorIs(t, err, orders.ErrNotFound)
		_, err = tx.GetUser(ctx, "nope")
		assert.ErrorIs(t, err, orders.ErrNotFound)
		assert.ErrorIs(t, tx.UpdateOrderStatus(ctx, "nope", orders.StatusCancelled), orders.ErrNotFound)
		return nil
	})
}

func TestMemStore_ListBooksSortedByTitle(t *testing.T) {
	ctx := context.Background()
	s := orders.NewMemStore()
	_ = s.InTx(ctx, func(tx orders.Tx) error {
		_ = tx.InsertBook(ctx, &orders.Book{Title: "Neuromancer"})
		_ = tx.InsertBook(ctx, &orders.Book{Title: "Dune"})
		books, err := tx.ListBooks(ctx)
		require.NoError(t, err)
		require.Len(t, books, 2)
		assert.Equal(t, "Dune", books[0].Title)
		return nil
	})
}

func TestTransition_ReturnsCurrentOrderOnReject(t *testing.T) {
	ctx := context.Background()
	s := orders.NewMemStore()
	o := orders.Order{UserID: "u1", BookID: "b1", Status: orders.StatusShipped}
	_ = s.InTx(ctx, func(tx orders.Tx) error { return tx.InsertOrder(ctx, &o) })

	var got orders.Order
	err := s.InTx(ctx, func(tx orders.Tx) error {
		var err error
		got, err = orders.Transition(ctx, tx, o.ID, orders.TriggerCancel)
		return err
	})
	require.ErrorIs(t, err, orders.ErrInvalidTransition)
	assert.Equal(t, orders.StatusShipped, got.Status)
}

func TestOrderBookIDs(t *testing.T) {
	o := orders.Order{BookID: "b2", Items: []orders.Item{{BookID: "b1"}, {BookID: "b2"}, {BookID: "b1"}, {BookID: "b3"}}}
	assert.Equal(t, []string{"b2", "b1", "b3"}, o.BookIDs())
}
