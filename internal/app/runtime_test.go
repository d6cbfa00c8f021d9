package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-bookstore-orders/internal/config"
	"github.com/ariefcatur/go-bookstore-orders/internal/notify"
	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"github.com/ariefcatur/go-bookstore-orders/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubDeliverer struct {
	mu   sync.Mutex
	fail map[string]bool // by user id
}

func (d *stubDeliverer) Deliver(ctx context.Context, u orders.User, books []orders.Book) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail[u.ID] {
		return errors.New("mailbox full")
	}
	return nil
}

type pipeline struct {
	rt    *Runtime
	store *orders.MemStore
	rec   *notify.Recorder
	stop  func()
}

func startPipeline(t *testing.T, dl *stubDeliverer) *pipeline {
	t.Helper()
	p := &pipeline{store: orders.NewMemStore(), rec: &notify.Recorder{}}
	ch := queue.NewMemory(64)
	p.rt = Assemble(context.Background(), Deps{Store: p.store, Channel: ch, Notifier: p.rec, Deliverer: dl}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.rt.RunWorkers(ctx) }()
	p.stop = func() {
		cancel()
		require.NoError(t, <-done)
		require.NoError(t, p.rt.Shutdown(context.Background()))
	}

	ctx0 := context.Background()
	require.NoError(t, p.store.InTx(ctx0, func(tx orders.Tx) error {
		for _, u := range []string{"u1", "u2"} {
			if err := tx.InsertUser(ctx0, &orders.User{ID: u, Username: u, Email: u + "@example.com"}); err != nil {
				return err
			}
		}
		if err := tx.InsertBook(ctx0, &orders.Book{ID: "b1", Title: "Dune", Stock: 10}); err != nil {
			return err
		}
		return tx.InsertBook(ctx0, &orders.Book{ID: "b2", Title: "Emma", Stock: 1})
	}))
	return p
}

func (p *pipeline) waitStatus(t *testing.T, id string, want orders.Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		st, err := p.rt.Service.GetStatus(context.Background(), id)
		return err == nil && st == want
	}, 2*time.Second, 5*time.Millisecond, "order %s never reached %s", id, want)
}

func (p *pipeline) stock(t *testing.T, id string) int {
	b, err := p.rt.Service.GetBook(context.Background(), id)
	require.NoError(t, err)
	return b.Stock
}

func TestPipeline_HappyPath(t *testing.T) {
	p := startPipeline(t, &stubDeliverer{})
	defer p.stop()

	o, err := p.rt.Service.PlaceOrder(context.Background(), orders.PlaceOrderInput{
		UserID: "u1", Items: []orders.Item{{BookID: "b1", Quantity: 2}},
	})
	require.NoError(t, err)

	p.waitStatus(t, o.ID, orders.StatusDelivered)
	assert.Equal(t, 8, p.stock(t, "b1"))
	// PENDING is emitted after the publish, so it may race the processor's event
	got := p.rec.Statuses(o.ID)
	assert.ElementsMatch(t, []orders.Status{
		orders.StatusPending,
		orders.StatusProcessing,
		orders.StatusProcessing,
		orders.StatusShipped,
		orders.StatusDelivered,
	}, got)
	require.Len(t, got, 5)
	assert.Equal(t, []orders.Status{orders.StatusShipped, orders.StatusDelivered}, got[3:])
}

func TestPipeline_OutOfStockCancels(t *testing.T) {
	p := startPipeline(t, &stubDeliverer{})
	defer p.stop()

	o, err := p.rt.Service.PlaceOrder(context.Background(), orders.PlaceOrderInput{
		UserID: "u1", Items: []orders.Item{{BookID: "b1", Quantity: 1}, {BookID: "b2", Quantity: 2}},
	})
	require.NoError(t, err)

	p.waitStatus(t, o.ID, orders.StatusCancelled)
	assert.Equal(t, 10, p.stock(t, "b1"))
	assert.Equal(t, 1, p.stock(t, "b2"))
}

func TestPipeline_DeliveryFailureCancelsWithoutRestock(t *testing.T) {
	p := startPipeline(t, &stubDeliverer{fail: map[string]bool{"u2": true}})
	defer p.stop()

	o, err := p.rt.Service.PlaceOrder(context.Background(), orders.PlaceOrderInput{
		UserID: "u2", Items: []orders.Item{{BookID: "b1", Quantity: 3}},
	})
	require.NoError(t, err)

	p.waitStatus(t, o.ID, orders.StatusCancelled)
	assert.Equal(t, 7, p.stock(t, "b1"))
	assert.Contains(t, p.rec.Statuses(o.ID), orders.StatusShipped)
}

func TestPipeline_ManyOrdersForTheLastCopy(t *testing.T) {
	p := startPipeline(t, &stubDeliverer{})
	defer p.stop()

	var ids []string
	for i := 0; i < 5; i++ {
		o, err := p.rt.Service.PlaceOrder(context.Background(), orders.PlaceOrderInput{
			UserID: "u1", Items: []orders.Item{{BookID: "b2", Quantity: 1}},
		})
		require.NoError(t, err)
		ids = append(ids, o.ID)
	}

	require.Eventually(t, func() bool {
		for _, id := range ids {
			st, _ := p.rt.Service.GetStatus(context.Background(), id)
			if !st.Terminal() {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)

	delivered := 0
	for _, id := range ids {
		if st, _ := p.rt.Service.GetStatus(context.Background(), id); st == orders.StatusDelivered {
			delivered++
		}
	}
	assert.Equal(t, 1, delivered)
	assert.Zero(t, p.stock(t, "b2"))
}

func TestNew_MemoryDrivers(t *testing.T) {
	cfg := config.Config{StoreDriver: "memory", QueueDriver: "memory", NotifyDriver: "log", RunWorkers: true}
	rt, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.RunWorkers(ctx) }()
	cancel()
	require.NoError(t, <-done)
	require.NoError(t, rt.Shutdown(context.Background()))
}
