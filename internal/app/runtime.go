// Package app assembles the pipeline from configuration and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-bookstore-orders/internal/config"
	"github.com/ariefcatur/go-bookstore-orders/internal/delivery"
	"github.com/ariefcatur/go-bookstore-orders/internal/inventory"
	"github.com/ariefcatur/go-bookstore-orders/internal/notify"
	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"github.com/ariefcatur/go-bookstore-orders/internal/postgres"
	"github.com/ariefcatur/go-bookstore-orders/internal/queue"
	"github.com/ariefcatur/go-bookstore-orders/internal/redisx"
	"github.com/ariefcatur/go-bookstore-orders/internal/shipping"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Deps are the collaborators the pipeline is built around.
type Deps struct {
	Store     orders.Store
	Channel   queue.Channel
	Notifier  orders.Notifier
	Deliverer shipping.Deliverer
	Dedup     queue.Deduper // optional
}

type Runtime struct {
	Service   *orders.Service
	Processor *orders.Processor
	Inventory *inventory.Manager
	Shipping  *shipping.Pool

	deps       Deps
	deadLetter bool
	log        *zap.Logger
	closers    []func()
}

// Assemble wires the pipeline stages to deps.
func Assemble(ctx context.Context, deps Deps, log *zap.Logger) *Runtime {
	if log == nil {
		log = zap.NewNop()
	}
	coord := shipping.NewCoordinator(deps.Store, deps.Deliverer, deps.Notifier, log.Named("shipping"))
	pool := shipping.NewPool(ctx, coord, log.Named("shipping"))
	return &Runtime{
		Service:   orders.NewService(deps.Store, deps.Channel, deps.Notifier, log.Named("intake")),
		Processor: orders.NewProcessor(deps.Store, deps.Channel, deps.Notifier, log.Named("processor")),
		Inventory: inventory.NewManager(deps.Store, deps.Notifier, pool, log.Named("inventory")),
		Shipping:  pool,
		deps:      deps,
		log:       log,
	}
}

// New builds every driver named by cfg and assembles the pipeline on top of them.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (rt *Runtime, err error) {
	var closers []func()
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		}
	}()

	var deps Deps

	switch cfg.StoreDriver {
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		closers = append(closers, db.Close)
		if err := postgres.Migrate(ctx, db); err != nil {
			return nil, err
		}
		deps.Store = postgres.NewStore(db)
	default:
		log.Warn("using in-memory store, data is lost on exit")
		deps.Store = orders.NewMemStore()
	}

	switch cfg.QueueDriver {
	case "kafka":
		deps.Channel = queue.NewKafka(cfg.KafkaBrokers(), cfg.KafkaGroup)
	case "amqp":
		ch, err := queue.DialAMQP(cfg.RabbitMQURL, orders.QueueOrderSubmitted, orders.QueueInventoryReservation)
		if err != nil {
			return nil, fmt.Errorf("rabbitmq: %w", err)
		}
		deps.Channel = ch
	default:
		deps.Channel = queue.NewMemory(1024)
	}
	ch := deps.Channel
	closers = append(closers, func() { _ = ch.Close() })

	var rdb *redis.Client
	if cfg.NotifyDriver == "redis" || cfg.DedupEnabled {
		rdb, err = redisx.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		closers = append(closers, func() { _ = rdb.Close() })
	}
	if cfg.NotifyDriver == "redis" {
		deps.Notifier = notify.Fanout{notify.NewRedis(rdb), notify.NewLog(log.Named("notify"))}
	} else {
		deps.Notifier = notify.NewLog(log.Named("notify"))
	}
	if cfg.DedupEnabled {
		deps.Dedup = redisx.NewDeduper(rdb)
	}

	if cfg.SMTPHost != "" {
		deps.Deliverer = delivery.NewMailer(delivery.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, log.Named("delivery"))
	} else {
		deps.Deliverer = delivery.NewLog(log.Named("delivery"))
	}

	rt = Assemble(ctx, deps, log)
	rt.deadLetter = cfg.DeadLetter
	rt.closers = closers
	log.Info("runtime ready",
		zap.String("store", cfg.StoreDriver),
		zap.String("queue", cfg.QueueDriver),
		zap.String("notify", cfg.NotifyDriver),
		zap.Bool("dedup", cfg.DedupEnabled),
	)
	return rt, nil
}

// RunWorkers runs one consumer per pipeline queue until ctx is cancelled or the
// channel is closed.
func (r *Runtime) RunWorkers(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range r.consumers() {
		c := c
		g.Go(func() error {
			if err := c.Run(ctx); err != nil && !errors.Is(err, queue.ErrClosed) {
				return fmt.Errorf("consumer %s: %w", c.Queue, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *Runtime) consumers() []*queue.Consumer {
	return []*queue.Consumer{
		{
			Channel:    r.deps.Channel,
			Queue:      orders.QueueOrderSubmitted,
			Handler:    r.Processor.Handle,
			Logger:     r.log.Named("consumer"),
			Dedup:      r.deps.Dedup,
			DeadLetter: r.deadLetter,
		},
		{
			Channel:    r.deps.Channel,
			Queue:      orders.QueueInventoryReservation,
			Handler:    r.Inventory.Handle,
			Logger:     r.log.Named("consumer"),
			Dedup:      r.deps.Dedup,
			DeadLetter: r.deadLetter,
		},
	}
}

// Shutdown waits for in-flight shipping tasks (bounded by ctx) and then releases the
// drivers. Call it after the workers have returned.
func (r *Runtime) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.Shipping.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("shipping tasks still running: %w", ctx.Err())
	}

	if len(r.closers) == 0 {
		err = errors.Join(err, r.deps.Channel.Close())
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
	return err
}
