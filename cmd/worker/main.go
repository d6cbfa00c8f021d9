// Command worker runs only the pipeline consumers, for deployments where the API is
// scaled separately.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-bookstore-orders/internal/app"
	"github.com/ariefcatur/go-bookstore-orders/internal/config"
	"github.com/ariefcatur/go-bookstore-orders/internal/logging"
	"github.com/ariefcatur/go-bookstore-orders/internal/observability"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config", zap.Error(err))
	}
	cfg.RunWorkers = true
	if cfg.ServiceName == "bookstore-api" {
		cfg.ServiceName = "bookstore-worker"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelShutdown := func(context.Context) error { return nil }
	if cfg.OtelEndpoint != "" {
		if otelShutdown, err = observability.Setup(ctx, observability.Config{
			ServiceName: cfg.ServiceName,
			Endpoint:    cfg.OtelEndpoint,
			AuthHeader:  cfg.OtelAuthHeader,
		}); err != nil {
			zap.NewExample().Warn("otel setup incomplete", zap.Error(err))
		}
	} else {
		observability.SetupPropagation()
	}
	log := logging.New(cfg.ServiceName, cfg.OtelEndpoint != "")
	defer func() { _ = log.Sync() }()

	rt, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("runtime", zap.Error(err))
	}

	log.Info("pipeline workers started")
	if err := rt.RunWorkers(ctx); err != nil {
		log.Error("workers exited", zap.Error(err))
	}
	log.Info("shutting down workers")

	ctx2, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := rt.Shutdown(ctx2); err != nil {
		log.Warn("shutdown", zap.Error(err))
	}
	_ = otelShutdown(ctx2)
}
