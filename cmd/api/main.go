package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-bookstore-orders/internal/app"
	"github.com/ariefcatur/go-bookstore-orders/internal/config"
	"github.com/ariefcatur/go-bookstore-orders/internal/httpx"
	"github.com/ariefcatur/go-bookstore-orders/internal/logging"
	"github.com/ariefcatur/go-bookstore-orders/internal/observability"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config", zap.Error(err))
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

	workersDone := make(chan struct{})
	if cfg.RunWorkers {
		go func() {
			defer close(workersDone)
			if err := rt.RunWorkers(ctx); err != nil {
				log.Error("workers exited", zap.Error(err))
				stop()
			}
		}()
	} else {
		close(workersDone)
	}

	router := httpx.NewRouter(log)
	oh := &httpx.OrdersHandler{Service: rt.Service, Log: log}
	oh.Register(router)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("listen", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	<-workersDone
	if err := rt.Shutdown(ctx2); err != nil {
		log.Warn("shutdown", zap.Error(err))
	}
	_ = otelShutdown(ctx2)
}
