package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"tracecore/internal/platform/config"
	"tracecore/internal/platform/httpserver"
	"tracecore/internal/platform/logger"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	infra, err := buildInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	app, err := buildApp(cfg, log, reg, infra)
	if err != nil {
		return err
	}

	srv := httpserver.New(cfg.Addr, app.router)
	serverDone := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(serverDone)
		log.Info("starting tracecore", "addr", cfg.Addr, "backend", cfg.Storage.Backend)
		return httpserver.Serve(gctx, srv, cfg.ShutdownTimeout)
	})
	// The worker outlives the server so events from in-flight requests are
	// flushed before exit.
	g.Go(func() error {
		workerCtx, cancel := context.WithCancel(context.WithoutCancel(gctx))
		go func() {
			<-serverDone
			cancel()
		}()
		if err := app.worker.Run(workerCtx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	return g.Wait()
}
