package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/meteo-rt/internal/adapter/http"
	"github.com/couchcryptid/meteo-rt/internal/app"
	"github.com/couchcryptid/meteo-rt/internal/config"
	"github.com/couchcryptid/meteo-rt/internal/observability"
	"github.com/couchcryptid/meteo-rt/internal/session"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, metrics, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	gate, err := session.NewGate(cfg.AppPassword, cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		logger.Error("failed to initialize session gate", "error", err)
		os.Exit(1)
	}
	if cfg.SessionSecret == "" {
		logger.Warn("SESSION_SECRET not set, sessions will not survive a restart")
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, a.Orchestrator, gate, a, logger)

	g, gctx := errgroup.WithContext(ctx)

	// HTTP server.
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// History subscription.
	g.Go(func() error {
		return a.Orchestrator.Run(gctx)
	})

	// Shutdown on signal or first failure.
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("service error", "error", err)
	}
	if err := a.Close(); err != nil {
		logger.Error("close error", "error", err)
	}

	logger.Info("shutdown complete")
}
