// Command meteoctl runs generations from the command line against the
// configured history store and Gemini enricher.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchcryptid/meteo-rt/internal/app"
	"github.com/couchcryptid/meteo-rt/internal/config"
	"github.com/couchcryptid/meteo-rt/internal/domain"
	"github.com/couchcryptid/meteo-rt/internal/observability"
	"github.com/joho/godotenv"
)

// readyTimeout bounds the wait for the first history snapshot.
const readyTimeout = 30 * time.Second

// engine is what the commands need from a running orchestrator.
type engine interface {
	Generate(ctx context.Context) (domain.Record, error)
	RefreshWeather(ctx context.Context, id string) (domain.Record, error)
	PinProvince(p domain.Province) error
	History(page, size int) (domain.History, int)
	Close() error
}

type opener func(ctx context.Context) (engine, error)

type appEngine struct {
	*app.App
}

func (e appEngine) Generate(ctx context.Context) (domain.Record, error) {
	return e.Orchestrator.Generate(ctx)
}

func (e appEngine) RefreshWeather(ctx context.Context, id string) (domain.Record, error) {
	return e.Orchestrator.RefreshWeather(ctx, id)
}

func (e appEngine) PinProvince(p domain.Province) error {
	return e.Orchestrator.PinProvince(p)
}

func (e appEngine) History(page, size int) (domain.History, int) {
	return e.Orchestrator.History(page, size)
}

// openApp loads configuration, wires the orchestrator and waits until the
// history feed has delivered its first snapshot.
func openApp(ctx context.Context) (engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.LogLevel == "info" {
		cfg.LogLevel = "warn"
	}
	logger := observability.NewLogger(cfg)

	a, err := app.New(ctx, cfg, observability.NewMetricsForTesting(), logger)
	if err != nil {
		return nil, err
	}
	if err := a.Orchestrator.Start(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for a.Orchestrator.CheckReadiness(waitCtx) != nil {
		select {
		case <-waitCtx.Done():
			_ = a.Close()
			return nil, fmt.Errorf("wait for history: %w", waitCtx.Err())
		case <-ticker.C:
		}
	}
	return appEngine{a}, nil
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env file", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(openApp, os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, userError(err))
		os.Exit(1)
	}
}

func userError(err error) string {
	var usage usageError
	if errors.As(err, &usage) {
		return err.Error()
	}
	return domain.UserMessage(err)
}

// usageError marks flag and argument mistakes that should be printed as is.
type usageError struct{ error }

func (u usageError) Unwrap() error { return u.error }
