// Package app wires configuration into a running orchestrator: history store,
// enricher, optional event publisher.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	firestoreadapter "github.com/couchcryptid/meteo-rt/internal/adapter/firestore"
	"github.com/couchcryptid/meteo-rt/internal/adapter/gemini"
	kafkaadapter "github.com/couchcryptid/meteo-rt/internal/adapter/kafka"
	"github.com/couchcryptid/meteo-rt/internal/adapter/sqlite"
	"github.com/couchcryptid/meteo-rt/internal/config"
	"github.com/couchcryptid/meteo-rt/internal/domain"
	"github.com/couchcryptid/meteo-rt/internal/observability"
	"github.com/couchcryptid/meteo-rt/internal/orchestrator"
	"google.golang.org/api/option"
)

// App holds the wired components and the resources to release on shutdown.
type App struct {
	Orchestrator *orchestrator.Orchestrator
	Store        domain.HistoryStore

	closers []func() error
	logger  *slog.Logger
}

// New builds the history store, Gemini enricher and, when KAFKA_BROKERS is
// set, the Kafka publisher. The returned App must be closed.
func New(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) (*App, error) {
	if err := cfg.RequireGemini(); err != nil {
		return nil, err
	}

	a := &App{logger: logger}

	store, err := a.openStore(ctx, cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Store = store

	enricher, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiTimeout, metrics, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	logger.Info("gemini enrichment enabled", "model", cfg.GeminiModel, "timeout", cfg.GeminiTimeout)

	var publisher domain.EventPublisher
	if cfg.KafkaEnabled {
		p := kafkaadapter.NewPublisher(cfg, metrics, logger)
		a.closers = append(a.closers, p.Close)
		publisher = p
		logger.Info("kafka event fan-out enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka event fan-out disabled")
	}

	a.Orchestrator = orchestrator.New(enricher, store, publisher, nil, logger, metrics)
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config) (domain.HistoryStore, error) {
	switch cfg.HistoryBackend {
	case config.BackendSQLite:
		s, err := sqlite.Open(cfg.SQLitePath, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		if err := s.InitSchema(ctx); err != nil {
			return nil, err
		}
		a.logger.Info("history store ready", "backend", config.BackendSQLite, "path", cfg.SQLitePath)
		return s, nil

	case config.BackendFirestore:
		var opts []option.ClientOption
		switch {
		case cfg.FirebaseCredentials != "":
			opts = append(opts, option.WithCredentialsJSON([]byte(cfg.FirebaseCredentials)))
		case cfg.FirebaseCredentialsPath != "":
			opts = append(opts, option.WithCredentialsFile(cfg.FirebaseCredentialsPath))
		}
		fb, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.FirebaseProjectID}, opts...)
		if err != nil {
			return nil, fmt.Errorf("init firebase app: %w", err)
		}
		client, err := fb.Firestore(ctx)
		if err != nil {
			return nil, fmt.Errorf("open firestore: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		a.logger.Info("history store ready",
			"backend", config.BackendFirestore,
			"project", cfg.FirebaseProjectID,
			"collection", cfg.FirestoreCollection,
		)
		return firestoreadapter.New(client, cfg.FirestoreCollection, a.logger), nil

	default:
		return nil, fmt.Errorf("unsupported history backend %q", cfg.HistoryBackend)
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

// CheckReadiness reports ready once the orchestrator has its first history
// snapshot and, for stores that support it, the backing database answers.
func (a *App) CheckReadiness(ctx context.Context) error {
	if err := a.Orchestrator.CheckReadiness(ctx); err != nil {
		return err
	}
	if p, ok := a.Store.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("history store unreachable: %w", err)
		}
	}
	return nil
}

// Close stops the orchestrator's subscription and releases every resource in
// reverse order of acquisition.
func (a *App) Close() error {
	if a.Orchestrator != nil {
		a.Orchestrator.Stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Error("close resources", "error", err)
		return err
	}
	return nil
}
