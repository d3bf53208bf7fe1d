// Package sqlite is a local, single-process history store backed by an
// embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/couchcryptid/meteo-rt/internal/domain"

	_ "modernc.org/sqlite"
)

// Store implements domain.HistoryStore. Subscribers are notified in-process
// after every successful Append.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	mu     sync.Mutex
	nextID int
	subs   map[int]chan struct{}
}

// Open initializes the database connection, creating directories as needed.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &Store{db: db, logger: logger, subs: make(map[int]chan struct{})}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InitSchema ensures the generations table exists.
func (s *Store) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS generations (
			id TEXT NOT NULL UNIQUE,
			comune_nome TEXT NOT NULL,
			comune_provincia TEXT NOT NULL,
			comune_sigla TEXT NOT NULL,
			temperatura REAL,
			stato_cielo TEXT,
			sources TEXT NOT NULL DEFAULT '[]',
			descrizione TEXT NOT NULL,
			aneddoto TEXT NOT NULL,
			generation_type TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_generations_created_at ON generations(created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Append stores r with a timestamp taken from the domain clock.
func (s *Store) Append(ctx context.Context, r domain.Record) error {
	if err := domain.ValidateComune(r.Comune); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPersist, err)
	}
	sources, err := json.Marshal(domain.DedupeSources(r.Sources))
	if err != nil {
		return fmt.Errorf("%w: encode sources: %w", domain.ErrPersist, err)
	}

	var temp sql.NullFloat64
	var sky sql.NullString
	if r.Weather != nil {
		temp = sql.NullFloat64{Float64: r.Weather.Temperature, Valid: true}
		sky = sql.NullString{String: r.Weather.Sky, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO generations (
		id, comune_nome, comune_provincia, comune_sigla, temperatura, stato_cielo,
		sources, descrizione, aneddoto, generation_type, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Comune.Name, string(r.Comune.Province), r.Comune.Code, temp, sky,
		string(sources), r.Teaser, r.Trivia, string(r.Kind), domain.FormatTimestamp(domain.Now()),
	)
	if err != nil {
		return fmt.Errorf("%w: insert generation %s: %w", domain.ErrPersist, r.ID, err)
	}

	s.notify()
	return nil
}

// List returns the full history, newest first.
func (s *Store) List(ctx context.Context) (domain.History, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		id, comune_nome, comune_provincia, comune_sigla, temperatura, stato_cielo,
		sources, descrizione, aneddoto, generation_type, created_at
		FROM generations ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("query generations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	history := domain.History{}
	for rows.Next() {
		var (
			r       domain.Record
			prov    string
			temp    sql.NullFloat64
			sky     sql.NullString
			sources string
			kind    string
		)
		if err := rows.Scan(&r.ID, &r.Comune.Name, &prov, &r.Comune.Code, &temp, &sky,
			&sources, &r.Teaser, &r.Trivia, &kind, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		r.Comune.Province = domain.Province(prov)
		r.Kind = domain.GenerationKind(kind)
		if temp.Valid && sky.Valid {
			r.Weather = &domain.Weather{Temperature: temp.Float64, Sky: sky.String}
		}
		if err := json.Unmarshal([]byte(sources), &r.Sources); err != nil {
			s.logger.Warn("discarding unreadable sources", "id", r.ID, "error", err)
			r.Sources = nil
		}
		history = append(history, domain.NormalizeRecord(r))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate generations: %w", err)
	}
	return history, nil
}

// Subscribe delivers the current history and then a fresh snapshot after
// every Append. Bursts of appends may coalesce into one delivery.
func (s *Store) Subscribe(ctx context.Context, onChange func(domain.History)) (func(), error) {
	if onChange == nil {
		return nil, errors.New("sqlite subscribe: nil callback")
	}

	signal := make(chan struct{}, 1)
	signal <- struct{}{}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = signal
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-signal:
			}
			h, err := s.List(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Error("history subscription read failed", "error", err)
				continue
			}
			onChange(h)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			cancel()
			<-done
		})
	}, nil
}

func (s *Store) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
