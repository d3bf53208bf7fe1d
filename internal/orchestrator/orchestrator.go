// Package orchestrator drives generations: it picks a comune, enriches it,
// appends the record to the history store and keeps the display state that
// the HTTP API and CLI read back.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/couchcryptid/meteo-rt/internal/domain"
	"github.com/couchcryptid/meteo-rt/internal/observability"
)

// Status is the orchestrator's position in its state machine.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusGenerating Status = "generating"
	StatusSuccess    Status = "success"
	StatusFailure    Status = "failure"
)

// State is a point-in-time copy of what a client should display.
type State struct {
	Status         Status          `json:"status"`
	Current        *domain.Record  `json:"current"`
	Error          string          `json:"error,omitempty"`
	ViewingHistory bool            `json:"viewing_history"`
	NextProvince   domain.Province `json:"next_province"`
	Pinned         bool            `json:"pinned"`
	HistorySize    int             `json:"history_size"`
}

// Orchestrator serializes generate and refresh operations over a shared
// history feed. Only one operation runs at a time; others get ErrBusy.
type Orchestrator struct {
	enricher  domain.Enricher
	store     domain.HistoryStore
	publisher domain.EventPublisher
	logger    *slog.Logger
	metrics   *observability.Metrics

	busy  atomic.Bool
	ready atomic.Bool

	mu             sync.Mutex
	rng            *rand.Rand
	status         Status
	current        *domain.Record
	errMsg         string
	viewingHistory bool
	next           domain.Province
	pinned         bool
	seeded         bool
	history        domain.History

	stopOnce    sync.Once
	unsubscribe func()
}

// New creates an Orchestrator. publisher may be nil to disable event fan-out,
// and a nil rng is replaced by a runtime-seeded source.
func New(e domain.Enricher, s domain.HistoryStore, p domain.EventPublisher, rng *rand.Rand, logger *slog.Logger, metrics *observability.Metrics) *Orchestrator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Orchestrator{
		enricher:  e,
		store:     s,
		publisher: p,
		rng:       rng,
		logger:    logger,
		metrics:   metrics,
		status:    StatusIdle,
		history:   domain.History{},
	}
}

// Start subscribes to the history store. Stop must be called to release the
// subscription.
func (o *Orchestrator) Start(ctx context.Context) error {
	unsubscribe, err := o.store.Subscribe(ctx, o.onHistory)
	if err != nil {
		return fmt.Errorf("subscribe history: %w", err)
	}
	o.mu.Lock()
	o.unsubscribe = unsubscribe
	o.mu.Unlock()
	o.logger.Info("history subscription started")
	return nil
}

// Stop releases the history subscription. It is safe to call more than once.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	unsubscribe := o.unsubscribe
	o.mu.Unlock()
	if unsubscribe == nil {
		return
	}
	o.stopOnce.Do(func() {
		unsubscribe()
		o.logger.Info("history subscription stopped")
	})
}

// Run starts the subscription and holds it until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	o.Stop()
	return nil
}

// CheckReadiness returns nil once the first history snapshot has arrived.
func (o *Orchestrator) CheckReadiness(_ context.Context) error {
	if !o.ready.Load() {
		return errors.New("history feed has not delivered a snapshot yet")
	}
	return nil
}

func (o *Orchestrator) onHistory(h domain.History) {
	o.mu.Lock()
	o.history = h
	if !o.seeded && !o.pinned {
		o.next = domain.NextProvince(h, o.rng)
	}
	if len(h) > 0 {
		o.seeded = true
	}
	o.mu.Unlock()

	o.ready.Store(true)
	o.metrics.HistoryUpdates.Inc()
	o.metrics.HistorySize.Set(float64(len(h)))
	o.logger.Debug("history updated", "size", len(h))
}

// State returns a snapshot of the display state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := State{
		Status:         o.status,
		Error:          o.errMsg,
		ViewingHistory: o.viewingHistory,
		NextProvince:   o.next,
		Pinned:         o.pinned,
		HistorySize:    len(o.history),
	}
	if o.current != nil {
		cur := *o.current
		s.Current = &cur
	}
	return s
}

// History returns one page of the current history and the total page count.
func (o *Orchestrator) History(page, size int) (domain.History, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.history.Page(page, size)
}

// PinProvince fixes the province used by the next Generate.
func (o *Orchestrator) PinProvince(p domain.Province) error {
	if domain.ComuniOf(p) == nil {
		return fmt.Errorf("%w: %q", domain.ErrUnknownProvince, p)
	}
	o.mu.Lock()
	o.next = p
	o.pinned = true
	o.mu.Unlock()
	return nil
}

// ViewHistory displays a stored record.
func (o *Orchestrator) ViewHistory(id string) (domain.Record, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	r, ok := o.history.Find(id)
	if !ok {
		return domain.Record{}, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, id)
	}
	o.current = &r
	o.viewingHistory = true
	o.errMsg = ""
	if o.status != StatusGenerating {
		o.status = StatusIdle
	}
	return r, nil
}
