package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/meteo-rt/internal/domain"
)

// Generate draws a comune, enriches it and appends the result to history.
// The pinned province, if any, is used and then released.
func (o *Orchestrator) Generate(ctx context.Context) (domain.Record, error) {
	if !o.begin() {
		return domain.Record{}, domain.ErrBusy
	}
	defer o.end()

	o.mu.Lock()
	o.status = StatusGenerating
	o.errMsg = ""
	o.viewingHistory = false
	province := o.next
	if province == "" {
		province = domain.NextProvince(o.history, o.rng)
	}
	comune, err := domain.PickComune(o.history, province, o.rng)
	o.mu.Unlock()
	if err != nil {
		return domain.Record{}, o.fail(domain.KindInitial, "enrich_error", err)
	}

	o.logger.Info("generation started", "comune", comune.Name, "province", province)

	e, err := o.enricher.Enrich(ctx, comune.Name, province)
	if err != nil {
		return domain.Record{}, o.fail(domain.KindInitial, "enrich_error", err)
	}

	return o.complete(ctx, domain.NewRecord(comune, e, domain.KindInitial))
}

// RefreshWeather re-enriches the comune of a history record, keeping its
// teaser and trivia, and appends the result as a new refresh record.
func (o *Orchestrator) RefreshWeather(ctx context.Context, id string) (domain.Record, error) {
	if !o.begin() {
		return domain.Record{}, domain.ErrBusy
	}
	defer o.end()

	o.mu.Lock()
	orig, ok := o.history.Find(id)
	if !ok && o.current != nil && o.current.ID == id {
		orig, ok = *o.current, true
	}
	if !ok {
		o.mu.Unlock()
		return domain.Record{}, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, id)
	}
	o.status = StatusGenerating
	o.errMsg = ""
	o.mu.Unlock()

	o.logger.Info("weather refresh started", "id", id, "comune", orig.Comune.Name, "province", orig.Comune.Province)

	e, err := o.enricher.Enrich(ctx, orig.Comune.Name, orig.Comune.Province)
	if err != nil {
		return domain.Record{}, o.fail(domain.KindRefresh, "enrich_error", err)
	}
	e.Teaser = orig.Teaser
	e.Trivia = orig.Trivia

	return o.complete(ctx, domain.NewRecord(orig.Comune, e, domain.KindRefresh))
}

func (o *Orchestrator) begin() bool {
	if !o.busy.CompareAndSwap(false, true) {
		return false
	}
	o.metrics.GenerationInFlight.Set(1)
	return true
}

func (o *Orchestrator) end() {
	o.metrics.GenerationInFlight.Set(0)
	o.busy.Store(false)
}

// complete persists rec, shows it optimistically with a local timestamp and
// fans it out to the publisher.
func (o *Orchestrator) complete(ctx context.Context, rec domain.Record) (domain.Record, error) {
	start := time.Now()
	if err := o.store.Append(ctx, rec); err != nil {
		o.metrics.PersistErrors.Inc()
		if !errors.Is(err, domain.ErrPersist) {
			err = fmt.Errorf("%w: %w", domain.ErrPersist, err)
		}
		return domain.Record{}, o.fail(rec.Kind, "persist_error", err)
	}
	rec.Timestamp = domain.FormatTimestamp(domain.Now())

	o.mu.Lock()
	o.current = &rec
	o.status = StatusSuccess
	o.errMsg = ""
	o.viewingHistory = false
	if _, seen := o.history.Find(rec.ID); !seen {
		o.history = append(domain.History{rec}, o.history...)
	}
	if rec.Kind == domain.KindInitial {
		o.pinned = false
		o.next = domain.NextProvince(o.history, o.rng)
	}
	next := o.next
	o.mu.Unlock()

	o.metrics.Generations.WithLabelValues(string(rec.Kind), "success").Inc()
	o.logger.Info("generation stored",
		"id", rec.ID,
		"kind", rec.Kind,
		"comune", rec.Comune.Name,
		"province", rec.Comune.Province,
		"next_province", next,
		"persist_duration", time.Since(start),
	)

	if o.publisher != nil {
		if err := o.publisher.Publish(ctx, rec); err != nil {
			o.logger.Warn("generation event dropped", "id", rec.ID, "error", err)
		}
	}
	return rec, nil
}

// fail records err as the user-facing failure and clears the displayed record.
func (o *Orchestrator) fail(kind domain.GenerationKind, outcome string, err error) error {
	msg := domain.UserMessage(err)

	o.mu.Lock()
	o.status = StatusFailure
	o.current = nil
	o.errMsg = msg
	o.mu.Unlock()

	o.metrics.Generations.WithLabelValues(string(kind), outcome).Inc()
	o.logger.Error("generation failed", "kind", kind, "outcome", outcome, "error", err)
	return err
}
