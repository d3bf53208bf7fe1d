package orchestrator_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/meteo-rt/internal/domain"
	"github.com/couchcryptid/meteo-rt/internal/observability"
	"github.com/couchcryptid/meteo-rt/internal/orchestrator"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type enrichCall struct {
	Comune   string
	Province domain.Province
}

type mockEnricher struct {
	mu     sync.Mutex
	calls  []enrichCall
	result domain.Enrichment
	err    error

	started chan struct{}
	release chan struct{}
}

func (m *mockEnricher) Enrich(_ context.Context, comune string, province domain.Province) (domain.Enrichment, error) {
	m.mu.Lock()
	m.calls = append(m.calls, enrichCall{comune, province})
	m.mu.Unlock()
	if m.started != nil {
		m.started <- struct{}{}
	}
	if m.release != nil {
		<-m.release
	}
	return m.result, m.err
}

func (m *mockEnricher) lastCall() enrichCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[len(m.calls)-1]
}

// memStore is an in-memory HistoryStore. When notifyOnAppend is false the
// feed only delivers the initial snapshot.
type memStore struct {
	mu             sync.Mutex
	history        domain.History
	listeners      []func(domain.History)
	notifyOnAppend bool
	appendErr      error
	appended       []domain.Record
}

func (s *memStore) Subscribe(_ context.Context, onChange func(domain.History)) (func(), error) {
	s.mu.Lock()
	s.listeners = append(s.listeners, onChange)
	h := append(domain.History{}, s.history...)
	s.mu.Unlock()
	onChange(h)
	return func() {}, nil
}

func (s *memStore) Append(_ context.Context, r domain.Record) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.mu.Lock()
	r.Timestamp = domain.FormatTimestamp(time.Time{})
	s.appended = append(s.appended, r)
	s.history = append(domain.History{r}, s.history...)
	h := append(domain.History{}, s.history...)
	listeners := s.listeners
	s.mu.Unlock()
	if s.notifyOnAppend {
		for _, l := range listeners {
			l(h)
		}
	}
	return nil
}

type mockPublisher struct {
	mu        sync.Mutex
	published []domain.Record
	err       error
}

func (p *mockPublisher) Publish(_ context.Context, r domain.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, r)
	return p.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func goodEnrichment() domain.Enrichment {
	return domain.Enrichment{
		Weather: &domain.Weather{Temperature: 21.5, Sky: "sereno"},
		Sources: []domain.Source{{URI: "https://example.org", Title: "Example"}},
		Teaser:  "x",
		Trivia:  "y",
	}
}

func newOrchestrator(t *testing.T, e domain.Enricher, s domain.HistoryStore, p domain.EventPublisher, seed uint64) (*orchestrator.Orchestrator, *observability.Metrics) {
	t.Helper()
	m := observability.NewMetricsForTesting()
	o := orchestrator.New(e, s, p, rand.New(rand.NewPCG(seed, 7)), discardLogger(), m)
	require.NoError(t, o.Start(context.Background()))
	t.Cleanup(o.Stop)
	return o, m
}

func freezeClock(t *testing.T) {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })
}

func historyOf(provinces ...domain.Province) domain.History {
	h := make(domain.History, 0, len(provinces))
	for i, p := range provinces {
		h = append(h, domain.Record{
			ID:     fmt.Sprintf("seed-%d", i),
			Comune: domain.ComuniOf(p)[0],
			Teaser: "t", Trivia: "a",
			Kind: domain.KindInitial,
		})
	}
	return h
}

// --- tests ---

func TestOrchestrator_Generate_HappyPath(t *testing.T) {
	freezeClock(t)
	enricher := &mockEnricher{result: goodEnrichment()}
	store := &memStore{}
	pub := &mockPublisher{}
	o, m := newOrchestrator(t, enricher, store, pub, 1)

	require.NoError(t, o.CheckReadiness(context.Background()))

	rec, err := o.Generate(context.Background())
	require.NoError(t, err)

	call := enricher.lastCall()
	assert.Equal(t, call.Comune, rec.Comune.Name)
	assert.Equal(t, call.Province, rec.Comune.Province)
	assert.NoError(t, domain.ValidateComune(rec.Comune))
	assert.Equal(t, domain.KindInitial, rec.Kind)
	assert.Equal(t, "x", rec.Teaser)
	assert.Equal(t, "2026-04-01T12:00:00.000Z", rec.Timestamp)

	st := o.State()
	assert.Equal(t, orchestrator.StatusSuccess, st.Status)
	require.NotNil(t, st.Current)
	assert.Equal(t, rec.ID, st.Current.ID)
	assert.Empty(t, st.Error)
	assert.False(t, st.ViewingHistory)
	assert.Equal(t, 1, st.HistorySize, "optimistic insert")
	assert.NotEmpty(t, st.NextProvince)

	require.Len(t, store.appended, 1)
	require.Len(t, pub.published, 1)
	assert.Equal(t, rec.ID, pub.published[0].ID)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Generations.WithLabelValues("auto", "success")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.GenerationInFlight), 0)
}

func TestOrchestrator_Generate_NoDuplicateWhenFeedAlreadyDelivered(t *testing.T) {
	store := &memStore{notifyOnAppend: true}
	o, _ := newOrchestrator(t, &mockEnricher{result: goodEnrichment()}, store, nil, 2)

	rec, err := o.Generate(context.Background())
	require.NoError(t, err)

	page, total := o.History(0, 5)
	assert.Equal(t, 1, total)
	require.Len(t, page, 1)
	assert.Equal(t, rec.ID, page[0].ID)
}

// Scenario 1: an empty history draws from every province.
func TestOrchestrator_Generate_EmptyHistoryUsesAllProvinces(t *testing.T) {
	seen := map[domain.Province]bool{}
	for seed := range uint64(300) {
		enricher := &mockEnricher{result: goodEnrichment()}
		o, _ := newOrchestrator(t, enricher, &memStore{}, nil, seed)
		_, err := o.Generate(context.Background())
		require.NoError(t, err)
		seen[enricher.lastCall().Province] = true
	}
	assert.Len(t, seen, len(domain.Provinces()))
}

// Scenario 2: five distinct recent provinces leave only the other five.
func TestOrchestrator_Generate_ExcludesRecentProvinces(t *testing.T) {
	allowed := map[domain.Province]bool{
		domain.Grosseto: true, domain.Livorno: true, domain.MassaCarrara: true,
		domain.Pistoia: true, domain.Prato: true,
	}
	seen := map[domain.Province]bool{}
	for seed := range uint64(200) {
		enricher := &mockEnricher{result: goodEnrichment()}
		store := &memStore{history: historyOf(
			domain.Firenze, domain.Pisa, domain.Siena, domain.Lucca, domain.Arezzo,
			domain.Grosseto, domain.Prato,
		)}
		o, _ := newOrchestrator(t, enricher, store, nil, seed)
		_, err := o.Generate(context.Background())
		require.NoError(t, err)

		p := enricher.lastCall().Province
		assert.True(t, allowed[p], "province %s was recent", p)
		seen[p] = true
	}
	assert.Len(t, seen, len(allowed))
}

// Scenario 4: a JSON-encoded 500 surfaces the transient message.
func TestOrchestrator_Generate_TransientError(t *testing.T) {
	enricher := &mockEnricher{err: errors.New(`{"error":{"code":500,"status":"UNAVAILABLE","message":"backend overloaded"}}`)}
	store := &memStore{}
	o, m := newOrchestrator(t, enricher, store, nil, 3)

	_, err := o.Generate(context.Background())
	require.Error(t, err)

	st := o.State()
	assert.Equal(t, orchestrator.StatusFailure, st.Status)
	assert.Nil(t, st.Current)
	assert.Equal(t, "Si è verificato un errore temporaneo del server (UNAVAILABLE). Per favore, riprova tra qualche istante.", st.Error)
	assert.Empty(t, store.appended)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Generations.WithLabelValues("auto", "enrich_error")), 0)
}

func TestOrchestrator_Generate_ParseErrorClearsCurrent(t *testing.T) {
	enricher := &mockEnricher{result: goodEnrichment()}
	o, _ := newOrchestrator(t, enricher, &memStore{}, nil, 4)

	_, err := o.Generate(context.Background())
	require.NoError(t, err)
	require.NotNil(t, o.State().Current)

	enricher.err = domain.ErrIncompleteCulture
	_, err = o.Generate(context.Background())
	require.ErrorIs(t, err, domain.ErrIncompleteCulture)

	st := o.State()
	assert.Nil(t, st.Current)
	assert.Equal(t, domain.UserMessage(domain.ErrIncompleteCulture), st.Error)
}

func TestOrchestrator_Generate_PersistError(t *testing.T) {
	store := &memStore{appendErr: errors.New("permission denied")}
	pub := &mockPublisher{}
	o, m := newOrchestrator(t, &mockEnricher{result: goodEnrichment()}, store, pub, 5)

	_, err := o.Generate(context.Background())
	require.ErrorIs(t, err, domain.ErrPersist)

	st := o.State()
	assert.Equal(t, "Impossibile salvare il comune nella cronologia.", st.Error)
	assert.Nil(t, st.Current)
	assert.Zero(t, st.HistorySize)
	assert.Empty(t, pub.published)
	assert.InDelta(t, 1, testutil.ToFloat64(m.PersistErrors), 0)
}

func TestOrchestrator_Generate_PublishFailureIsNotFatal(t *testing.T) {
	pub := &mockPublisher{err: errors.New("broker down")}
	o, _ := newOrchestrator(t, &mockEnricher{result: goodEnrichment()}, &memStore{}, pub, 6)

	_, err := o.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusSuccess, o.State().Status)
}

func TestOrchestrator_Busy(t *testing.T) {
	enricher := &mockEnricher{
		result:  goodEnrichment(),
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	o, m := newOrchestrator(t, enricher, &memStore{}, nil, 7)

	errCh := make(chan error, 1)
	go func() {
		_, err := o.Generate(context.Background())
		errCh <- err
	}()
	<-enricher.started

	assert.Equal(t, orchestrator.StatusGenerating, o.State().Status)
	assert.InDelta(t, 1, testutil.ToFloat64(m.GenerationInFlight), 0)

	_, err := o.Generate(context.Background())
	require.ErrorIs(t, err, domain.ErrBusy)
	_, err = o.RefreshWeather(context.Background(), "anything")
	require.ErrorIs(t, err, domain.ErrBusy)

	close(enricher.release)
	require.NoError(t, <-errCh)

	enricher.started = nil
	_, err = o.Generate(context.Background())
	require.NoError(t, err)
}

func TestOrchestrator_PinProvince(t *testing.T) {
	enricher := &mockEnricher{result: goodEnrichment()}
	o, _ := newOrchestrator(t, enricher, &memStore{}, nil, 8)

	require.ErrorIs(t, o.PinProvince("Umbria"), domain.ErrUnknownProvince)

	require.NoError(t, o.PinProvince(domain.MassaCarrara))
	st := o.State()
	assert.True(t, st.Pinned)
	assert.Equal(t, domain.MassaCarrara, st.NextProvince)

	_, err := o.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.MassaCarrara, enricher.lastCall().Province)

	st = o.State()
	assert.False(t, st.Pinned, "pin is consumed")
	assert.NotEqual(t, domain.MassaCarrara, st.NextProvince)
}

func TestOrchestrator_PinSurvivesFailure(t *testing.T) {
	enricher := &mockEnricher{err: errors.New("timeout")}
	o, _ := newOrchestrator(t, enricher, &memStore{}, nil, 9)

	require.NoError(t, o.PinProvince(domain.Prato))
	_, err := o.Generate(context.Background())
	require.Error(t, err)
	assert.Equal(t, "Impossibile recuperare i dati: timeout", o.State().Error)

	st := o.State()
	assert.True(t, st.Pinned)
	assert.Equal(t, domain.Prato, st.NextProvince)
}

func TestOrchestrator_RefreshWeather(t *testing.T) {
	freezeClock(t)
	store := &memStore{history: historyOf(domain.Siena), notifyOnAppend: true}
	orig := store.history[0]
	enricher := &mockEnricher{result: domain.Enrichment{
		Weather: &domain.Weather{Temperature: 4, Sky: "Nebbia"},
		Sources: []domain.Source{{URI: "https://meteo.example", Title: "Meteo"}},
		Teaser:  "ignored",
		Trivia:  "ignored",
	}}
	o, m := newOrchestrator(t, enricher, store, nil, 10)

	rec, err := o.RefreshWeather(context.Background(), orig.ID)
	require.NoError(t, err)

	assert.Equal(t, enrichCall{orig.Comune.Name, domain.Siena}, enricher.lastCall())
	assert.NotEqual(t, orig.ID, rec.ID)
	assert.Equal(t, orig.Comune, rec.Comune)
	assert.Equal(t, domain.KindRefresh, rec.Kind)
	assert.Equal(t, "t", rec.Teaser)
	assert.Equal(t, "a", rec.Trivia)
	assert.Equal(t, &domain.Weather{Temperature: 4, Sky: "Nebbia"}, rec.Weather)

	st := o.State()
	assert.Equal(t, rec.ID, st.Current.ID)
	assert.Equal(t, 2, st.HistorySize)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Generations.WithLabelValues("manual_refresh", "success")), 0)
}

func TestOrchestrator_RefreshWeather_KeepsNextProvince(t *testing.T) {
	for seed := uint64(0); seed < 30; seed++ {
		store := &memStore{history: historyOf(domain.Siena, domain.Pisa), notifyOnAppend: true}
		o, _ := newOrchestrator(t, &mockEnricher{result: goodEnrichment()}, store, nil, seed)

		before := o.State().NextProvince
		require.NotEmpty(t, before)

		_, err := o.RefreshWeather(context.Background(), store.history[0].ID)
		require.NoError(t, err)
		assert.Equal(t, before, o.State().NextProvince, "seed %d", seed)
	}
}

func TestOrchestrator_RefreshWeather_NotFound(t *testing.T) {
	o, _ := newOrchestrator(t, &mockEnricher{result: goodEnrichment()}, &memStore{}, nil, 11)

	_, err := o.RefreshWeather(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrRecordNotFound)
	assert.Equal(t, orchestrator.StatusIdle, o.State().Status)
}

func TestOrchestrator_ViewHistory(t *testing.T) {
	store := &memStore{history: historyOf(domain.Pisa, domain.Lucca)}
	o, _ := newOrchestrator(t, &mockEnricher{err: errors.New("boom")}, store, nil, 12)

	_, err := o.Generate(context.Background())
	require.Error(t, err)
	require.NotEmpty(t, o.State().Error)

	r, err := o.ViewHistory("seed-1")
	require.NoError(t, err)
	assert.Equal(t, domain.Lucca, r.Comune.Province)

	st := o.State()
	assert.True(t, st.ViewingHistory)
	assert.Empty(t, st.Error)
	assert.Equal(t, orchestrator.StatusIdle, st.Status)
	assert.Equal(t, "seed-1", st.Current.ID)

	_, err = o.ViewHistory("nope")
	require.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestOrchestrator_History_Paging(t *testing.T) {
	provinces := domain.Provinces()
	store := &memStore{history: historyOf(append(provinces, provinces[:2]...)...)}
	o, _ := newOrchestrator(t, &mockEnricher{}, store, nil, 13)

	page, total := o.History(0, 0)
	assert.Len(t, page, domain.DefaultPageSize)
	assert.Equal(t, 3, total)

	page, _ = o.History(2, 5)
	assert.Len(t, page, 2)

	page, _ = o.History(3, 5)
	assert.Empty(t, page)
}

func TestOrchestrator_NotReadyBeforeStart(t *testing.T) {
	o := orchestrator.New(&mockEnricher{}, &memStore{}, nil, nil, discardLogger(), observability.NewMetricsForTesting())
	require.Error(t, o.CheckReadiness(context.Background()))
	o.Stop()
}

func TestOrchestrator_Run(t *testing.T) {
	m := observability.NewMetricsForTesting()
	store := &memStore{history: historyOf(domain.Arezzo)}
	o := orchestrator.New(&mockEnricher{}, store, nil, nil, discardLogger(), m)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	require.Eventually(t, func() bool { return o.CheckReadiness(ctx) == nil }, time.Second, 5*time.Millisecond)
	assert.InDelta(t, 1, testutil.ToFloat64(m.HistorySize), 0)
	assert.Equal(t, 1, o.State().HistorySize)

	cancel()
	require.NoError(t, <-done)
}
