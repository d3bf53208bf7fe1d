package domain

import (
	"time"

	"github.com/google/uuid"
)

// GenerationKind tags how a record was produced. The stored values match the
// documents written by the legacy web client.
type GenerationKind string

const (
	KindInitial GenerationKind = "auto"
	KindRefresh GenerationKind = "manual_refresh"
)

// TimestampLayout is the single textual form used for record timestamps.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Weather is a best-effort weather snapshot. A nil *Weather means no reliable
// data was found.
type Weather struct {
	Temperature float64 `json:"temperatura"`
	Sky         string  `json:"statoCielo"`
}

// Source is a grounding citation returned by the enrichment service.
type Source struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// Record is one generation. Records are immutable once created.
type Record struct {
	ID        string         `json:"id"`
	Comune    Comune         `json:"comune"`
	Weather   *Weather       `json:"weather"`
	Sources   []Source       `json:"sources"`
	Teaser    string         `json:"descrizione"`
	Trivia    string         `json:"aneddotoApprofondito"`
	Timestamp string         `json:"timestamp"`
	Kind      GenerationKind `json:"generationType,omitempty"`
}

// History is an ordered list of records, newest first.
type History []Record

// Find returns the record with the given ID.
func (h History) Find(id string) (Record, bool) {
	for _, r := range h {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}

// Page returns the zero-based page of the given size and the total page count.
func (h History) Page(page, size int) (History, int) {
	if size <= 0 {
		size = DefaultPageSize
	}
	total := len(h) / size
	if len(h)%size != 0 {
		total++
	}
	if page < 0 || page >= total {
		return History{}, total
	}
	end := min((page+1)*size, len(h))
	return h[page*size : end], total
}

// DefaultPageSize matches the history list shown by the web client.
const DefaultPageSize = 5

// Enrichment is what the enrichment service returns for a comune.
type Enrichment struct {
	Weather *Weather
	Sources []Source
	Teaser  string
	Trivia  string
}

// NewRecord builds a record with a fresh ID and no timestamp; the store
// assigns the authoritative one.
func NewRecord(c Comune, e Enrichment, kind GenerationKind) Record {
	sources := e.Sources
	if sources == nil {
		sources = []Source{}
	}
	return Record{
		ID:      uuid.NewString(),
		Comune:  c,
		Weather: e.Weather,
		Sources: sources,
		Teaser:  e.Teaser,
		Trivia:  e.Trivia,
		Kind:    kind,
	}
}

// FormatTimestamp renders t in TimestampLayout. Zero times become the current
// clock time.
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		t = clock.Now()
	}
	return t.UTC().Format(TimestampLayout)
}

// Now returns the current time from the package clock.
func Now() time.Time {
	return clock.Now()
}

// UnknownComune is shown for stored records that lack comune data.
var UnknownComune = Comune{Name: "Sconosciuto", Province: "Sconosciuta", Code: "??"}

// NormalizeRecord fills the defaults expected by display code for a record
// read back from a store.
func NormalizeRecord(r Record) Record {
	if r.Comune.Name == "" {
		r.Comune = UnknownComune
	}
	if r.Sources == nil {
		r.Sources = []Source{}
	}
	if r.Timestamp == "" {
		r.Timestamp = FormatTimestamp(time.Time{})
	}
	return r
}

// DedupeSources drops repeated URIs, keeping the first occurrence, and fills
// empty titles with the URI.
func DedupeSources(in []Source) []Source {
	out := make([]Source, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if s.URI == "" {
			continue
		}
		if _, ok := seen[s.URI]; ok {
			continue
		}
		seen[s.URI] = struct{}{}
		if s.Title == "" {
			s.Title = s.URI
		}
		out = append(out, s)
	}
	return out
}
