package domain

import "context"

// Enricher fetches weather and trivia for a comune from an external service.
type Enricher interface {
	Enrich(ctx context.Context, comune string, province Province) (Enrichment, error)
}

// HistoryStore is an append-only generation log with a real-time feed.
type HistoryStore interface {
	// Subscribe calls onChange with the full history, newest first, once
	// immediately and again after every change. The returned function
	// releases the subscription and must be called by the subscriber.
	Subscribe(ctx context.Context, onChange func(History)) (unsubscribe func(), err error)

	// Append durably stores r. The store assigns the timestamp; any
	// r.Timestamp is ignored. Failures wrap ErrPersist.
	Append(ctx context.Context, r Record) error
}

// EventPublisher fans persisted records out to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, r Record) error
}
