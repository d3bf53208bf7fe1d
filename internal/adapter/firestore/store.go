// Package firestore stores generation history in a Cloud Firestore
// collection and streams it back through query snapshot listeners.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/couchcryptid/meteo-rt/internal/domain"
	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultCollection is the collection shared with the web client.
const DefaultCollection = "cities"

// Backoff bounds for reopening a failed snapshot stream.
const (
	minResubscribe = 500 * time.Millisecond
	maxResubscribe = 30 * time.Second
)

// Store implements domain.HistoryStore on top of a Firestore collection.
// Timestamps are assigned by the Firestore server.
type Store struct {
	client     *firestore.Client
	collection string
	logger     *slog.Logger
}

// New wraps an existing Firestore client.
func New(client *firestore.Client, collection string, logger *slog.Logger) *Store {
	if collection == "" {
		collection = DefaultCollection
	}
	return &Store{client: client, collection: collection, logger: logger}
}

func (s *Store) query() firestore.Query {
	return s.client.Collection(s.collection).OrderBy("timestamp", firestore.Desc)
}

// Append creates a document keyed by the record ID.
func (s *Store) Append(ctx context.Context, r domain.Record) error {
	if err := domain.ValidateComune(r.Comune); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPersist, err)
	}
	if _, err := s.client.Collection(s.collection).Doc(r.ID).Create(ctx, toDoc(r)); err != nil {
		return fmt.Errorf("%w: create %s/%s: %w", domain.ErrPersist, s.collection, r.ID, err)
	}
	return nil
}

// List reads the full collection once, newest first.
func (s *Store) List(ctx context.Context) (domain.History, error) {
	docs, err := s.query().Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.collection, err)
	}
	return s.decode(docs), nil
}

// Subscribe opens a snapshot listener on the ordered collection. Stream
// failures are logged and the listener is reopened with exponential backoff
// until unsubscribed.
func (s *Store) Subscribe(ctx context.Context, onChange func(domain.History)) (func(), error) {
	if onChange == nil {
		return nil, errors.New("firestore subscribe: nil callback")
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		backoff := minResubscribe
		for {
			delivered, err := s.listen(ctx, onChange)
			if ctx.Err() != nil {
				return
			}
			if delivered {
				backoff = minResubscribe
			}
			s.logger.Error("history listener failed", "collection", s.collection, "retry_in", backoff, "error", err)
			if !sharedretry.SleepWithContext(ctx, backoff) {
				return
			}
			backoff = sharedretry.NextBackoff(backoff, maxResubscribe)
		}
	}()

	return func() {
		cancel()
		<-done
	}, nil
}

// listen streams snapshots until the iterator fails. delivered reports
// whether at least one snapshot reached onChange.
func (s *Store) listen(ctx context.Context, onChange func(domain.History)) (delivered bool, err error) {
	it := s.query().Snapshots(ctx)
	defer it.Stop()

	for {
		snap, err := it.Next()
		if err != nil {
			return delivered, streamErr(ctx, err)
		}
		docs, err := snap.Documents.GetAll()
		if err != nil {
			return delivered, err
		}
		onChange(s.decode(docs))
		delivered = true
	}
}

// streamErr reports a Canceled stream as the context error only when the
// context actually ended. A server-side cancellation stays a failure.
func streamErr(ctx context.Context, err error) error {
	if status.Code(err) == codes.Canceled && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *Store) decode(docs []*firestore.DocumentSnapshot) domain.History {
	h := make(domain.History, 0, len(docs))
	for _, ds := range docs {
		var d cityDoc
		if err := ds.DataTo(&d); err != nil {
			s.logger.Warn("skipping unreadable history document", "id", ds.Ref.ID, "error", err)
			continue
		}
		h = append(h, fromDoc(ds.Ref.ID, d))
	}
	return h
}
