package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/meteo-rt/internal/config"
	"github.com/couchcryptid/meteo-rt/internal/domain"
	"github.com/couchcryptid/meteo-rt/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
)

// messageWriter is the subset of kafkago.Writer used by the publisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces one message per persisted generation.
// It implements domain.EventPublisher.
type Publisher struct {
	writer  messageWriter
	topic   string
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured generations topic.
func NewPublisher(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
	return &Publisher{writer: w, topic: cfg.KafkaTopic, metrics: metrics, logger: logger}
}

// Publish writes r to the topic. Failures are logged, counted and returned;
// callers treat them as non-fatal.
func (p *Publisher) Publish(ctx context.Context, r domain.Record) error {
	msg, err := serializeToMessage(r)
	if err != nil {
		p.metrics.EventsPublished.WithLabelValues("error").Inc()
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.metrics.EventsPublished.WithLabelValues("error").Inc()
		p.logger.Warn("generation event not published", "topic", p.topic, "id", r.ID, "error", err)
		return fmt.Errorf("publish generation %s: %w", r.ID, err)
	}
	p.metrics.EventsPublished.WithLabelValues("success").Inc()
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a Record into a Kafka message keyed by its ID.
func serializeToMessage(r domain.Record) (kafkago.Message, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize generation: %w", err)
	}
	createdAt := r.Timestamp
	if createdAt == "" {
		createdAt = domain.FormatTimestamp(time.Time{})
	}
	return kafkago.Message{
		Key:   []byte(r.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "kind", Value: []byte(r.Kind)},
			{Key: "province", Value: []byte(r.Comune.Province)},
			{Key: "created_at", Value: []byte(createdAt)},
		},
	}, nil
}
