// Package audit publishes provenance audit events to Kafka. Publishing is
// fire-and-forget: an unavailable broker degrades the audit trail, never the
// save path.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	"flatmaps/internal/platform/config"
)

// Event records one successful annotation save: who wrote, which feature,
// and the version transition.
type Event struct {
	ID          uuid.UUID `json:"id"`
	FeatureID   string    `json:"feature_id"`
	Author      string    `json:"author"`
	FromVersion int64     `json:"from_version"`
	ToVersion   int64     `json:"to_version"`
	CommentIDs  []string  `json:"comment_ids"`
	Timestamp   time.Time `json:"timestamp"`
}

// Producer is the kgo surface the publisher needs; a fake satisfies it in
// tests.
type Producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Close()
}

// Publisher emits audit events asynchronously, keyed by feature so an
// individual feature's trail stays ordered within its partition.
type Publisher struct {
	producer Producer
	topic    string
	logger   *slog.Logger
}

// New builds a publisher over an existing producer.
func New(producer Producer, topic string, logger *slog.Logger) *Publisher {
	return &Publisher{producer: producer, topic: topic, logger: logger}
}

// Connect dials Kafka and returns a publisher, or nil when no brokers are
// configured (auditing disabled).
func Connect(cfg config.KafkaConfig, logger *slog.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
	)
	if err != nil {
		return nil, err
	}
	return New(client, cfg.AuditTopic, logger), nil
}

// Emit queues the event for delivery. Nil-safe so callers need no wiring
// checks when auditing is disabled.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if p == nil {
		return
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	value, err := json.Marshal(event)
	if err != nil {
		p.logger.ErrorContext(ctx, "encode audit event", "error", err)
		return
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.FeatureID),
		Value: value,
	}
	p.producer.Produce(context.WithoutCancel(ctx), record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("audit event delivery failed",
				"feature_id", event.FeatureID,
				"error", err,
			)
		}
	})
}

// Close flushes and closes the producer.
func (p *Publisher) Close() {
	if p != nil {
		p.producer.Close()
	}
}
