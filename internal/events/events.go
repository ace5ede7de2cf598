// Package events streams feedback queue changes to Kafka. The stream is
// a best-effort side channel: publish failures are logged and counted,
// never surfaced to the operation that produced the event.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	id "ralphbot/pkg/domain"
)

// EventType names what happened to a queue entry.
type EventType string

const (
	TypeSubmitted    EventType = "feedback.submitted"
	TypeTransitioned EventType = "feedback.transitioned"
	TypeVoted        EventType = "feedback.voted"
	TypeRescored     EventType = "feedback.rescored"
	TypeOverridden   EventType = "feedback.duplicate_overridden"
)

// QueueEvent is the wire shape on the feedback events topic. Events are
// keyed by feedback ID so per-entry ordering survives partitioning.
type QueueEvent struct {
	Type       EventType     `json:"type"`
	FeedbackID id.FeedbackID `json:"feedback_id"`
	// Actor is the operator or user who caused the event, empty for
	// system-driven changes like the age sweep.
	Actor    string    `json:"actor,omitempty"`
	From     string    `json:"from,omitempty"`
	To       string    `json:"to,omitempty"`
	Priority float64   `json:"priority"`
	At       time.Time `json:"at"`
}

// Publisher emits queue events.
type Publisher interface {
	Publish(ctx context.Context, event QueueEvent) error
}

// Producer is the subset of the Kafka client the publisher needs.
type Producer interface {
	Produce(ctx context.Context, key string, value []byte) error
}

type kafkaPublisher struct {
	producer Producer
	logger   *slog.Logger

	published prometheus.Counter
	failed    prometheus.Counter
}

// NewKafkaPublisher emits events through the given producer.
func NewKafkaPublisher(producer Producer, logger *slog.Logger) Publisher {
	return &kafkaPublisher{
		producer: producer,
		logger:   logger,
		published: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ralphbot_queue_events_published_total",
			Help: "Queue events successfully handed to Kafka",
		}),
		failed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ralphbot_queue_events_failed_total",
			Help: "Queue events dropped because the Kafka produce failed",
		}),
	}
}

func (p *kafkaPublisher) Publish(ctx context.Context, event QueueEvent) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		p.failed.Inc()
		return err
	}
	if err := p.producer.Produce(ctx, event.FeedbackID.String(), payload); err != nil {
		p.failed.Inc()
		p.logger.WarnContext(ctx, "queue event publish failed",
			slog.String("type", string(event.Type)),
			slog.String("feedback_id", event.FeedbackID.String()),
			slog.Any("error", err),
		)
		return err
	}
	p.published.Inc()
	return nil
}

type noopPublisher struct {
	logger *slog.Logger
}

// NewNoopPublisher debug-logs events when no brokers are configured.
func NewNoopPublisher(logger *slog.Logger) Publisher {
	return &noopPublisher{logger: logger}
}

func (p *noopPublisher) Publish(ctx context.Context, event QueueEvent) error {
	p.logger.DebugContext(ctx, "queue event dropped, kafka not configured",
		slog.String("type", string(event.Type)),
		slog.String("feedback_id", event.FeedbackID.String()),
	)
	return nil
}
