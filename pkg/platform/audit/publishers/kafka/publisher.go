// Package kafka streams document history events to a Kafka topic so
// downstream consumers (activity feeds, archives) can follow the trail.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "actarchive/pkg/platform/audit"
)

// Publisher produces one record per history event, keyed by document ID so a
// document's events stay ordered within a partition. Produce is asynchronous;
// delivery failures are logged from the promise callback.
type Publisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// payload is the JSON published to Kafka.
type payload struct {
	ID          string            `json:"id"`
	DocumentID  int64             `json:"document_id"`
	Action      string            `json:"action"`
	PerformedBy string            `json:"performed_by,omitempty"`
	Details     map[string]string `json:"details,omitempty"`
	RequestID   string            `json:"request_id,omitempty"`
	Timestamp   string            `json:"timestamp"`
}

// New connects a producer to brokers with topic as the default produce topic.
func New(brokers []string, topic string, logger *slog.Logger) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerLinger(5*time.Millisecond),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka: create client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{client: client, topic: topic, logger: logger}, nil
}

// EnsureTopic creates the history topic when it does not exist yet.
func (p *Publisher) EnsureTopic(ctx context.Context, partitions int32, replication int16) error {
	adm := kadm.NewClient(p.client)
	resp, err := adm.CreateTopics(ctx, partitions, replication, nil, p.topic)
	if err != nil {
		return fmt.Errorf("kafka: create topic: %w", err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("kafka: create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// Append queues the event for delivery and returns immediately.
func (p *Publisher) Append(ctx context.Context, event audit.Event) error {
	body := payload{
		ID:         event.ID.String(),
		DocumentID: int64(event.DocumentID),
		Action:     string(event.Action),
		Details:    event.Details,
		RequestID:  event.RequestID,
		Timestamp:  event.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if !event.PerformedBy.IsNil() {
		body.PerformedBy = event.PerformedBy.String()
	}
	value, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("kafka: marshal history event: %w", err)
	}

	record := &kgo.Record{
		Key:   []byte(event.DocumentID.String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(event.Action)},
		},
	}
	p.client.Produce(context.WithoutCancel(ctx), record, func(r *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("failed to deliver history event",
				"topic", r.Topic,
				"document_id", event.DocumentID,
				"action", string(event.Action),
				"error", err,
			)
		}
	})
	return nil
}

// Close flushes buffered records and closes the client.
func (p *Publisher) Close(ctx context.Context) error {
	err := p.client.Flush(ctx)
	p.client.Close()
	if err != nil {
		return fmt.Errorf("kafka: flush: %w", err)
	}
	return nil
}
