// Package kafka publishes terminal-verdict events to a Kafka topic so the
// web layer (or anything else) can react without polling the database.
package kafka

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fairyhunter13/vjudge/internal/domain"
)

// Publisher implements domain.VerdictPublisher over franz-go.
// Publishing is fire-and-forget; a broker outage never blocks a commit.
type Publisher struct {
	client *kgo.Client
	topic  string
}

// NewPublisher connects to the brokers and binds to topic.
func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=events.kafka: no seed brokers provided")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequestRetries(10),
	)
	if err != nil {
		return nil, fmt.Errorf("op=events.kafka: %w", err)
	}
	return &Publisher{client: client, topic: topic}, nil
}

// Publish sends one verdict event asynchronously.
func (p *Publisher) Publish(ctx domain.Context, ev domain.VerdictEvent) {
	if ev.EventID == "" {
		ev.EventID = ulid.Make().String()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		slog.Error("verdict event marshal failed", slog.Any("error", err))
		return
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(ev.OJName),
		Value: b,
	}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			slog.Warn("verdict event publish failed",
				slog.Int64("submission_id", ev.ID),
				slog.Any("error", err))
		}
	})
}

// Close flushes and tears down the Kafka client.
func (p *Publisher) Close() { p.client.Close() }
