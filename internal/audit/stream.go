package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"agentvault/internal/vault/models"
)

// EventStream fans decision events out to dashboard-style consumers. The
// stream carries the same event vocabulary the original ledger emitted; it
// is observational only and publish failures never surface to callers.
type EventStream interface {
	Publish(ctx context.Context, event models.Event)
	Close()
}

// KafkaStream publishes events to a Kafka-compatible broker, keyed by vault
// id so one vault's events stay ordered within a partition.
type KafkaStream struct {
	client *kgo.Client
	logger *slog.Logger
}

// NewKafkaStream connects to the brokers and produces to topic.
func NewKafkaStream(brokers []string, topic string, logger *slog.Logger) (*KafkaStream, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &KafkaStream{client: client, logger: logger}, nil
}

// Publish produces the event fire-and-forget. Delivery errors are logged in
// the produce callback and otherwise dropped.
func (s *KafkaStream) Publish(ctx context.Context, event models.Event) {
	value, err := json.Marshal(event)
	if err != nil {
		s.logger.WarnContext(ctx, "event encode failed", "event", event.Name, "error", err)
		return
	}
	record := &kgo.Record{
		Key:   []byte(event.VaultID.String()),
		Value: value,
	}
	s.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			s.logger.Warn("event publish failed", "event", event.Name, "error", err)
		}
	})
}

func (s *KafkaStream) Close() {
	s.client.Close()
}
