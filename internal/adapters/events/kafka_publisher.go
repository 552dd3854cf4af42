package events

import (
	"context"
	"log/slog"
	"strings"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher delivers operational events to the broker topic the
// operations tooling consumes. The outbox worker owns retries and DLQ
// handling; this publisher only writes.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher builds a writer for the given brokers and topic.
// Messages hash on the partition key, keeping one order's events on one
// partition so downstream consumers replay them in order.
func NewKafkaPublisher(brokers, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(strings.Split(brokers, ",")...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, eventType, partitionKey string, payload []byte) error {
	if partitionKey == "" {
		partitionKey = eventType
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(partitionKey),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LoggingPublisher is the local/dev stand-in when no broker is configured.
type LoggingPublisher struct {
	logger *slog.Logger
}

func NewLoggingPublisher(logger *slog.Logger) *LoggingPublisher {
	return &LoggingPublisher{logger: logger}
}

func (p *LoggingPublisher) Publish(ctx context.Context, eventType, partitionKey string, payload []byte) error {
	p.logger.InfoContext(ctx, "published event",
		"event_type", eventType,
		"partition_key", partitionKey,
		"payload", string(payload),
	)
	return nil
}
