package queue

import (
	"context"
	"errors"
	"log/slog"

	"github.com/NewsPager/internal/domain"
	"github.com/NewsPager/internal/infra/metrics"
	"github.com/segmentio/kafka-go"
)

type KafkaConsumer struct {
	reader      *kafka.Reader
	dlqProducer domain.EventProducer
}

func NewKafkaConsumer(brokers []string, topic string, groupID string, dlqProducer domain.EventProducer) *KafkaConsumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	slog.Info("Kafka Consumer initialized", "brokers", brokers, "topic", topic, "group", groupID)
	return &KafkaConsumer{
		reader:      r,
		dlqProducer: dlqProducer,
	}
}

type MessageHandler func(ctx context.Context, event *domain.PageEvent) error

// Start reads until ctx is cancelled or the reader is closed.
func (c *KafkaConsumer) Start(ctx context.Context, handler MessageHandler) {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				slog.Error("Error reading kafka message", "error", err)
			}
			break
		}

		event, err := decodeEvent(m)
		if err != nil {
			slog.Error("Error decoding page event", "error", err)
			continue
		}

		slog.Debug("Received page event from Kafka", "query", event.Query, "page", event.Key, "partition", m.Partition)
		c.handle(ctx, event, handler)
	}
}

func (c *KafkaConsumer) handle(ctx context.Context, event *domain.PageEvent, handler MessageHandler) {
	if err := handler(ctx, event); err != nil {
		slog.Error("Error handling page event", "query", event.Query, "page", event.Key, "error", err)

		// Publish to Dead Letter Queue
		if c.dlqProducer != nil {
			slog.Info("Publishing failed event to DLQ", "query", event.Query, "page", event.Key)
			if dlqErr := c.dlqProducer.Publish(ctx, event); dlqErr != nil {
				slog.Error("Failed to publish to DLQ", "query", event.Query, "error", dlqErr)
			} else {
				metrics.DLQMessagesPublished.WithLabelValues(event.Query).Inc()
			}
		}
	}
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
