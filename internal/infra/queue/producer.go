package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/NewsPager/internal/domain"
	"github.com/segmentio/kafka-go"
)

type KafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{}, // Same query lands on the same partition, keeping pages in order
	}
	slog.Info("Kafka Producer initialized", "brokers", brokers, "topic", topic)
	return &KafkaProducer{writer: w}
}

func (p *KafkaProducer) Publish(ctx context.Context, event *domain.PageEvent) error {
	msg, err := encodeEvent(event)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		slog.Error("Failed to write to kafka", "error", err)
		return err
	}

	slog.Debug("Published page event to Kafka", "query", event.Query, "page", event.Key, "articles", len(event.Articles))
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

func encodeEvent(event *domain.PageEvent) (kafka.Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode page event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(event.Query),
		Value: payload,
	}, nil
}

func decodeEvent(m kafka.Message) (*domain.PageEvent, error) {
	var event domain.PageEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to decode page event: %w", err)
	}
	return &event, nil
}
