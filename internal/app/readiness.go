package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// ReadinessWaiter blocks startup until the optional MongoDB and Kafka
// dependencies answer. A nil client or empty broker list is skipped.
type ReadinessWaiter struct {
	mongoClient *mongo.Client
	brokers     []string
	topic       string
	interval    time.Duration
	dialTimeout time.Duration
}

func NewReadinessWaiter(mongoClient *mongo.Client, brokers []string, topic string) *ReadinessWaiter {
	return &ReadinessWaiter{
		mongoClient: mongoClient,
		brokers:     brokers,
		topic:       topic,
		interval:    2 * time.Second,
		dialTimeout: 2 * time.Second,
	}
}

func (w *ReadinessWaiter) WaitForDependencies(ctx context.Context) error {
	if w.mongoClient != nil {
		if err := w.waitFor(ctx, "MongoDB", w.checkMongo); err != nil {
			return err
		}
	}
	if len(w.brokers) > 0 {
		if err := w.waitFor(ctx, "Kafka", w.checkKafka); err != nil {
			return err
		}
	}
	return nil
}

// Check runs every configured probe once and reports the failures by name.
func (w *ReadinessWaiter) Check(ctx context.Context) map[string]error {
	results := make(map[string]error)
	if w.mongoClient != nil {
		results["mongodb"] = w.checkMongo(ctx)
	}
	if len(w.brokers) > 0 {
		results["kafka"] = w.checkKafka(ctx)
	}
	return results
}

// waitFor polls check without a deadline; slow dependencies delay startup
// instead of failing it.
func (w *ReadinessWaiter) waitFor(ctx context.Context, name string, check func(context.Context) error) error {
	slog.Info("Waiting for dependency", "dependency", name)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := check(ctx); err == nil {
			slog.Info("Dependency is ready", "dependency", name)
			return nil
		} else if !errors.Is(err, context.Canceled) {
			slog.Warn("Dependency not ready yet", "dependency", name, "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *ReadinessWaiter) checkMongo(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, w.dialTimeout)
	defer cancel()
	return w.mongoClient.Ping(ctx, readpref.Primary())
}

func (w *ReadinessWaiter) checkKafka(ctx context.Context) error {
	dialer := &net.Dialer{Timeout: w.dialTimeout}
	for _, broker := range w.brokers {
		conn, err := dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			return fmt.Errorf("failed to connect to broker %s: %w", broker, err)
		}
		_ = conn.Close()
	}

	conn, err := kafka.DialContext(ctx, "tcp", w.brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial kafka: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	// segmentio/kafka-go reports a missing topic as an error or as zero partitions
	partitions, err := conn.ReadPartitions(w.topic)
	if err != nil {
		return fmt.Errorf("failed to read partitions for topic %s: %w", w.topic, err)
	}
	if len(partitions) == 0 {
		return fmt.Errorf("topic %s has no partitions", w.topic)
	}
	return nil
}
