// Package factory provides dependency injection constructors for infrastructure components.
package factory

import (
	"context"
	"log/slog"
	"time"

	"github.com/NewsPager/internal/infra/network"
	"github.com/NewsPager/internal/infra/queue"
	"github.com/NewsPager/internal/infra/repository"
	"github.com/NewsPager/pkg/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/fx"
)

const archiveConsumerGroup = "news-archive-group"

// NewMongoClient creates a MongoDB client with lifecycle management.
// It returns nil when MongoDB is not configured.
func NewMongoClient(lc fx.Lifecycle, cfg *config.Config) (*mongo.Client, error) {
	if !cfg.MongoEnabled() {
		slog.Info("MongoDB not configured; page cache and archive run without it")
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Disconnect(ctx)
		},
	})

	return client, nil
}

// NewMongoRepository creates the MongoDB page cache and article archive.
func NewMongoRepository(client *mongo.Client, cfg *config.Config) (*repository.MongoRepository, error) {
	if client == nil {
		return nil, nil
	}
	return repository.NewMongoRepository(client, cfg.MongoDBName, cfg.MongoCacheCollection, cfg.MongoArchiveCollection, cfg.CacheTTL)
}

// NewMainKafkaProducer creates the producer for page events, or nil when Kafka is disabled.
func NewMainKafkaProducer(cfg *config.Config, lc fx.Lifecycle) *queue.KafkaProducer {
	if !cfg.KafkaEnabled() {
		slog.Info("Kafka not configured; page events are not published")
		return nil
	}

	producer := queue.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return producer.Close()
		},
	})
	return producer
}

// NewDLQProducer creates a Kafka producer for the Dead Letter Queue.
func NewDLQProducer(cfg *config.Config, lc fx.Lifecycle) *queue.KafkaProducer {
	if !cfg.KafkaEnabled() || cfg.KafkaDLQTopic == "" {
		return nil
	}

	producer := queue.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaDLQTopic)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return producer.Close()
		},
	})
	return producer
}

// NewKafkaConsumer creates the page event consumer with DLQ support.
// The archive service owns closing it.
func NewKafkaConsumer(cfg *config.Config, dlqProducer *queue.KafkaProducer) *queue.KafkaConsumer {
	if !cfg.KafkaEnabled() {
		return nil
	}
	// a nil *KafkaProducer must not become a non-nil EventProducer
	if dlqProducer == nil {
		return queue.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, archiveConsumerGroup, nil)
	}
	return queue.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, archiveConsumerGroup, dlqProducer)
}

// NewConnectivityMonitor creates the backend reachability monitor and runs it
// for the lifetime of the application.
func NewConnectivityMonitor(lc fx.Lifecycle, cfg *config.Config) *network.Monitor {
	monitor := network.NewMonitor(cfg.ConnectivityProbe, cfg.ConnectivityInterval)
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go monitor.Run(ctx)
			return nil
		},
		OnStop: func(_ context.Context) error {
			cancel()
			return nil
		},
	})
	return monitor
}
