package factory

import (
	"github.com/NewsPager/internal/app"
	"github.com/NewsPager/internal/domain"
	"github.com/NewsPager/internal/infra/network"
	"github.com/NewsPager/internal/infra/queue"
	"github.com/NewsPager/internal/infra/repository"
	transport "github.com/NewsPager/internal/transport/http"
	"github.com/NewsPager/pkg/config"
	"go.mongodb.org/mongo-driver/mongo"
)

// NewSessionRegistry creates the registry every API session lives in.
func NewSessionRegistry(
	cfg *config.Config,
	fetcher domain.PageFetcher,
	monitor *network.Monitor,
	producer *queue.KafkaProducer,
) (*app.SessionRegistry, error) {
	newCache, err := NewSessionCache(cfg)
	if err != nil {
		return nil, err
	}

	sessionCfg := app.SessionConfig{
		PageSize:         cfg.PageSize,
		PrefetchDistance: cfg.PrefetchDistance,
		Debounce:         cfg.SearchDebounce,
		DefaultQuery:     cfg.DefaultQuery,
		Connected:        monitor.Connected,
		NewCache:         newCache,
	}
	if producer != nil {
		sessionCfg.OnPageLoaded = app.NewPageEventHook(producer)
	}
	return app.NewSessionRegistry(fetcher, sessionCfg), nil
}

// NewArchiveService creates the page archive, or nil unless both Kafka and
// MongoDB are configured.
func NewArchiveService(mongoRepo *repository.MongoRepository, consumer *queue.KafkaConsumer) *app.ArchiveService {
	if mongoRepo == nil || consumer == nil {
		return nil
	}
	return app.NewArchiveService(mongoRepo, consumer)
}

// NewReadinessWaiter checks whichever optional dependencies are configured.
func NewReadinessWaiter(cfg *config.Config, mongoClient *mongo.Client) *app.ReadinessWaiter {
	var brokers []string
	if cfg.KafkaEnabled() {
		brokers = cfg.KafkaBrokers
	}
	return app.NewReadinessWaiter(mongoClient, brokers, cfg.KafkaTopic)
}

// NewHandler creates the HTTP handler set.
func NewHandler(
	registry *app.SessionRegistry,
	waiter *app.ReadinessWaiter,
	monitor *network.Monitor,
) *transport.Handler {
	return transport.NewHandler(registry, waiter.Check, monitor.Connected)
}
