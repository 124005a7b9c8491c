package factory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/NewsPager/internal/app"
	"github.com/NewsPager/internal/domain"
	"github.com/NewsPager/internal/infra/cache"
	"github.com/NewsPager/internal/infra/provider"
	"github.com/NewsPager/internal/infra/repository"
	"github.com/NewsPager/internal/infra/transformer"
	"github.com/NewsPager/pkg/config"
	"go.uber.org/fx"
)

// NewFeedClient creates the NewsAPI backend client.
func NewFeedClient(cfg *config.Config) (domain.FeedClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.NewsAPIKey == "" {
		slog.Warn("NEWS_API_KEY is empty; the backend will reject requests")
	}

	client := provider.NewNewsAPIClient(cfg.NewsAPIURL, transformer.NewNewsAPITransformer(), provider.Options{
		Timeout:      cfg.HTTPTimeout,
		RateLimitRPS: cfg.RateLimitRPS,
	})
	slog.Info("Registered backend", "url", cfg.NewsAPIURL, "rate_limit_rps", cfg.RateLimitRPS)
	return client, nil
}

// NewNewsRepository creates the query repository over the backend client.
func NewNewsRepository(cfg *config.Config, client domain.FeedClient) (*app.NewsRepository, error) {
	if client == nil {
		return nil, errors.New("feed client is nil")
	}
	slog.Info("Query repository ready", "page_size", cfg.PageSize)
	return app.NewNewsRepository(client, cfg.NewsAPIKey, cfg.PageSize), nil
}

// NewPageFetcher puts the process-wide cache tier in front of the repository.
// The memory backend is per session instead, see NewSessionRegistry.
func NewPageFetcher(
	lc fx.Lifecycle,
	cfg *config.Config,
	repo *app.NewsRepository,
	mongoRepo *repository.MongoRepository,
) (domain.PageFetcher, error) {
	switch cfg.CacheBackend {
	case config.CacheMongo:
		if mongoRepo == nil {
			return nil, errors.New("mongo cache selected but MongoDB is not configured")
		}
		slog.Info("Shared page cache enabled", "cache", cfg.CacheBackend, "ttl", cfg.CacheTTL)
		return app.NewCachedFetcher(repo, config.CacheMongo, mongoRepo), nil
	case config.CacheRedis:
		ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout)
		defer cancel()
		pages, err := cache.NewRedisPageCache(ctx, cfg.RedisURL, "", cfg.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect page cache: %w", err)
		}
		lc.Append(fx.Hook{
			OnStop: func(_ context.Context) error {
				return pages.Close()
			},
		})
		slog.Info("Shared page cache enabled", "cache", cfg.CacheBackend, "ttl", cfg.CacheTTL)
		return app.NewCachedFetcher(repo, config.CacheRedis, pages), nil
	}
	return repo, nil
}

// NewSessionCache returns the per-session cache constructor, or nil unless the
// memory backend is selected.
func NewSessionCache(cfg *config.Config) (func() app.ScopedCache, error) {
	if cfg.CacheBackend != config.CacheMemory {
		return nil, nil
	}
	// fail at startup rather than on the first session
	if _, err := cache.NewMemoryPageCache(cfg.CacheSize, cfg.CacheTTL); err != nil {
		return nil, fmt.Errorf("failed to create page cache: %w", err)
	}
	slog.Info("Per-session page cache enabled", "size", cfg.CacheSize, "ttl", cfg.CacheTTL)
	return func() app.ScopedCache {
		pages, err := cache.NewMemoryPageCache(cfg.CacheSize, cfg.CacheTTL)
		if err != nil {
			return nil
		}
		return pages
	}, nil
}
