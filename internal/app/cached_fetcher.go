package app

import (
	"context"
	"log/slog"

	"github.com/NewsPager/internal/domain"
	"github.com/NewsPager/internal/infra/metrics"
)

// CachedFetcher puts a page cache in front of another fetcher. Cache errors
// are logged and treated as misses; they never fail a fetch.
type CachedFetcher struct {
	next  domain.PageFetcher
	cache domain.PageCache
	name  string
}

func NewCachedFetcher(next domain.PageFetcher, name string, cache domain.PageCache) *CachedFetcher {
	return &CachedFetcher{next: next, cache: cache, name: name}
}

func (f *CachedFetcher) FetchPage(ctx context.Context, query string, page domain.PageKey) (*domain.FeedResponse, error) {
	if cached, ok := f.lookup(ctx, query, page); ok {
		return cached, nil
	}
	return f.fetch(ctx, query, page)
}

// RefreshPage implements domain.PageRefresher.
func (f *CachedFetcher) RefreshPage(ctx context.Context, query string, page domain.PageKey) (*domain.FeedResponse, error) {
	if err := f.cache.DropQuery(ctx, query); err != nil {
		slog.Warn("Page cache drop failed", "cache", f.name, "query", query, "error", err)
	}
	metrics.CacheLookups.WithLabelValues(f.name, "bypass").Inc()
	return f.fetch(ctx, query, page)
}

func (f *CachedFetcher) fetch(ctx context.Context, query string, page domain.PageKey) (*domain.FeedResponse, error) {
	resp, err := f.next.FetchPage(ctx, query, page)
	if err != nil {
		return nil, err
	}
	f.store(ctx, query, page, resp)
	return resp, nil
}

func (f *CachedFetcher) lookup(ctx context.Context, query string, page domain.PageKey) (*domain.FeedResponse, bool) {
	resp, ok, err := f.cache.GetPage(ctx, query, page)
	if err != nil {
		slog.Warn("Page cache read failed", "cache", f.name, "query", query, "page", page, "error", err)
		metrics.CacheLookups.WithLabelValues(f.name, "error").Inc()
		return nil, false
	}
	if !ok {
		metrics.CacheLookups.WithLabelValues(f.name, "miss").Inc()
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues(f.name, "hit").Inc()
	return resp, true
}

func (f *CachedFetcher) store(ctx context.Context, query string, page domain.PageKey, resp *domain.FeedResponse) {
	// Empty pages are failures for the pager, so they are never cached
	if resp == nil || len(resp.Articles) == 0 {
		return
	}
	if err := f.cache.PutPage(ctx, query, page, resp); err != nil {
		slog.Warn("Page cache write failed", "cache", f.name, "query", query, "page", page, "error", err)
	}
}
