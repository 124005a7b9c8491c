package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/NewsPager/internal/domain"
	"github.com/NewsPager/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PagingSource loads pages of one fixed query. A source is invalidated by
// creating a new one; it holds no mutable state.
type PagingSource interface {
	Load(ctx context.Context, params domain.LoadParams) domain.LoadResult
	RefreshKey(state domain.PagingState) domain.PageKey
}

// NewsPagingSource pages through the results of a single query.
type NewsPagingSource struct {
	fetcher domain.PageFetcher
	query   string
	tracer  trace.Tracer
}

func NewNewsPagingSource(fetcher domain.PageFetcher, query string) *NewsPagingSource {
	return &NewsPagingSource{
		fetcher: fetcher,
		query:   query,
		tracer:  otel.Tracer("news-pager"),
	}
}

// Load fetches the page named by params.Key, or the first page when no key is set.
// Empty pages and fetch failures come back as error results, never as panics.
func (s *NewsPagingSource) Load(ctx context.Context, params domain.LoadParams) domain.LoadResult {
	key := params.Key
	if !key.Valid() {
		key = domain.FirstPage
	}

	ctx, span := s.tracer.Start(ctx, "PagingSource.Load", trace.WithAttributes(
		attribute.String("query", s.query),
		attribute.Int64("page", int64(key)),
		attribute.String("load_type", params.Type.String()),
		attribute.Bool("invalidate", params.Invalidate),
	))
	defer span.End()

	start := time.Now()
	result := s.load(ctx, key, params.Invalidate)
	metrics.PageLoadDuration.WithLabelValues(params.Type.String()).Observe(time.Since(start).Seconds())

	if result.IsError() {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, result.Err.Error())
		metrics.PageLoads.WithLabelValues(params.Type.String(), "error").Inc()
		slog.Debug("Page load failed", "query", s.query, "page", key, "type", params.Type, "error", result.Err)
		return result
	}

	span.SetAttributes(attribute.Int("articles", len(result.Page.Data)))
	metrics.PageLoads.WithLabelValues(params.Type.String(), "success").Inc()
	return result
}

func (s *NewsPagingSource) load(ctx context.Context, key domain.PageKey, invalidate bool) domain.LoadResult {
	fetch := s.fetcher.FetchPage
	if r, ok := s.fetcher.(domain.PageRefresher); ok && invalidate {
		fetch = r.RefreshPage
	}

	resp, err := fetch(ctx, s.query, key)
	if err != nil {
		return domain.ErrorResult(err)
	}
	if len(resp.Articles) == 0 {
		return domain.ErrorResult(fmt.Errorf("query %q page %d: %w", s.query, key, domain.ErrNoResults))
	}

	prev := domain.NoKey
	if key > domain.FirstPage {
		prev = key - 1
	}
	return domain.PageResult(domain.Page{
		Key:     key,
		Data:    resp.Articles,
		PrevKey: prev,
		NextKey: key + 1,
	})
}

// RefreshKey picks the page a refresh should restart from: the one next to the
// page closest to the anchor. Anything at or before the first page restarts
// from the beginning, reported as NoKey.
func (s *NewsPagingSource) RefreshKey(state domain.PagingState) domain.PageKey {
	if !state.HasAnchor() {
		return domain.NoKey
	}
	page, ok := state.ClosestPageToPosition(state.AnchorPosition)
	if !ok {
		return domain.NoKey
	}

	key := domain.NoKey
	switch {
	case page.PrevKey.Valid():
		key = page.PrevKey + 1
	case page.NextKey.Valid():
		key = page.NextKey - 1
	}
	if key <= domain.FirstPage {
		return domain.NoKey
	}
	return key
}
