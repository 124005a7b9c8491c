package app

import (
	"context"
	"fmt"
	"strconv"

	"github.com/NewsPager/internal/domain"
	"github.com/NewsPager/internal/infra/metrics"
	"github.com/NewsPager/pkg/logging"
	"golang.org/x/sync/singleflight"
)

// NewsRepository fetches single pages from the backend with a fixed page size.
// Every failure comes back as a *domain.FetchError; nothing panics through it.
type NewsRepository struct {
	client   domain.FeedClient
	apiKey   string
	pageSize int
	sampler  *logging.ErrorSampler
	group    singleflight.Group
}

// RepositoryOption configures optional NewsRepository behaviour.
type RepositoryOption func(*NewsRepository)

// WithErrorSampler replaces the default error sampler.
func WithErrorSampler(s *logging.ErrorSampler) RepositoryOption {
	return func(r *NewsRepository) {
		r.sampler = s
	}
}

func NewNewsRepository(client domain.FeedClient, apiKey string, pageSize int, opts ...RepositoryOption) *NewsRepository {
	r := &NewsRepository{
		client:   client,
		apiKey:   apiKey,
		pageSize: pageSize,
		sampler:  logging.NewErrorSampler(10, nil),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FetchPage returns page of query. Concurrent calls for the same (query, page)
// share one backend request; a caller whose ctx ends stops waiting for it.
func (r *NewsRepository) FetchPage(ctx context.Context, query string, page domain.PageKey) (*domain.FeedResponse, error) {
	key := strconv.FormatInt(int64(page), 10) + "|" + query

	// The shared call must outlive any single caller.
	shared := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (interface{}, error) {
		return r.fetch(shared, query, page)
	})

	select {
	case <-ctx.Done():
		return nil, &domain.FetchError{Kind: domain.FetchErrorTransport, Query: query, Page: page, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.FeedResponse), nil
	}
}

func (r *NewsRepository) fetch(ctx context.Context, query string, page domain.PageKey) (resp *domain.FeedResponse, err error) {
	defer func() {
		if p := recover(); p != nil {
			resp = nil
			err = r.fail(ctx, &domain.FetchError{
				Kind:  domain.FetchErrorTransport,
				Query: query,
				Page:  page,
				Err:   fmt.Errorf("backend client panicked: %v", p),
			})
		}
	}()

	resp, err = r.client.FetchFeed(ctx, domain.FeedRequest{
		Query:    query,
		APIKey:   r.apiKey,
		Page:     page,
		PageSize: r.pageSize,
	})
	if err != nil {
		return nil, r.fail(ctx, domain.AsFetchError(err, domain.FetchErrorTransport, query, page))
	}
	if resp == nil {
		return nil, r.fail(ctx, &domain.FetchError{Kind: domain.FetchErrorMalformed, Query: query, Page: page, Err: domain.ErrEmptyBody})
	}

	for _, kind := range []domain.FetchErrorKind{domain.FetchErrorTransport, domain.FetchErrorStatus, domain.FetchErrorMalformed} {
		r.sampler.Reset(string(kind))
	}
	return resp, nil
}

func (r *NewsRepository) fail(ctx context.Context, fe *domain.FetchError) error {
	metrics.RepositoryErrors.WithLabelValues(string(fe.Kind)).Inc()
	r.sampler.Error(ctx, string(fe.Kind), "Fetch page failed",
		"query", fe.Query, "page", fe.Page, "kind", fe.Kind, "status_code", fe.StatusCode, "error", fe.Err)
	return fe
}
