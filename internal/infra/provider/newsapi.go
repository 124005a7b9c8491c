package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/NewsPager/internal/domain"
	"github.com/NewsPager/internal/infra/metrics"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	everythingPath = "/v2/everything"
	maxBodyBytes   = 5 << 20
)

// Options tunes the NewsAPI client. Zero values fall back to defaults.
type Options struct {
	Timeout      time.Duration
	RateLimitRPS float64
	Burst        int
	MaxRetries   int
	Backoff      time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.RateLimitRPS <= 0 {
		o.RateLimitRPS = 5
	}
	if o.Burst <= 0 {
		o.Burst = 1
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	} else if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = 500 * time.Millisecond
	}
	return o
}

// NewsAPIClient talks to the NewsAPI /v2/everything endpoint.
type NewsAPIClient struct {
	baseURL     string
	client      *http.Client
	transformer domain.Transformer
	cb          *gobreaker.CircuitBreaker
	limiter     *rate.Limiter
	maxRetries  int
	backoff     time.Duration
}

func NewNewsAPIClient(baseURL string, transformer domain.Transformer, opts Options) *NewsAPIClient {
	opts = opts.withDefaults()

	cbSettings := gobreaker.Settings{
		Name:        "newsapi",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Trip if we have 3 consecutive failures
			return counts.ConsecutiveFailures >= 3
		},
		// Client errors are the caller's fault, not the backend's
		IsSuccessful: func(err error) bool {
			var fe *domain.FetchError
			if errors.As(err, &fe) && fe.Kind == domain.FetchErrorStatus {
				return fe.StatusCode < http.StatusInternalServerError
			}
			return err == nil
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("CircuitBreaker state changed", "name", name, "from", from, "to", to)
			metrics.BreakerState.Set(float64(to))
		},
	}

	return &NewsAPIClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: opts.Timeout,
		},
		transformer: transformer,
		cb:          gobreaker.NewCircuitBreaker(cbSettings),
		limiter:     rate.NewLimiter(rate.Limit(opts.RateLimitRPS), opts.Burst),
		maxRetries:  opts.MaxRetries,
		backoff:     opts.Backoff,
	}
}

// FetchFeed requests one page. Every failure is returned as *domain.FetchError.
func (c *NewsAPIClient) FetchFeed(ctx context.Context, req domain.FeedRequest) (*domain.FeedResponse, error) {
	endpoint, err := c.buildURL(req)
	if err != nil {
		return nil, &domain.FetchError{Kind: domain.FetchErrorTransport, Query: req.Query, Page: req.Page, Err: err}
	}

	start := time.Now()
	body, err := c.fetchBody(ctx, endpoint, req)
	metrics.BackendRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, domain.AsFetchError(err, domain.FetchErrorTransport, req.Query, req.Page)
	}

	resp, err := c.transformer.Transform(bytes.NewReader(body))
	if err != nil {
		return nil, &domain.FetchError{
			Kind:  domain.FetchErrorMalformed,
			Query: req.Query,
			Page:  req.Page,
			Err:   fmt.Errorf("failed to transform response: %w", err),
		}
	}
	return resp, nil
}

func (c *NewsAPIClient) buildURL(req domain.FeedRequest) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	u = u.JoinPath(everythingPath)

	q := u.Query()
	q.Set("q", req.Query)
	q.Set("apiKey", req.APIKey)
	q.Set("page", strconv.FormatInt(int64(req.Page), 10))
	q.Set("pageSize", strconv.Itoa(req.PageSize))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *NewsAPIClient) fetchBody(ctx context.Context, endpoint string, req domain.FeedRequest) ([]byte, error) {
	backoff := c.backoff

	// Execute with Circuit Breaker and Retries
	result, err := c.cb.Execute(func() (interface{}, error) {
		var lastErr error
		for i := 0; i <= c.maxRetries; i++ {
			if i > 0 {
				slog.Info("Retrying request", "query", req.Query, "page", req.Page, "attempt", i, "max_retries", c.maxRetries)
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(backoff):
					backoff *= 2 // Exponential backoff
				}
			}

			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}

			body, retry, err := c.do(ctx, endpoint, req)
			if err == nil {
				return body, nil
			}
			if !retry {
				return nil, err
			}
			lastErr = err
		}
		return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// do performs a single attempt and reports whether a failure is worth retrying.
func (c *NewsAPIClient) do(ctx context.Context, endpoint string, req domain.FeedRequest) ([]byte, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		slog.Warn("Request failed", "query", req.Query, "page", req.Page, "error", err)
		return nil, true, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("Failed to close response body", "error", err)
		}
	}()

	metrics.BackendResponses.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= http.StatusInternalServerError {
		slog.Warn("Server error", "query", req.Query, "page", req.Page, "status_code", resp.StatusCode)
		return nil, true, &domain.FetchError{Kind: domain.FetchErrorStatus, StatusCode: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Don't retry on 4xx (client error), just fail
		return nil, false, &domain.FetchError{Kind: domain.FetchErrorStatus, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read body: %w", err)
	}
	return body, false, nil
}
