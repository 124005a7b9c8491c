package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/NewsPager/internal/domain"
	"github.com/stretchr/testify/require"
)

func testArticles(titles ...string) []domain.Article {
	articles := make([]domain.Article, len(titles))
	for i, title := range titles {
		articles[i] = domain.Article{
			Source:      domain.Source{ID: "test", Name: "Test Source"},
			Title:       title,
			URL:         "https://example.com/" + title,
			PublishedAt: time.Date(2024, 1, 1, 0, 0, i, 0, time.UTC),
		}
	}
	return articles
}

// pageArticles builds n distinct articles for page key of query.
func pageArticles(query string, key domain.PageKey, n int) []domain.Article {
	titles := make([]string, n)
	for i := range titles {
		titles[i] = fmt.Sprintf("%s-p%d-%d", query, key, i)
	}
	return testArticles(titles...)
}

// fakeFetcher serves deterministic pages and lets tests hold or fail requests.
type fakeFetcher struct {
	mu       sync.Mutex
	pageSize int
	lastPage domain.PageKey // pages after this come back empty; 0 means unlimited
	failures map[domain.PageKey]error
	gates    map[string]chan struct{}
	calls    []fetchCall
	titles   map[string]map[domain.PageKey][]string
}

type fetchCall struct {
	Query string
	Page  domain.PageKey
}

func newFakeFetcher(pageSize int) *fakeFetcher {
	return &fakeFetcher{
		pageSize: pageSize,
		failures: make(map[domain.PageKey]error),
		gates:    make(map[string]chan struct{}),
		titles:   make(map[string]map[domain.PageKey][]string),
	}
}

func gateKey(query string, page domain.PageKey) string {
	return fmt.Sprintf("%s|%d", query, page)
}

// hold makes requests for (query, page) block until release is called.
func (f *fakeFetcher) hold(query string, page domain.PageKey) func() {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[gateKey(query, page)] = ch
	f.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (f *fakeFetcher) fail(page domain.PageKey, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, page)
		return
	}
	f.failures[page] = err
}

func (f *fakeFetcher) setTitles(query string, page domain.PageKey, titles ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.titles[query] == nil {
		f.titles[query] = make(map[domain.PageKey][]string)
	}
	f.titles[query][page] = titles
}

func (f *fakeFetcher) FetchPage(ctx context.Context, query string, page domain.PageKey) (*domain.FeedResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{Query: query, Page: page})
	gate := f.gates[gateKey(query, page)]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, &domain.FetchError{Kind: domain.FetchErrorTransport, Query: query, Page: page, Err: ctx.Err()}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failures[page]; err != nil {
		return nil, err
	}
	if titles, ok := f.titles[query][page]; ok {
		return &domain.FeedResponse{Status: "ok", Articles: testArticles(titles...)}, nil
	}
	if f.lastPage != domain.NoKey && page > f.lastPage {
		return &domain.FeedResponse{Status: "ok"}, nil
	}
	return &domain.FeedResponse{Status: "ok", TotalResults: 1000, Articles: pageArticles(query, page, f.pageSize)}, nil
}

func (f *fakeFetcher) requested() []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fetchCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeFetcher) requestedPages(query string) []domain.PageKey {
	var pages []domain.PageKey
	for _, c := range f.requested() {
		if c.Query == query {
			pages = append(pages, c.Page)
		}
	}
	return pages
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}
