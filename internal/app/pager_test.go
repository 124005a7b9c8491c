package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NewsPager/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPagerPageSize = 5

func newTestPager(t *testing.T, fetcher *fakeFetcher, query string, cfg PagerConfig) *Pager {
	t.Helper()
	if cfg.PageSize == 0 {
		cfg.PageSize = testPagerPageSize
	}
	if cfg.PrefetchDistance == 0 {
		cfg.PrefetchDistance = 2
	}
	p := NewPager(query, func() PagingSource { return NewNewsPagingSource(fetcher, query) }, cfg)
	t.Cleanup(func() {
		p.Close()
		p.Wait()
	})
	return p
}

func pageKeys(s Snapshot) []domain.PageKey {
	keys := make([]domain.PageKey, len(s.Pages))
	for i, p := range s.Pages {
		keys[i] = p.Key
	}
	return keys
}

func waitForItems(t *testing.T, p *Pager, n int) {
	t.Helper()
	waitFor(t, func() bool {
		s := p.Snapshot()
		return s.ItemCount == n && s.LoadStates.Append.Status != domain.Loading &&
			s.LoadStates.Prepend.Status != domain.Loading && s.LoadStates.Refresh.Status != domain.Loading
	}, "pager did not settle")
}

func TestPager_AppendsPagesInOrder(t *testing.T) {
	fetcher := newFakeFetcher(testPagerPageSize)
	fetcher.lastPage = 3
	p := newTestPager(t, fetcher, "movies", PagerConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Subscribe(ctx)

	waitForItems(t, p, 5)
	assert.Equal(t, domain.NotLoadingState(true), p.Snapshot().LoadStates.Prepend)

	for _, want := range []int{10, 15} {
		_, ok := p.Get(want - 6)
		require.True(t, ok)
		waitForItems(t, p, want)
	}

	// page 4 is empty, which surfaces as an append error
	_, ok := p.Get(14)
	require.True(t, ok)
	waitFor(t, func() bool {
		return p.Snapshot().LoadStates.Append.Status == domain.LoadFailed
	}, "empty page should fail the append")

	s := p.Snapshot()
	assert.ErrorIs(t, s.LoadStates.Append.Err, domain.ErrNoResults)
	assert.Equal(t, []domain.PageKey{1, 2, 3}, pageKeys(s))

	var want []domain.Article
	for key := domain.PageKey(1); key <= 3; key++ {
		want = append(want, pageArticles("movies", key, testPagerPageSize)...)
	}
	assert.Equal(t, want, s.Items())
	assert.Equal(t, []domain.PageKey{1, 2, 3, 4}, fetcher.requestedPages("movies"))
}

func TestPager_GetOutOfRange(t *testing.T) {
	fetcher := newFakeFetcher(testPagerPageSize)
	p := newTestPager(t, fetcher, "movies", PagerConfig{})
	p.Start()
	waitForItems(t, p, 5)

	_, ok := p.Get(-1)
	assert.False(t, ok)
	_, ok = p.Get(5)
	assert.False(t, ok)

	article, ok := p.Get(2)
	require.True(t, ok)
	assert.Equal(t, "movies-p1-2", article.Title)
}

func TestPager_OneAppendInFlight(t *testing.T) {
	fetcher := newFakeFetcher(testPagerPageSize)
	release := fetcher.hold("movies", 2)
	p := newTestPager(t, fetcher, "movies", PagerConfig{})
	p.Start()
	waitForItems(t, p, 5)

	for i := 0; i < 5; i++ {
		p.Get(4)
	}
	assert.Equal(t, domain.Loading, p.Snapshot().LoadStates.Append.Status)

	release()
	waitForItems(t, p, 10)
	assert.Equal(t, []domain.PageKey{1, 2}, fetcher.requestedPages("movies"))
}

func TestPager_RefreshResumesNearAnchor(t *testing.T) {
	fetcher := newFakeFetcher(testPagerPageSize)
	p := newTestPager(t, fetcher, "movies", PagerConfig{})
	p.Start()
	waitForItems(t, p, 5)
	p.Get(4)
	waitForItems(t, p, 10)
	p.Get(9)
	waitForItems(t, p, 15)

	// anchor inside page 3
	p.Get(12)
	require.NoError(t, p.Refresh())
	waitForItems(t, p, 5)

	s := p.Snapshot()
	assert.Equal(t, []domain.PageKey{3}, pageKeys(s))
	assert.EqualValues(t, 1, s.Generation)
	assert.False(t, s.LoadStates.Prepend.EndOfPagination)

	// reading the top of page 3 pulls page 2 in front of it
	p.Get(0)
	waitForItems(t, p, 10)
	assert.Equal(t, []domain.PageKey{2, 3}, pageKeys(p.Snapshot()))
	assert.Equal(t, []domain.PageKey{1, 2, 3, 3, 2}, fetcher.requestedPages("movies"))
}

func TestPager_RefreshFromFirstPage(t *testing.T) {
	fetcher := newFakeFetcher(testPagerPageSize)
	p := newTestPager(t, fetcher, "movies", PagerConfig{})
	p.Start()
	waitForItems(t, p, 5)

	p.Get(1)
	require.NoError(t, p.Refresh())
	waitForItems(t, p, 5)

	assert.Equal(t, []domain.PageKey{1}, pageKeys(p.Snapshot()))
	assert.Equal(t, []domain.PageKey{1, 1}, fetcher.requestedPages("movies"))
}

func TestPager_RefreshDropsSupersededAppend(t *testing.T) {
	fetcher := newFakeFetcher(testPagerPageSize)
	release := fetcher.hold("movies", 2)
	defer release()

	var loaded []domain.PageKey
	var mu sync.Mutex
	p := newTestPager(t, fetcher, "movies", PagerConfig{
		OnPageLoaded: func(_ string, page domain.Page) {
			mu.Lock()
			loaded = append(loaded, page.Key)
			mu.Unlock()
		},
	})
	p.Start()
	waitForItems(t, p, 5)

	p.Get(4)
	require.Equal(t, domain.Loading, p.Snapshot().LoadStates.Append.Status)

	require.NoError(t, p.Refresh())
	release()
	p.Wait()

	s := p.Snapshot()
	assert.Equal(t, []domain.PageKey{1}, pageKeys(s))
	assert.Equal(t, domain.NotLoading, s.LoadStates.Append.Status)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []domain.PageKey{1, 1}, loaded)
}

func TestPager_AppendErrorKeepsPagesAndRetries(t *testing.T) {
	fetcher := newFakeFetcher(testPagerPageSize)
	fetcher.fail(2, &domain.FetchError{Kind: domain.FetchErrorStatus, StatusCode: 500, Query: "movies", Page: 2})
	p := newTestPager(t, fetcher, "movies", PagerConfig{})
	p.Start()
	waitForItems(t, p, 5)

	p.Get(4)
	waitFor(t, func() bool {
		return p.Snapshot().LoadStates.Append.Status == domain.LoadFailed
	}, "append should fail")
	assert.Equal(t, 5, p.Snapshot().ItemCount)

	// no automatic retry on further reads
	p.Get(4)
	assert.Equal(t, []domain.PageKey{1, 2}, fetcher.requestedPages("movies"))

	fetcher.fail(2, nil)
	retried, err := p.Retry()
	require.NoError(t, err)
	assert.True(t, retried)
	waitForItems(t, p, 10)
	assert.Equal(t, []domain.PageKey{1, 2}, pageKeys(p.Snapshot()))
}

func TestPager_RetryWithNothingFailed(t *testing.T) {
	fetcher := newFakeFetcher(testPagerPageSize)
	p := newTestPager(t, fetcher, "movies", PagerConfig{})
	p.Start()
	waitForItems(t, p, 5)

	retried, err := p.Retry()
	require.NoError(t, err)
	assert.False(t, retried)
}

func TestPager_OfflineSkipsBackend(t *testing.T) {
	var online atomic.Bool
	fetcher := newFakeFetcher(testPagerPageSize)
	p := newTestPager(t, fetcher, "movies", PagerConfig{Connected: online.Load})
	p.Start()

	s := p.Snapshot()
	assert.Equal(t, domain.LoadFailed, s.LoadStates.Refresh.Status)
	assert.ErrorIs(t, s.LoadStates.Refresh.Err, domain.ErrOffline)
	assert.Empty(t, fetcher.requested())

	online.Store(true)
	retried, err := p.Retry()
	require.NoError(t, err)
	assert.True(t, retried)
	waitForItems(t, p, 5)
}

func TestPager_ResubscribeReplaysWithoutReload(t *testing.T) {
	fetcher := newFakeFetcher(testPagerPageSize)
	p := newTestPager(t, fetcher, "movies", PagerConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	first := p.Subscribe(ctx)
	waitForItems(t, p, 5)
	cancel()
	for range first {
	}

	second := p.Subscribe(context.Background())
	select {
	case s := <-second:
		assert.Equal(t, 5, s.ItemCount)
	case <-time.After(time.Second):
		t.Fatal("no snapshot replayed")
	}
	assert.Len(t, fetcher.requested(), 1)
}

func TestPager_CloseEndsSubscriptions(t *testing.T) {
	fetcher := newFakeFetcher(testPagerPageSize)
	release := fetcher.hold("movies", 1)
	defer release()
	p := newTestPager(t, fetcher, "movies", PagerConfig{})

	updates := p.Subscribe(context.Background())
	p.Close()

	closed := false
	timeout := time.After(time.Second)
	for !closed {
		select {
		case _, ok := <-updates:
			closed = !ok
		case <-timeout:
			t.Fatal("subscription not closed")
		}
	}

	assert.True(t, errors.Is(p.Refresh(), domain.ErrClosed))
	_, err := p.Retry()
	assert.ErrorIs(t, err, domain.ErrClosed)
	p.Wait()
	assert.Equal(t, 0, p.Snapshot().ItemCount)
}

func TestPager_RefreshBypassesPageCache(t *testing.T) {
	backend := newFakeFetcher(testPagerPageSize)
	backend.setTitles("movies", 1, "v1")
	cached := NewCachedFetcher(backend, "memory", newMemoryCache(t))

	p := NewPager("movies", func() PagingSource { return NewNewsPagingSource(cached, "movies") }, PagerConfig{
		PageSize:         testPagerPageSize,
		PrefetchDistance: 2,
	})
	t.Cleanup(func() {
		p.Close()
		p.Wait()
	})

	firstTitle := func() string {
		items := p.Snapshot().Items()
		if len(items) == 0 {
			return ""
		}
		return items[0].Title
	}

	p.Start()
	waitFor(t, func() bool { return firstTitle() == "v1" }, "initial load never arrived")

	backend.setTitles("movies", 1, "v2")
	require.NoError(t, p.Refresh())
	waitFor(t, func() bool { return firstTitle() == "v2" }, "refresh was answered from the cache")

	assert.Equal(t, []domain.PageKey{1, 1}, backend.requestedPages("movies"))
}

func TestPager_GetVisibleResolvesAgainstLoadedPages(t *testing.T) {
	fetcher := newFakeFetcher(testPagerPageSize)
	fetcher.setTitles("news", 1, domain.RemovedTitle, domain.RemovedTitle, "a", "b", "c")
	p := newTestPager(t, fetcher, "news", PagerConfig{})
	p.Start()
	waitForItems(t, p, 5)

	a, ok := p.GetVisible(0, notRemoved)
	require.True(t, ok)
	assert.Equal(t, "a", a.Title)
	assert.Equal(t, domain.NotLoading, p.Snapshot().LoadStates.Append.Status,
		"loaded position 2 is outside the prefetch window")

	// visible 1 sits at loaded position 3, inside the window
	b, ok := p.GetVisible(1, notRemoved)
	require.True(t, ok)
	assert.Equal(t, "b", b.Title)
	waitForItems(t, p, 10)
	assert.Equal(t, []domain.PageKey{1, 2}, fetcher.requestedPages("news"))

	_, ok = p.GetVisible(8, notRemoved)
	assert.False(t, ok, "only 8 articles are visible")
	_, ok = p.GetVisible(-1, notRemoved)
	assert.False(t, ok)
}
