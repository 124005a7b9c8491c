package cache

import (
	"context"
	"testing"
	"time"

	"github.com/NewsPager/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPageCache_GetPut(t *testing.T) {
	ctx := context.Background()
	c, err := NewMemoryPageCache(2, time.Minute)
	require.NoError(t, err)

	_, ok, err := c.GetPage(ctx, "movies", 1)
	require.NoError(t, err)
	assert.False(t, ok)

	resp := &domain.FeedResponse{Status: "ok", Articles: []domain.Article{{Title: "a"}}}
	require.NoError(t, c.PutPage(ctx, "movies", 1, resp))

	got, ok, err := c.GetPage(ctx, "movies", 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Same(t, resp, got)

	_, ok, _ = c.GetPage(ctx, "movies", 2)
	assert.False(t, ok, "pages are keyed by number")
	_, ok, _ = c.GetPage(ctx, "books", 1)
	assert.False(t, ok, "pages are keyed by query")
}

func TestMemoryPageCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c, err := NewMemoryPageCache(4, time.Minute)
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.PutPage(ctx, "q", 1, &domain.FeedResponse{}))
	now = now.Add(59 * time.Second)
	_, ok, _ := c.GetPage(ctx, "q", 1)
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok, _ = c.GetPage(ctx, "q", 1)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entries are evicted on read")
}

func TestMemoryPageCache_Eviction(t *testing.T) {
	ctx := context.Background()
	c, err := NewMemoryPageCache(2, time.Minute)
	require.NoError(t, err)

	for p := domain.PageKey(1); p <= 3; p++ {
		require.NoError(t, c.PutPage(ctx, "q", p, &domain.FeedResponse{}))
	}
	_, ok, _ := c.GetPage(ctx, "q", 1)
	assert.False(t, ok, "least recently used page is evicted")
	assert.Equal(t, 2, c.Len())
}

func TestMemoryPageCache_DropQueryAndPurge(t *testing.T) {
	ctx := context.Background()
	c, err := NewMemoryPageCache(8, time.Minute)
	require.NoError(t, err)

	for p := domain.PageKey(1); p <= 2; p++ {
		require.NoError(t, c.PutPage(ctx, "movies", p, &domain.FeedResponse{}))
		require.NoError(t, c.PutPage(ctx, "books", p, &domain.FeedResponse{}))
	}

	require.NoError(t, c.DropQuery(ctx, "movies"))
	_, ok, _ := c.GetPage(ctx, "movies", 1)
	assert.False(t, ok)
	_, ok, _ = c.GetPage(ctx, "movies", 2)
	assert.False(t, ok)
	_, ok, _ = c.GetPage(ctx, "books", 2)
	assert.True(t, ok, "other queries are kept")

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestNewMemoryPageCache_InvalidSize(t *testing.T) {
	_, err := NewMemoryPageCache(0, time.Minute)
	assert.Error(t, err)
}
