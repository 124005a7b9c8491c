package cache_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/NewsPager/internal/domain"
	"github.com/NewsPager/internal/infra/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(60 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := c.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("redis://%s:%s/0", host, port.Port())
}

func TestRedisPageCache_Integration(t *testing.T) {
	url := startRedis(t)
	ctx := context.Background()

	c, err := cache.NewRedisPageCache(ctx, url, "", time.Second)
	require.NoError(t, err)
	defer c.Close()

	_, ok, err := c.GetPage(ctx, "movies", 1)
	require.NoError(t, err)
	assert.False(t, ok)

	resp := &domain.FeedResponse{
		Status:       "ok",
		TotalResults: 1,
		Articles: []domain.Article{{
			Source:      domain.Source{ID: "bbc", Name: "BBC"},
			Title:       "Cached",
			URL:         "https://bbc.co.uk/1",
			PublishedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		}},
	}
	require.NoError(t, c.PutPage(ctx, "movies", 1, resp))

	got, ok, err := c.GetPage(ctx, "movies", 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, resp, got)

	_, ok, err = c.GetPage(ctx, "movies", 2)
	require.NoError(t, err)
	assert.False(t, ok, "pages are cached per key")

	require.NoError(t, c.PutPage(ctx, "books", 1, resp))
	require.NoError(t, c.DropQuery(ctx, "books"))
	_, ok, err = c.GetPage(ctx, "books", 1)
	require.NoError(t, err)
	assert.False(t, ok, "dropped query is gone")
	_, ok, err = c.GetPage(ctx, "movies", 1)
	require.NoError(t, err)
	assert.True(t, ok, "other queries survive a drop")

	require.Eventually(t, func() bool {
		_, ok, err := c.GetPage(ctx, "movies", 1)
		return err == nil && !ok
	}, 5*time.Second, 100*time.Millisecond, "entry should expire")
}

func TestNewRedisPageCache_BadURL(t *testing.T) {
	_, err := cache.NewRedisPageCache(context.Background(), "not-a-url", "", time.Minute)
	assert.ErrorContains(t, err, "invalid redis url")
}
