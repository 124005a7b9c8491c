package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/NewsPager/internal/app"
	"github.com/NewsPager/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticFetcher struct {
	pageSize int
}

func (f staticFetcher) FetchPage(_ context.Context, query string, page domain.PageKey) (*domain.FeedResponse, error) {
	articles := make([]domain.Article, f.pageSize)
	for i := range articles {
		title := fmt.Sprintf("%s-%d-%d", query, page, i)
		articles[i] = domain.Article{Title: title, URL: "https://example.com/" + title}
	}
	return &domain.FeedResponse{Status: "ok", TotalResults: 100, Articles: articles}, nil
}

func newTestServer(t *testing.T, health HealthCheck) (*httptest.Server, *app.SessionRegistry) {
	t.Helper()
	registry := app.NewSessionRegistry(staticFetcher{pageSize: 3}, app.SessionConfig{
		PageSize:         3,
		PrefetchDistance: 1,
		Debounce:         10 * time.Millisecond,
	})
	srv := httptest.NewServer(NewRouter(NewHandler(registry, health, nil)))
	t.Cleanup(func() {
		srv.Close()
		registry.CloseAll()
	})
	return srv, registry
}

func doJSON(t *testing.T, method, url, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		srv, _ := newTestServer(t, nil)
		var resp healthResponse
		assert.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/health", "", &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.True(t, resp.Connected)
	})

	t.Run("degraded", func(t *testing.T) {
		srv, _ := newTestServer(t, func(context.Context) map[string]error {
			return map[string]error{"mongodb": errors.New("no reachable servers"), "kafka": nil}
		})
		var resp healthResponse
		assert.Equal(t, http.StatusServiceUnavailable, doJSON(t, http.MethodGet, srv.URL+"/health", "", &resp))
		assert.Equal(t, "degraded", resp.Status)
		assert.Equal(t, "ok", resp.Dependencies["kafka"])
		assert.Equal(t, "no reachable servers", resp.Dependencies["mongodb"])
	})
}

func TestSessionFlow(t *testing.T) {
	srv, registry := newTestServer(t, nil)

	var created sessionResponse
	require.Equal(t, http.StatusCreated, doJSON(t, http.MethodPost, srv.URL+"/sessions", `{"query":"movies"}`, &created))
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "movies", created.Query)
	assert.Equal(t, 1, registry.Len())

	base := srv.URL + "/sessions/" + created.ID
	var state stateResponse
	require.Eventually(t, func() bool {
		doJSON(t, http.MethodGet, base+"/state", "", &state)
		return state.ItemCount == 3
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "movies", state.Query)
	assert.Equal(t, "active", state.Phase)
	assert.Equal(t, "not_loading", state.LoadStates["refresh"].Status)
	assert.True(t, state.LoadStates["prepend"].EndOfPagination)

	// reading the last item prefetches page 2
	var item itemResponse
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, base+"/items/2", "", &item))
	assert.Equal(t, "movies-1-2", item.Article.Title)
	require.Eventually(t, func() bool {
		doJSON(t, http.MethodGet, base+"/state", "", &state)
		return state.ItemCount == 6
	}, 2*time.Second, 10*time.Millisecond)

	var missing errorResponse
	assert.Equal(t, http.StatusNotFound, doJSON(t, http.MethodGet, base+"/items/99", "", &missing))

	assert.Equal(t, http.StatusAccepted, doJSON(t, http.MethodPost, base+"/query", `{"text":"cats"}`, nil))
	require.Eventually(t, func() bool {
		doJSON(t, http.MethodGet, base+"/state", "", &state)
		return state.Query == "cats" && state.ItemCount == 3
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "cats", state.Screen.SearchText)

	assert.Equal(t, http.StatusAccepted, doJSON(t, http.MethodPost, base+"/refresh", "", nil))

	var retry retryResponse
	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, base+"/retry", "", &retry))

	var screen screenDTO
	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodPut, base+"/widget", `{"state":"opened"}`, &screen))
	assert.Equal(t, "opened", screen.Widget)
	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodPut, base+"/widget", `{"state":"sideways"}`, nil))

	assert.Equal(t, http.StatusNoContent, doJSON(t, http.MethodDelete, base, "", nil))
	assert.Equal(t, http.StatusNotFound, doJSON(t, http.MethodGet, base+"/state", "", nil))
	assert.Equal(t, 0, registry.Len())
}

func TestCreateSession_BadBody(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	var resp errorResponse
	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodPost, srv.URL+"/sessions", `{"query":`, &resp))
	assert.NotEmpty(t, resp.Error)
}

func TestUnknownSession(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	var resp errorResponse
	assert.Equal(t, http.StatusNotFound, doJSON(t, http.MethodPost, srv.URL+"/sessions/nope/refresh", "", &resp))
	assert.Contains(t, resp.Error, "session not found")
}

func TestSessionEvents(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	var created sessionResponse
	require.Equal(t, http.StatusCreated, doJSON(t, http.MethodPost, srv.URL+"/sessions", `{"query":"movies"}`, &created))
	base := srv.URL + "/sessions/" + created.ID

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan stateResponse, 16)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			data, ok := strings.CutPrefix(scanner.Text(), "data: ")
			if !ok {
				continue
			}
			var state stateResponse
			if err := json.Unmarshal([]byte(data), &state); err == nil {
				events <- state
			}
		}
	}()

	var last stateResponse
	require.Eventually(t, func() bool {
		select {
		case last = <-events:
		default:
		}
		return last.ItemCount == 3
	}, 2*time.Second, 10*time.Millisecond, "first page should be streamed")
	assert.Equal(t, created.ID, last.SessionID)
	assert.Equal(t, "movies", last.Query)
	assert.Equal(t, "movies-1-0", last.Articles[0].Title)

	// closing the session ends the stream
	require.Equal(t, http.StatusNoContent, doJSON(t, http.MethodDelete, base, "", nil))
	require.Eventually(t, func() bool {
		for {
			select {
			case _, ok := <-events:
				if !ok {
					return true
				}
			default:
				return false
			}
		}
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, http.StatusNotFound, doJSON(t, http.MethodGet, base+"/events", "", nil))
}
