package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/NewsPager/internal/domain"
	"github.com/NewsPager/internal/infra/metrics"
	"github.com/google/uuid"
)

type SessionConfig struct {
	PageSize         int
	PrefetchDistance int
	Debounce         time.Duration
	// DefaultQuery is loaded when a session is created without one.
	DefaultQuery string
	Connected    func() bool
	OnPageLoaded func(query string, page domain.Page)
	// NewCache, when set, gives every session its own page cache.
	NewCache func() ScopedCache
}

// ScopedCache is a page cache owned by one session and emptied when it closes.
type ScopedCache interface {
	domain.PageCache
	Purge()
}

// Session is the scope one consumer's screen lives in. Everything it loads
// is kept until Close, so a consumer can detach and reattach without a refetch.
type Session struct {
	ID        string
	CreatedAt time.Time

	searcher *Searcher
	screen   *ScreenStore
	cache    ScopedCache
	stop     context.CancelFunc
	done     chan struct{}
}

func NewSession(id string, fetcher domain.PageFetcher, cfg SessionConfig) *Session {
	var pages ScopedCache
	if cfg.NewCache != nil {
		pages = cfg.NewCache()
	}
	if pages != nil {
		fetcher = NewCachedFetcher(fetcher, "session", pages)
	}

	pagerCfg := PagerConfig{
		PageSize:         cfg.PageSize,
		PrefetchDistance: cfg.PrefetchDistance,
		Connected:        cfg.Connected,
		OnPageLoaded:     cfg.OnPageLoaded,
	}
	searcher := NewSearcher(func(query string) *Pager {
		return NewPager(query, func() PagingSource {
			return NewNewsPagingSource(fetcher, query)
		}, pagerCfg)
	}, cfg.Debounce)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		searcher:  searcher,
		screen:    NewScreenStore(),
		cache:     pages,
		stop:      cancel,
		done:      make(chan struct{}),
	}
	go s.trackRefreshing(searcher.Subscribe(ctx))
	return s
}

// trackRefreshing keeps the Refreshing flag in step with the refresh load.
func (s *Session) trackRefreshing(snapshots <-chan Snapshot) {
	defer close(s.done)
	for snap := range snapshots {
		loading := snap.LoadStates.Refresh.Status == domain.Loading
		s.screen.Update(func(st ScreenState) ScreenState {
			return st.WithRefreshing(loading)
		})
	}
}

// Type records the search box text; the query follows after the debounce.
func (s *Session) Type(text string) error {
	if err := s.searcher.Type(text); err != nil {
		return err
	}
	s.screen.Update(func(st ScreenState) ScreenState {
		return st.WithSearchText(text)
	})
	return nil
}

// Submit starts query immediately.
func (s *Session) Submit(query string) error {
	if err := s.searcher.Submit(query); err != nil {
		return err
	}
	s.screen.Update(func(st ScreenState) ScreenState {
		return st.WithSearchText(query)
	})
	return nil
}

func (s *Session) Refresh() error {
	if s.searcher.Pager() == nil {
		return nil
	}
	s.screen.Update(func(st ScreenState) ScreenState {
		return st.WithRefreshing(true)
	})
	return s.searcher.Refresh()
}

func (s *Session) Retry() (bool, error) {
	return s.searcher.Retry()
}

// Get returns the visible article at index and moves the read position there.
func (s *Session) Get(index int) (domain.Article, bool) {
	return s.searcher.Get(index)
}

func (s *Session) SetWidget(w SearchWidget) ScreenState {
	return s.screen.Update(func(st ScreenState) ScreenState {
		return st.WithWidget(w)
	})
}

func (s *Session) Snapshot() Snapshot {
	return s.searcher.Snapshot()
}

func (s *Session) Subscribe(ctx context.Context) <-chan Snapshot {
	return s.searcher.Subscribe(ctx)
}

func (s *Session) Screen() ScreenState {
	return s.screen.State()
}

func (s *Session) Search() SearchState {
	return s.searcher.State()
}

// Close tears down the searcher, its pager and the session's page cache.
// It is safe to call twice.
func (s *Session) Close() {
	s.searcher.Close()
	s.stop()
	<-s.done
	s.screen.Close()
	if s.cache != nil {
		s.cache.Purge()
	}
}

// SessionRegistry owns every live session.
type SessionRegistry struct {
	fetcher domain.PageFetcher
	cfg     SessionConfig

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionRegistry(fetcher domain.PageFetcher, cfg SessionConfig) *SessionRegistry {
	return &SessionRegistry{
		fetcher:  fetcher,
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Create opens a session and starts query, or the default query when empty.
func (r *SessionRegistry) Create(query string) (*Session, error) {
	s := NewSession(uuid.NewString(), r.fetcher, r.cfg)

	if query == "" {
		query = r.cfg.DefaultQuery
	}
	if query != "" {
		if err := s.Submit(query); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to start query: %w", err)
		}
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	metrics.ActiveSessions.Inc()
	slog.Info("Session created", "session_id", s.ID, "query", query)
	return s, nil
}

func (r *SessionRegistry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, domain.ErrSessionNotFound)
	}
	return s, nil
}

func (r *SessionRegistry) Close(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%s: %w", id, domain.ErrSessionNotFound)
	}
	s.Close()
	metrics.ActiveSessions.Dec()
	slog.Info("Session closed", "session_id", id)
	return nil
}

// CloseAll closes every session; used on shutdown.
func (r *SessionRegistry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
		metrics.ActiveSessions.Dec()
	}
	slog.Info("All sessions closed", "count", len(sessions))
}

func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
