package app

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/NewsPager/internal/domain"
	"github.com/NewsPager/internal/infra/metrics"
)

// DefaultSearchDebounce is how long input has to stay unchanged before it
// becomes the active query.
const DefaultSearchDebounce = 300 * time.Millisecond

type SearchPhase int

const (
	SearchIdle SearchPhase = iota
	SearchDebouncing
	SearchActive
)

func (p SearchPhase) String() string {
	switch p {
	case SearchIdle:
		return "idle"
	case SearchDebouncing:
		return "debouncing"
	case SearchActive:
		return "active"
	default:
		return "unknown"
	}
}

// SearchState is the debounce state machine. Its methods return new values
// and never mutate the receiver.
type SearchState struct {
	Phase    SearchPhase
	Text     string
	Pending  string
	Deadline time.Time
	Active   string
}

// Input records a keystroke and pushes the deadline out to now+delay.
func (s SearchState) Input(text string, now time.Time, delay time.Duration) SearchState {
	s.Phase = SearchDebouncing
	s.Text = text
	s.Pending = strings.TrimSpace(text)
	s.Deadline = now.Add(delay)
	return s
}

// Expire settles the pending input once its deadline has passed. It returns
// the query to start, if any. Empty input and the already active query are
// never committed.
func (s SearchState) Expire(now time.Time) (SearchState, string, bool) {
	if s.Phase != SearchDebouncing || now.Before(s.Deadline) {
		return s, "", false
	}

	pending := s.Pending
	s.Pending = ""
	s.Deadline = time.Time{}

	if pending == "" || pending == s.Active {
		s.Phase = SearchIdle
		if s.Active != "" {
			s.Phase = SearchActive
		}
		return s, "", false
	}

	s.Phase = SearchActive
	s.Active = pending
	return s, pending, true
}

// Commit makes query active straight away, skipping the debounce. Empty
// input and the active query only cancel whatever was pending.
func (s SearchState) Commit(query string) (SearchState, string, bool) {
	query = strings.TrimSpace(query)
	s.Text = query
	s.Pending = ""
	s.Deadline = time.Time{}
	if query == "" || query == s.Active {
		s.Phase = SearchIdle
		if s.Active != "" {
			s.Phase = SearchActive
		}
		return s, "", false
	}
	s.Phase = SearchActive
	s.Active = query
	return s, query, true
}

// PagerFactory builds a pager for a committed query.
type PagerFactory func(query string) *Pager

// Searcher turns debounced input into pagers. Only the newest query's pager
// is live, and only its snapshots reach subscribers.
type Searcher struct {
	newPager PagerFactory
	delay    time.Duration
	now      func() time.Time

	mu      sync.Mutex
	state   SearchState
	pager   *Pager
	stopFwd context.CancelFunc
	timer   *time.Timer
	closed  bool

	out *Broadcast[Snapshot]
}

func NewSearcher(newPager PagerFactory, delay time.Duration) *Searcher {
	if delay <= 0 {
		delay = DefaultSearchDebounce
	}
	return &Searcher{
		newPager: newPager,
		delay:    delay,
		now:      time.Now,
		out:      NewBroadcast(Snapshot{}),
	}
}

// State returns the current state of the debounce machine.
func (s *Searcher) State() SearchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Type feeds one keystroke worth of input.
func (s *Searcher) Type(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrClosed
	}

	s.state = s.state.Input(text, s.now(), s.delay)
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, s.expire)
	return nil
}

// Submit makes query active without waiting for the debounce.
func (s *Searcher) Submit(query string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrClosed
	}
	if s.timer != nil {
		s.timer.Stop()
	}

	var (
		q  string
		ok bool
	)
	s.state, q, ok = s.state.Commit(query)
	if ok {
		s.switchLocked(q)
	}
	return nil
}

func (s *Searcher) expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	var (
		q  string
		ok bool
	)
	s.state, q, ok = s.state.Expire(s.now())
	if ok {
		s.switchLocked(q)
	}
}

// switchLocked replaces the live pager. The old pager is closed, which
// cancels its loads, and its forwarder stops before anything else is published.
func (s *Searcher) switchLocked(query string) {
	old, stopOld := s.pager, s.stopFwd

	p := s.newPager(query)
	ctx, cancel := context.WithCancel(context.Background())
	s.pager = p
	s.stopFwd = cancel

	metrics.QueriesCommitted.Inc()
	slog.Info("Query committed", "query", query)

	if old != nil {
		stopOld()
		old.Close()
	}

	go s.forward(p, p.Subscribe(ctx))
}

func (s *Searcher) forward(p *Pager, snapshots <-chan Snapshot) {
	for snap := range snapshots {
		s.mu.Lock()
		if s.pager == p && !s.closed {
			s.out.Publish(withoutRemoved(snap))
		}
		s.mu.Unlock()
	}
}

// Subscribe streams filtered snapshots of whichever pager is live.
func (s *Searcher) Subscribe(ctx context.Context) <-chan Snapshot {
	return s.out.Subscribe(ctx)
}

// Snapshot returns the latest filtered snapshot.
func (s *Searcher) Snapshot() Snapshot {
	return s.out.Value()
}

// Pager returns the live pager, or nil before the first commit.
func (s *Searcher) Pager() *Pager {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pager
}

// Get returns the index-th visible article of the live pager. Indices count
// only articles that survive filtering.
func (s *Searcher) Get(index int) (domain.Article, bool) {
	p := s.Pager()
	if p == nil {
		return domain.Article{}, false
	}
	return p.GetVisible(index, notRemoved)
}

// Refresh reloads the live pager.
func (s *Searcher) Refresh() error {
	p := s.Pager()
	if p == nil {
		return nil
	}
	return p.Refresh()
}

// Retry re-issues failed loads of the live pager.
func (s *Searcher) Retry() (bool, error) {
	p := s.Pager()
	if p == nil {
		return false, nil
	}
	return p.Retry()
}

// Close stops the debounce timer and the live pager.
func (s *Searcher) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	p, stop := s.pager, s.stopFwd
	s.mu.Unlock()

	if p != nil {
		stop()
		p.Close()
	}
	s.out.Close()
}

func notRemoved(a domain.Article) bool {
	return !a.IsRemoved()
}

// withoutRemoved drops articles the backend redacted.
func withoutRemoved(snap Snapshot) Snapshot {
	pages := make([]domain.Page, len(snap.Pages))
	count := 0
	for i, page := range snap.Pages {
		data := make([]domain.Article, 0, len(page.Data))
		for _, a := range page.Data {
			if notRemoved(a) {
				data = append(data, a)
			}
		}
		page.Data = data
		pages[i] = page
		count += len(data)
	}
	snap.Pages = pages
	snap.ItemCount = count
	return snap
}
