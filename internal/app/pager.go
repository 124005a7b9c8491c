package app

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/NewsPager/internal/domain"
	"github.com/NewsPager/internal/infra/metrics"
)

// SourceFactory creates a fresh PagingSource. The pager calls it once up
// front and again on every refresh.
type SourceFactory func() PagingSource

type PagerConfig struct {
	PageSize         int
	PrefetchDistance int
	// InitialLoadSize is passed to refresh loads; NewsAPI ignores it.
	InitialLoadSize int
	// Connected is checked before every load. Nil means always online.
	Connected func() bool
	// OnPageLoaded runs after a page has been applied, outside the pager lock.
	OnPageLoaded func(query string, page domain.Page)
}

func DefaultPagerConfig() PagerConfig {
	return PagerConfig{
		PageSize:         20,
		PrefetchDistance: 10,
		InitialLoadSize:  60,
	}
}

// Snapshot is an immutable view of a pager at one point in time.
type Snapshot struct {
	Query      string
	Generation uint64
	Pages      []domain.Page
	LoadStates domain.LoadStates
	ItemCount  int
}

// Items concatenates the data of all pages in key order.
func (s Snapshot) Items() []domain.Article {
	items := make([]domain.Article, 0, s.ItemCount)
	for _, p := range s.Pages {
		items = append(items, p.Data...)
	}
	return items
}

// Pager accumulates the pages of one query and drives loads at both ends.
// All bookkeeping happens under mu; loads run on their own goroutines and
// their results are applied only if they still fit the current state.
type Pager struct {
	query   string
	factory SourceFactory
	cfg     PagerConfig

	mu         sync.Mutex
	source     PagingSource
	pages      []domain.Page
	anchor     int
	states     domain.LoadStates
	generation uint64
	inflight   map[domain.LoadType]context.CancelFunc
	failedKeys map[domain.LoadType]domain.PageKey
	invalidate bool
	started    bool
	closed     bool

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	snapshots *Broadcast[Snapshot]
}

func NewPager(query string, factory SourceFactory, cfg PagerConfig) *Pager {
	def := DefaultPagerConfig()
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.PrefetchDistance <= 0 {
		cfg.PrefetchDistance = def.PrefetchDistance
	}
	if cfg.InitialLoadSize <= 0 {
		cfg.InitialLoadSize = cfg.PageSize * 3
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pager{
		query:      query,
		factory:    factory,
		cfg:        cfg,
		source:     factory(),
		anchor:     -1,
		inflight:   make(map[domain.LoadType]context.CancelFunc),
		failedKeys: make(map[domain.LoadType]domain.PageKey),
		ctx:        ctx,
		cancel:     cancel,
	}
	p.snapshots = NewBroadcast(p.snapshotLocked())
	return p
}

// Start triggers the initial load. Calls after the first are no-ops.
func (p *Pager) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	p.launchLocked(domain.LoadRefresh, domain.NoKey)
}

// Subscribe streams snapshots, starting with the latest one. The first
// subscription starts the pager; later ones replay without reloading.
func (p *Pager) Subscribe(ctx context.Context) <-chan Snapshot {
	ch := p.snapshots.Subscribe(ctx)
	p.Start()
	return ch
}

// Snapshot returns the latest published snapshot.
func (p *Pager) Snapshot() Snapshot {
	return p.snapshots.Value()
}

// Get returns the item at index and records it as the read position, loading
// more pages when the position nears either end of what is loaded.
func (p *Pager) Get(index int) (domain.Article, bool) {
	return p.GetVisible(index, nil)
}

// GetVisible is Get over the items keep accepts; a nil keep accepts all.
// The index is resolved under the pager lock, so a concurrent prepend cannot
// shift it onto a different article.
func (p *Pager) GetVisible(index int, keep func(domain.Article) bool) (domain.Article, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || index < 0 {
		return domain.Article{}, false
	}

	raw, visible := 0, 0
	for _, page := range p.pages {
		for _, a := range page.Data {
			if keep == nil || keep(a) {
				if visible == index {
					p.anchor = raw
					p.prefetchLocked(raw, p.itemCountLocked())
					return a, true
				}
				visible++
			}
			raw++
		}
	}
	return domain.Article{}, false
}

// Refresh drops every loaded page and reloads around the current read position.
func (p *Pager) Refresh() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return domain.ErrClosed
	}

	key := p.source.RefreshKey(domain.PagingState{Pages: p.pages, AnchorPosition: p.anchor})
	slog.Debug("Refreshing pager", "query", p.query, "refresh_key", key, "anchor", p.anchor)

	p.cancelAllLocked()
	p.generation++
	p.source = p.factory()
	p.pages = nil
	p.anchor = -1
	p.states = domain.LoadStates{}
	clear(p.failedKeys)
	p.invalidate = true
	p.started = true
	p.launchLocked(domain.LoadRefresh, key)
	return nil
}

// Retry re-issues every load that ended in error. It reports whether any
// load was started.
func (p *Pager) Retry() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false, domain.ErrClosed
	}

	if p.states.Refresh.Status == domain.LoadFailed {
		p.launchLocked(domain.LoadRefresh, p.failedKeys[domain.LoadRefresh])
		return true, nil
	}

	retried := false
	for _, t := range []domain.LoadType{domain.LoadPrepend, domain.LoadAppend} {
		if p.states.Get(t).Status != domain.LoadFailed {
			continue
		}
		p.launchLocked(t, p.failedKeys[t])
		retried = true
	}
	return retried, nil
}

// Close cancels in-flight loads and ends all subscriptions.
func (p *Pager) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.cancelAllLocked()
	p.cancel()
	p.mu.Unlock()

	p.snapshots.Close()
}

// Wait blocks until every load goroutine has returned.
func (p *Pager) Wait() {
	p.wg.Wait()
}

func (p *Pager) prefetchLocked(index, count int) {
	if len(p.pages) == 0 || p.states.Refresh.Status == domain.LoadFailed || p.states.Refresh.Status == domain.Loading {
		return
	}
	distance := p.cfg.PrefetchDistance

	if p.states.Append.Status == domain.NotLoading && index >= count-distance {
		if last := p.pages[len(p.pages)-1]; last.NextKey.Valid() {
			p.launchLocked(domain.LoadAppend, last.NextKey)
		}
	}
	if p.states.Prepend.Status == domain.NotLoading && index < distance {
		if first := p.pages[0]; first.PrevKey.Valid() {
			p.launchLocked(domain.LoadPrepend, first.PrevKey)
		}
	}
}

func (p *Pager) launchLocked(t domain.LoadType, key domain.PageKey) {
	if p.cfg.Connected != nil && !p.cfg.Connected() {
		slog.Debug("Skipping load while offline", "query", p.query, "type", t, "page", key)
		metrics.PageLoads.WithLabelValues(t.String(), "offline").Inc()
		p.states = p.states.With(t, domain.ErrorState(domain.ErrOffline))
		p.failedKeys[t] = key
		p.publishLocked()
		return
	}

	ctx, cancel := context.WithCancel(p.ctx)
	p.inflight[t] = cancel
	p.states = p.states.With(t, domain.LoadingState())

	params := domain.LoadParams{Type: t, Key: key, LoadSize: p.cfg.PageSize}
	if t == domain.LoadRefresh {
		params.LoadSize = p.cfg.InitialLoadSize
		params.Invalidate = p.invalidate
	}

	p.wg.Add(1)
	metrics.LoadsInFlight.Inc()
	go p.run(ctx, cancel, p.source, p.generation, params)

	p.publishLocked()
}

func (p *Pager) run(ctx context.Context, cancel context.CancelFunc, source PagingSource, gen uint64, params domain.LoadParams) {
	defer p.wg.Done()
	defer metrics.LoadsInFlight.Dec()
	defer cancel()

	result := source.Load(ctx, params)

	page, applied := p.apply(gen, params, result)
	if applied && p.cfg.OnPageLoaded != nil {
		p.cfg.OnPageLoaded(p.query, page)
	}
}

func (p *Pager) apply(gen uint64, params domain.LoadParams, result domain.LoadResult) (domain.Page, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t := params.Type
	if p.closed || gen != p.generation {
		metrics.StaleLoadsDropped.WithLabelValues(t.String()).Inc()
		return domain.Page{}, false
	}
	delete(p.inflight, t)

	if result.IsError() {
		p.states = p.states.With(t, domain.ErrorState(result.Err))
		p.failedKeys[t] = params.Key
		p.publishLocked()
		return domain.Page{}, false
	}

	page := *result.Page
	switch t {
	case domain.LoadRefresh:
		p.pages = []domain.Page{page}
		p.anchor = -1
		p.invalidate = false
		p.states = domain.LoadStates{
			Refresh: domain.NotLoadingState(false),
			Prepend: domain.NotLoadingState(!page.PrevKey.Valid()),
			Append:  domain.NotLoadingState(!page.NextKey.Valid()),
		}

	case domain.LoadAppend:
		if len(p.pages) == 0 || p.pages[len(p.pages)-1].NextKey != page.Key {
			return p.dropLocked(t, page.Key)
		}
		p.pages = append(p.pages, page)
		p.states = p.states.With(t, domain.NotLoadingState(!page.NextKey.Valid()))

	case domain.LoadPrepend:
		if len(p.pages) == 0 || p.pages[0].PrevKey != page.Key {
			return p.dropLocked(t, page.Key)
		}
		p.pages = append([]domain.Page{page}, p.pages...)
		// keep the anchor on the same article
		if p.anchor >= 0 {
			p.anchor += len(page.Data)
		}
		p.states = p.states.With(t, domain.NotLoadingState(!page.PrevKey.Valid()))
	}

	delete(p.failedKeys, t)
	p.publishLocked()
	return page, true
}

// dropLocked discards a page that no longer sits at the boundary it was loaded for.
func (p *Pager) dropLocked(t domain.LoadType, key domain.PageKey) (domain.Page, bool) {
	slog.Warn("Dropping page that no longer fits", "query", p.query, "type", t, "page", key)
	metrics.StaleLoadsDropped.WithLabelValues(t.String()).Inc()
	p.states = p.states.With(t, domain.NotLoadingState(false))
	p.publishLocked()
	return domain.Page{}, false
}

func (p *Pager) cancelAllLocked() {
	for t, cancel := range p.inflight {
		cancel()
		delete(p.inflight, t)
	}
}

func (p *Pager) itemCountLocked() int {
	n := 0
	for _, page := range p.pages {
		n += len(page.Data)
	}
	return n
}

func (p *Pager) snapshotLocked() Snapshot {
	return Snapshot{
		Query:      p.query,
		Generation: p.generation,
		Pages:      slices.Clone(p.pages),
		LoadStates: p.states,
		ItemCount:  p.itemCountLocked(),
	}
}

func (p *Pager) publishLocked() {
	p.snapshots.Publish(p.snapshotLocked())
}
