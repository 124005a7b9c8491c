package domain

// PageKey is a 1-based page cursor. NoKey marks an absent key.
type PageKey int64

const (
	NoKey     PageKey = 0
	FirstPage PageKey = 1
)

// Valid reports whether the key is present.
func (k PageKey) Valid() bool {
	return k >= FirstPage
}

// LoadType is the direction of a load relative to the already loaded pages.
type LoadType int

const (
	LoadRefresh LoadType = iota
	LoadPrepend
	LoadAppend
)

func (t LoadType) String() string {
	switch t {
	case LoadRefresh:
		return "refresh"
	case LoadPrepend:
		return "prepend"
	case LoadAppend:
		return "append"
	default:
		return "unknown"
	}
}

// LoadParams describes a single PagingSource load.
type LoadParams struct {
	Type     LoadType
	Key      PageKey
	LoadSize int
	// Invalidate is set on user refreshes: cached pages of the query must
	// not answer this load or any after it.
	Invalidate bool
}

// Page is an ordered slice of articles plus its continuation keys.
type Page struct {
	Key     PageKey
	Data    []Article
	PrevKey PageKey
	NextKey PageKey
}

// LoadResult is the outcome of one load: exactly one of Page or Err is set.
type LoadResult struct {
	Page *Page
	Err  error
}

// PageResult builds a successful LoadResult.
func PageResult(p Page) LoadResult {
	return LoadResult{Page: &p}
}

// ErrorResult builds a failed LoadResult.
func ErrorResult(err error) LoadResult {
	return LoadResult{Err: err}
}

// IsError reports whether the load failed.
func (r LoadResult) IsError() bool {
	return r.Err != nil || r.Page == nil
}

// LoadStatus is the coarse state of one load direction.
type LoadStatus int

const (
	NotLoading LoadStatus = iota
	Loading
	LoadFailed
)

func (s LoadStatus) String() string {
	switch s {
	case NotLoading:
		return "not_loading"
	case Loading:
		return "loading"
	case LoadFailed:
		return "error"
	default:
		return "unknown"
	}
}

// LoadState is what the presentation layer observes for one direction.
type LoadState struct {
	Status          LoadStatus
	Err             error
	EndOfPagination bool
}

func NotLoadingState(endOfPagination bool) LoadState {
	return LoadState{Status: NotLoading, EndOfPagination: endOfPagination}
}

func LoadingState() LoadState {
	return LoadState{Status: Loading}
}

func ErrorState(err error) LoadState {
	return LoadState{Status: LoadFailed, Err: err}
}

// LoadStates groups the per-direction load states.
type LoadStates struct {
	Refresh LoadState
	Prepend LoadState
	Append  LoadState
}

// Get returns the state for a direction.
func (s LoadStates) Get(t LoadType) LoadState {
	switch t {
	case LoadPrepend:
		return s.Prepend
	case LoadAppend:
		return s.Append
	default:
		return s.Refresh
	}
}

// With returns a copy with the state for t replaced.
func (s LoadStates) With(t LoadType, st LoadState) LoadStates {
	switch t {
	case LoadPrepend:
		s.Prepend = st
	case LoadAppend:
		s.Append = st
	default:
		s.Refresh = st
	}
	return s
}

// PagingState is the set of loaded, contiguous pages plus the consumer's anchor.
// AnchorPosition is an item index, or -1 when the consumer has not read anything.
type PagingState struct {
	Pages          []Page
	AnchorPosition int
}

// HasAnchor reports whether the consumer has a recorded read position.
func (s PagingState) HasAnchor() bool {
	return s.AnchorPosition >= 0
}

// ItemCount returns the number of loaded articles across all pages.
func (s PagingState) ItemCount() int {
	n := 0
	for _, p := range s.Pages {
		n += len(p.Data)
	}
	return n
}

// ClosestPageToPosition returns the loaded page containing the item at
// position, clamped to the first or last page when position is out of range.
func (s PagingState) ClosestPageToPosition(position int) (Page, bool) {
	if s.ItemCount() == 0 {
		return Page{}, false
	}

	itemIndex := position
	pageIndex := 0
	last := len(s.Pages) - 1
	for pageIndex < last && itemIndex > len(s.Pages[pageIndex].Data)-1 {
		itemIndex -= len(s.Pages[pageIndex].Data)
		pageIndex++
	}
	return s.Pages[pageIndex], true
}
