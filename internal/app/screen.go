package app

import (
	"context"
	"sync"
)

type SearchWidget int

const (
	WidgetClosed SearchWidget = iota
	WidgetOpened
)

func (w SearchWidget) String() string {
	if w == WidgetOpened {
		return "opened"
	}
	return "closed"
}

// ScreenState is the view state of one screen. Updates go through the With
// methods, which return modified copies.
type ScreenState struct {
	SearchText string
	Widget     SearchWidget
	Refreshing bool
}

func (s ScreenState) WithSearchText(text string) ScreenState {
	s.SearchText = text
	return s
}

func (s ScreenState) WithWidget(w SearchWidget) ScreenState {
	s.Widget = w
	return s
}

func (s ScreenState) WithRefreshing(refreshing bool) ScreenState {
	s.Refreshing = refreshing
	return s
}

// ScreenStore serialises updates to a ScreenState and broadcasts the result.
type ScreenStore struct {
	mu    sync.Mutex
	state ScreenState
	out   *Broadcast[ScreenState]
}

func NewScreenStore() *ScreenStore {
	return &ScreenStore{out: NewBroadcast(ScreenState{})}
}

// State returns the current screen state.
func (s *ScreenStore) State() ScreenState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Update applies fn to the current state and publishes the result.
func (s *ScreenStore) Update(fn func(ScreenState) ScreenState) ScreenState {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := fn(s.state)
	if next == s.state {
		return next
	}
	s.state = next
	s.out.Publish(next)
	return next
}

func (s *ScreenStore) Subscribe(ctx context.Context) <-chan ScreenState {
	return s.out.Subscribe(ctx)
}

func (s *ScreenStore) Close() {
	s.out.Close()
}
