// Package network watches whether the news backend is reachable.
package network

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NewsPager/internal/infra/metrics"
)

// Dialer opens a connection; it is swapped out in tests.
type Dialer func(ctx context.Context, network, address string) (net.Conn, error)

// Monitor probes a TCP address on an interval and reports connectivity.
// It starts optimistic: Connected is true until a probe fails.
type Monitor struct {
	addr     string
	interval time.Duration
	dial     Dialer

	connected atomic.Bool

	mu          sync.Mutex
	subscribers map[chan bool]struct{}
}

func NewMonitor(addr string, interval time.Duration) *Monitor {
	d := &net.Dialer{Timeout: 2 * time.Second}
	m := &Monitor{
		addr:        addr,
		interval:    interval,
		dial:        d.DialContext,
		subscribers: make(map[chan bool]struct{}),
	}
	m.connected.Store(true)
	return m
}

// Connected is the predicate handed to pagers.
func (m *Monitor) Connected() bool {
	return m.connected.Load()
}

// Run probes until ctx is cancelled. An empty address disables probing.
func (m *Monitor) Run(ctx context.Context) {
	if m.addr == "" {
		slog.Info("Connectivity probe disabled")
		<-ctx.Done()
		return
	}

	slog.Info("Starting connectivity monitor", "address", m.addr, "interval", m.interval)
	m.probe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	conn, err := m.dial(ctx, "tcp", m.addr)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.set(false, err)
		return
	}
	_ = conn.Close()
	m.set(true, nil)
}

func (m *Monitor) set(connected bool, err error) {
	if m.connected.Swap(connected) == connected {
		return
	}

	if connected {
		slog.Info("Backend reachable again", "address", m.addr)
		metrics.Connectivity.Set(1)
	} else {
		slog.Warn("Backend unreachable", "address", m.addr, "error", err)
		metrics.Connectivity.Set(0)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.subscribers {
		// Keep only the latest value for slow subscribers
		select {
		case <-ch:
		default:
		}
		ch <- connected
	}
}

// Subscribe returns a stream of connectivity states starting with the current
// one. The channel is closed when ctx is cancelled; subscribing again restarts
// the sequence.
func (m *Monitor) Subscribe(ctx context.Context) <-chan bool {
	ch := make(chan bool, 1)
	ch <- m.Connected()

	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subscribers, ch)
		close(ch)
		m.mu.Unlock()
	}()
	return ch
}
