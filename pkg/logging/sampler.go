package logging

import (
	"context"
	"log/slog"
	"sync"
)

// ErrorSampler reduces log noise from repeated failures of the same kind.
// It logs the first occurrence of a key and then every Nth occurrence, until
// the key is reset by a success.
type ErrorSampler struct {
	mu       sync.Mutex
	counts   map[string]int
	interval int
	logger   *slog.Logger
}

// NewErrorSampler creates a sampler that logs every interval-th occurrence.
// A nil logger falls back to slog.Default at call time.
func NewErrorSampler(interval int, logger *slog.Logger) *ErrorSampler {
	if interval < 1 {
		interval = 10
	}
	return &ErrorSampler{
		counts:   make(map[string]int),
		interval: interval,
		logger:   logger,
	}
}

// ShouldLog counts an occurrence of key and reports whether it should be logged.
func (s *ErrorSampler) ShouldLog(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counts[key]++
	count := s.counts[key]
	return count == 1 || count%s.interval == 0
}

// Error logs msg at error level if the occurrence for key is sampled in.
// The running count is attached as "occurrences".
func (s *ErrorSampler) Error(ctx context.Context, key, msg string, args ...any) {
	if !s.ShouldLog(key) {
		return
	}
	args = append(args, "occurrences", s.Count(key))
	s.log().ErrorContext(ctx, msg, args...)
}

// Count returns the current count for key.
func (s *ErrorSampler) Count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[key]
}

// Reset clears the count for key, typically after a success.
func (s *ErrorSampler) Reset(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counts, key)
}

func (s *ErrorSampler) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
