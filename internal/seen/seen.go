// Package seen remembers which stream coordinates already produced a
// downstream result, so an at-least-once redelivery after a crash does not
// publish twice. Best effort: a lost entry only costs a duplicate publish,
// never a lost record.
package seen

import (
	"context"
	"sync"
)

type Store interface {
	// Seen reports whether the coordinate was already processed.
	Seen(ctx context.Context, key string) bool
	// Mark records the coordinate as processed.
	Mark(ctx context.Context, key string)
}

// MemoryStore is a bounded in-memory store for single-instance deployments.
// Eviction is insertion-ordered: coordinates are monotonic per partition, so
// the oldest entry is also the least likely to be redelivered.
type MemoryStore struct {
	mu       sync.Mutex
	capacity int
	keys     map[string]struct{}
	order    []string
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 10000
	}
	return &MemoryStore{
		capacity: capacity,
		keys:     make(map[string]struct{}, capacity),
		order:    make([]string, 0, capacity),
	}
}

func (s *MemoryStore) Seen(_ context.Context, key string) bool {
	if key == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok
}

func (s *MemoryStore) Mark(_ context.Context, key string) {
	if key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return
	}
	if len(s.order) >= s.capacity {
		evicted := s.order[0]
		s.order = s.order[1:]
		delete(s.keys, evicted)
	}
	s.keys[key] = struct{}{}
	s.order = append(s.order, key)
}

// NoopStore disables duplicate suppression; every record is fresh.
type NoopStore struct{}

func (NoopStore) Seen(context.Context, string) bool { return false }
func (NoopStore) Mark(context.Context, string)      {}
