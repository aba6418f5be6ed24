package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryWindowStore implements WindowStore in process memory. It is the
// fallback when Redis is down and the primary for single-instance deploys.
type MemoryWindowStore struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

// NewMemoryWindowStore creates an empty in-memory window store.
func NewMemoryWindowStore() *MemoryWindowStore {
	return &MemoryWindowStore{windows: make(map[string][]time.Time)}
}

func (s *MemoryWindowStore) Slide(ctx context.Context, key string, max int, window time.Duration, now time.Time) (int, time.Duration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.purge(key, window, now)
	if len(events) >= max {
		// A zero-max window is full while empty; room only "opens" a full
		// window length away.
		resetIn := window
		if len(events) > 0 {
			resetIn = events[0].Add(window).Sub(now)
			if resetIn < 0 {
				resetIn = 0
			}
		}
		return len(events), resetIn, false, nil
	}

	events = append(events, now)
	s.windows[key] = events
	return len(events), events[0].Add(window).Sub(now), true, nil
}

func (s *MemoryWindowStore) Forgive(ctx context.Context, key string, window time.Duration, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.purge(key, window, now)
	if len(events) == 0 {
		return nil
	}
	events = events[:len(events)-1]
	if len(events) == 0 {
		delete(s.windows, key)
		return nil
	}
	s.windows[key] = events
	return nil
}

// purge drops expired events and empty keys. Caller holds the lock.
func (s *MemoryWindowStore) purge(key string, window time.Duration, now time.Time) []time.Time {
	events := s.windows[key]
	cutoff := now.Add(-window)
	i := 0
	for i < len(events) && !events[i].After(cutoff) {
		i++
	}
	if i > 0 {
		events = events[i:]
		if len(events) == 0 {
			delete(s.windows, key)
		} else {
			s.windows[key] = events
		}
	}
	return events
}
