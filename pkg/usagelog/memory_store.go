package usagelog

import (
	"context"
	"sync"
)

// MemoryStore implements Store in memory, newest record last. Used for demo
// accounts and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string][]Record
}

// NewMemoryStore creates an empty in-memory usage log.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]Record)}
}

func (s *MemoryStore) Append(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.UserID] = append(s.records[rec.UserID], rec)
	return nil
}

func (s *MemoryStore) Recent(ctx context.Context, userID string, n int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.records[userID]
	if n > len(all) {
		n = len(all)
	}
	out := make([]Record, 0, n)
	for i := len(all) - 1; i >= len(all)-n; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (s *MemoryStore) Totals(ctx context.Context, userID string) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total, successful int64
	for _, rec := range s.records[userID] {
		total++
		if rec.Success {
			successful++
		}
	}
	return total, successful, nil
}
