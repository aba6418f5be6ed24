package quota

import (
	"context"
	"sync"
)

type memoryState struct {
	used      int64
	lastReset string
}

// MemoryStore implements Store in memory. Used for demo accounts and tests;
// state is process-local and lost on restart.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]*memoryState
}

// NewMemoryStore creates an empty in-memory quota store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*memoryState)}
}

func (s *MemoryStore) UsedToday(ctx context.Context, userID, today string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.users[userID]
	if !ok {
		state = &memoryState{lastReset: today}
		s.users[userID] = state
	}
	if state.lastReset != today {
		state.used = 0
		state.lastReset = today
	}
	return state.used, nil
}

func (s *MemoryStore) Increment(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.users[userID]
	if !ok {
		state = &memoryState{}
		s.users[userID] = state
	}
	state.used++
	return state.used, nil
}

// Seed sets a user's state directly. Test hook.
func (s *MemoryStore) Seed(userID string, used int64, lastReset string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = &memoryState{used: used, lastReset: lastReset}
}
