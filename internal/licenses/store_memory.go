package licenses

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps usage in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]Usage
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]Usage)}
}

func (s *MemoryStore) Get(ctx context.Context, companyID string) (Usage, error) {
	if err := ctx.Err(); err != nil {
		return Usage{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.data[companyID]
	if !ok {
		return Usage{}, ErrNotFound
	}
	return u, nil
}

// Upsert replaces seats and term. Used seats carry over.
func (s *MemoryStore) Upsert(ctx context.Context, u Usage) (Usage, error) {
	if err := ctx.Err(); err != nil {
		return Usage{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.data[u.CompanyID]; ok {
		u.Used = prev.Used
	}
	s.data[u.CompanyID] = u
	return u, nil
}

func (s *MemoryStore) Assign(ctx context.Context, companyID string, n int, now time.Time) (Usage, error) {
	if err := ctx.Err(); err != nil {
		return Usage{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.data[companyID]
	if !ok {
		return Usage{}, ErrNotFound
	}
	if u.Expired(now) {
		return Usage{}, ErrExpired
	}
	if u.Used+n > u.Seats {
		return Usage{}, ErrLimitReached
	}
	u.Used += n
	s.data[companyID] = u
	return u, nil
}

func (s *MemoryStore) Release(ctx context.Context, companyID string, n int) (Usage, error) {
	if err := ctx.Err(); err != nil {
		return Usage{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.data[companyID]
	if !ok {
		return Usage{}, ErrNotFound
	}
	u.Used -= n
	if u.Used < 0 {
		u.Used = 0
	}
	s.data[companyID] = u
	return u, nil
}
