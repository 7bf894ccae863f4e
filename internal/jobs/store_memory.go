package jobs

import (
	"context"
	"sync"
)

// InMemoryFailedJobStore backs unit tests and the development wiring.
type InMemoryFailedJobStore struct {
	mu     sync.RWMutex
	failed []*FailedJob
}

func NewInMemoryFailedJobStore() *InMemoryFailedJobStore {
	return &InMemoryFailedJobStore{}
}

func (s *InMemoryFailedJobStore) Create(_ context.Context, failed *FailedJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *failed
	s.failed = append(s.failed, &clone)
	return nil
}

func (s *InMemoryFailedJobStore) List(_ context.Context, limit int) ([]*FailedJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*FailedJob, 0, len(s.failed))
	for i := len(s.failed) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		clone := *s.failed[i]
		out = append(out, &clone)
	}
	return out, nil
}
