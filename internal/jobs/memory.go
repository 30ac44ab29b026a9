package jobs

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mu    sync.RWMutex
	items map[string]Job
	ttl   time.Duration
	clock func() time.Time
}

// NewMemory builds a process-local store. Finished jobs expire ttl after
// their last update; a non-positive ttl keeps them until the process exits.
func NewMemory(ttl time.Duration) Store {
	return &memoryStore{items: make(map[string]Job), ttl: ttl, clock: time.Now}
}

func (s *memoryStore) Save(_ context.Context, job Job) error {
	s.mu.Lock()
	s.items[job.ID] = job
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Get(_ context.Context, id string) (Job, error) {
	s.mu.RLock()
	job, ok := s.items[id]
	s.mu.RUnlock()
	if !ok || s.expired(job) {
		return Job{}, ErrNotFound
	}
	return job, nil
}

func (s *memoryStore) Prune(_ context.Context) error {
	s.mu.Lock()
	for id, job := range s.items {
		if s.expired(job) {
			delete(s.items, id)
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Close() error { return nil }

func (s *memoryStore) expired(job Job) bool {
	return s.ttl > 0 && job.Status.Done() && s.clock().Sub(job.UpdatedAt) > s.ttl
}
