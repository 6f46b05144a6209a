package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"video-transcript-go/internal/types"
)

type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]types.Job
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]types.Job),
		now:  time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context) (string, error) {
	id := uuid.New().String()
	now := s.now()

	s.mu.Lock()
	s.jobs[id] = types.Job{
		ID:        id,
		Status:    types.StatusStarting,
		Progress:  0,
		Message:   "Starting...",
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Unlock()

	return id, nil
}

func (s *MemoryStore) Set(ctx context.Context, id string, status types.JobStatus, progress int, message string, result *types.TranscriptResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	s.jobs[id] = types.Job{
		ID:        id,
		Status:    status,
		Progress:  progress,
		Message:   message,
		Result:    result,
		CreatedAt: prev.CreatedAt,
		UpdatedAt: s.now(),
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (types.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return types.Job{}, ErrNotFound
	}
	return job, nil
}

// Len is the number of jobs held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
