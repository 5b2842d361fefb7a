// Package jobs owns the asynchronous lifecycle of visualization jobs: an
// in-memory store with TTL expiry and a manager that runs the attempt loop
// with retry and backoff. Jobs live only for the process lifetime.
package jobs

import (
	"sync"
	"time"

	"server/internal/domain"
)

// Store is a concurrency-safe map of job id to job record. Reads hand out
// deep-copied snapshots; a record whose TTL has elapsed is purged on the
// read that discovers it and reported as not found.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
	now  func() time.Time
}

func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*domain.Job),
		now:  time.Now,
	}
}

// Put inserts the job, keyed by its id. Creation is the only caller; the
// record is cloned so the caller's copy cannot alias store state.
func (s *Store) Put(job *domain.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job.Clone()
}

// Get returns a snapshot of the job, or domain.ErrJobNotFound if the id is
// unknown or the record has expired. Expired records are removed so a
// second read for the same id also reports not found.
func (s *Store) Get(id string) (*domain.Job, error) {
	s.mu.RLock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.RUnlock()
		return nil, domain.ErrJobNotFound
	}
	expired := job.Expired(s.now())
	var snapshot *domain.Job
	if !expired {
		snapshot = job.Clone()
	}
	s.mu.RUnlock()

	if !expired {
		return snapshot, nil
	}

	s.mu.Lock()
	// Recheck under the write lock; another reader may have purged it.
	if job, ok := s.jobs[id]; ok && job.Expired(s.now()) {
		delete(s.jobs, id)
	}
	s.mu.Unlock()
	return nil, domain.ErrJobNotFound
}

// Update applies fn to the stored record under the write lock and stamps
// UpdatedAt, so every transition is atomic from a reader's point of view.
// It reports false when the record no longer exists.
func (s *Store) Update(id string, fn func(*domain.Job)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return false
	}
	fn(job)
	job.UpdatedAt = s.now()
	return true
}

// Sweep removes every expired record and returns how many were purged.
// Lazy read-side expiry keeps the store correct without it; the sweeper is
// a memory-pressure optimization.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for id, job := range s.jobs {
		if job.Expired(now) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of records currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
