package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cwygoda/mediagrab/internal/domain"
	"github.com/google/uuid"
)

// Registry implements domain.JobRegistry with a mutex-guarded map.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
	now  func() time.Time
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		jobs: make(map[string]*domain.Job),
		now:  time.Now,
	}
}

// Create inserts a new pending job.
func (r *Registry) Create(ctx context.Context, sourceURL string, format domain.Format) (*domain.Job, error) {
	now := r.now()
	job := &domain.Job{
		ID:        uuid.NewString(),
		SourceURL: sourceURL,
		Format:    format,
		State:     domain.StatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.ID]; exists {
		panic(fmt.Sprintf("memory: duplicate job id %s", job.ID))
	}
	r.jobs[job.ID] = job

	copied := *job
	return &copied, nil
}

// Get returns a snapshot of the job.
func (r *Registry) Get(ctx context.Context, id string) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

// Transition validates and applies a state change under the write lock.
func (r *Registry) Transition(ctx context.Context, id string, next domain.JobState, payload string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	return job.Apply(next, payload, r.now())
}

// PruneOlderThan removes jobs created more than age ago, in any state.
func (r *Registry) PruneOlderThan(ctx context.Context, age time.Duration) (int, error) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, job := range r.jobs {
		if job.Expired(age, now) {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of tracked jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
