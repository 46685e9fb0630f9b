package domain

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"
)

// JobService orchestrates job operations.
type JobService struct {
	registry   JobRegistry
	store      ArtifactStore
	dispatcher Dispatcher
	jobTTL     time.Duration
}

// NewJobService creates a new JobService. Jobs older than jobTTL are pruned
// from the registry during listing and maintenance.
func NewJobService(registry JobRegistry, store ArtifactStore, dispatcher Dispatcher, jobTTL time.Duration) *JobService {
	return &JobService{
		registry:   registry,
		store:      store,
		dispatcher: dispatcher,
		jobTTL:     jobTTL,
	}
}

// Submit creates a pending job and schedules it without waiting.
func (s *JobService) Submit(ctx context.Context, rawURL, rawFormat string) (*Job, error) {
	format, err := ParseFormat(rawFormat)
	if err != nil {
		return nil, err
	}
	if !validURL(rawURL) {
		return nil, ErrInvalidURL
	}

	job, err := s.registry.Create(ctx, rawURL, format)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.dispatcher.Dispatch(*job)
	return job, nil
}

// Poll retrieves the current state of a job.
func (s *JobService) Poll(ctx context.Context, id string) (*Job, error) {
	return s.registry.Get(ctx, id)
}

// ListArtifacts prunes stale job records, then lists surviving artifacts
// newest first.
func (s *JobService) ListArtifacts(ctx context.Context) ([]Artifact, error) {
	s.prune(ctx)
	return s.store.List(ctx)
}

// OpenArtifact opens a named artifact for streaming.
func (s *JobService) OpenArtifact(ctx context.Context, name string) (*os.File, Artifact, error) {
	return s.store.Resolve(name)
}

// Maintain runs the retention sweep and prunes the registry.
func (s *JobService) Maintain(ctx context.Context) {
	if removed, err := s.store.Sweep(ctx); err != nil {
		log.Printf("maintenance: sweep error: %v", err)
	} else if removed > 0 {
		log.Printf("maintenance: swept %d artifact(s)", removed)
	}
	s.prune(ctx)
}

func (s *JobService) prune(ctx context.Context) {
	n, err := s.registry.PruneOlderThan(ctx, s.jobTTL)
	if err != nil {
		log.Printf("prune jobs: %v", err)
		return
	}
	if n > 0 {
		log.Printf("pruned %d job(s) older than %s", n, s.jobTTL)
	}
}

func validURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
