package worker

import (
	"context"
	"errors"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/cwygoda/mediagrab/internal/domain"
)

// Locator finds the artifact an extraction produced for a job.
type Locator interface {
	Locate(jobID string, format domain.Format) (string, error)
}

// Options bounds the runner.
type Options struct {
	// Workers is the number of extractions allowed to run at once.
	Workers int
	// JobTimeout caps one extraction. Zero means no deadline.
	JobTimeout time.Duration
}

// recordTimeout bounds the final registry write, which must not depend on
// the job's own context.
const recordTimeout = 10 * time.Second

// Runner executes dispatched jobs off the caller's path. Each job gets its
// own goroutine, which waits for one of a fixed number of slots before
// touching the job; queued jobs stay pending until then.
type Runner struct {
	registry  domain.JobRegistry
	extractor domain.Extractor
	locator   Locator
	timeout   time.Duration

	slots    chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	stopping chan struct{}

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewRunner creates a runner. Workers below one are treated as one.
func NewRunner(registry domain.JobRegistry, extractor domain.Extractor, locator Locator, opts Options) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		registry:  registry,
		extractor: extractor,
		locator:   locator,
		timeout:   opts.JobTimeout,
		slots:     make(chan struct{}, opts.Workers),
		ctx:       ctx,
		cancel:    cancel,
		stopping:  make(chan struct{}),
	}
}

// Dispatch schedules job and returns immediately.
func (r *Runner) Dispatch(job domain.Job) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		log.Printf("job %s: runner stopped, left pending", job.ID)
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go r.run(job)
}

func (r *Runner) run(job domain.Job) {
	defer r.wg.Done()

	select {
	case r.slots <- struct{}{}:
	case <-r.stopping:
		log.Printf("job %s: shutdown before start, left pending", job.ID)
		return
	}
	defer func() { <-r.slots }()

	// A slot may win the race against a concurrent Shutdown.
	select {
	case <-r.stopping:
		log.Printf("job %s: shutdown before start, left pending", job.ID)
		return
	default:
	}

	r.execute(r.ctx, job)
}

// execute drives one job from pending to a terminal state. It never
// panics and never returns an error; every outcome is recorded or logged.
func (r *Runner) execute(ctx context.Context, job domain.Job) {
	defer func() {
		if v := recover(); v != nil {
			log.Printf("job %s: panic: %v\n%s", job.ID, v, debug.Stack())
			r.record(job.ID, domain.StateFailed, "internal error")
		}
	}()

	if err := r.registry.Transition(ctx, job.ID, domain.StateProcessing, ""); err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			log.Printf("job %s: pruned before start, skipping", job.ID)
			return
		}
		log.Printf("job %s: claim failed: %v", job.ID, err)
		return
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	started := time.Now()
	hint, err := r.extractor.Extract(ctx, domain.ExtractRequest{
		JobID:     job.ID,
		SourceURL: job.SourceURL,
		Format:    job.Format,
	})
	if err != nil {
		log.Printf("job %s: extraction failed after %s: %v", job.ID, time.Since(started).Round(time.Millisecond), err)
		msg := err.Error()
		if msg == "" {
			msg = "extraction failed"
		}
		r.record(job.ID, domain.StateFailed, msg)
		return
	}

	name, err := r.locator.Locate(job.ID, job.Format)
	if err != nil {
		log.Printf("job %s: extractor reported %q but no %s artifact was found: %v", job.ID, hint, job.Format, err)
		r.record(job.ID, domain.StateFailed, domain.MsgArtifactMissing)
		return
	}

	log.Printf("job %s: succeeded with %s (started %s)", job.ID, name, humanize.Time(started))
	r.record(job.ID, domain.StateSucceeded, name)
}

// record writes a terminal state. A job pruned while running is a no-op.
func (r *Runner) record(id string, state domain.JobState, payload string) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	err := r.registry.Transition(ctx, id, state, payload)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrJobNotFound):
		log.Printf("job %s: pruned while running, dropping %s result", id, state)
	default:
		log.Printf("job %s: record %s: %v", id, state, err)
	}
}

// Shutdown stops accepting jobs and waits for running ones. Jobs still
// queued stay pending. When ctx expires, running extractions are cancelled
// and Shutdown waits for them to record their outcome.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.stopping)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}
