package domain

import (
	"context"
	"os"
	"time"
)

// JobRegistry is the driven port for job bookkeeping. Implementations must
// make Transition atomic with respect to Get.
type JobRegistry interface {
	Create(ctx context.Context, sourceURL string, format Format) (*Job, error)
	Get(ctx context.Context, id string) (*Job, error)
	Transition(ctx context.Context, id string, next JobState, payload string) error
	PruneOlderThan(ctx context.Context, age time.Duration) (int, error)
}

// ExtractRequest describes one external extraction call.
type ExtractRequest struct {
	JobID     string
	SourceURL string
	Format    Format
}

// Extractor is the driven port for retrieval and transcoding. On success a
// file named {JobID}*.{ext} exists in the artifact directory; the returned
// hint is informational only.
type Extractor interface {
	Extract(ctx context.Context, req ExtractRequest) (string, error)
}

// URLExtractor is an Extractor restricted to the URLs it matches.
type URLExtractor interface {
	Extractor
	Name() string
	Match(url string) bool
}

// ArtifactStore is the driven port for the artifact directory.
type ArtifactStore interface {
	List(ctx context.Context) ([]Artifact, error)
	Sweep(ctx context.Context) (int, error)
	Resolve(name string) (*os.File, Artifact, error)
	Locate(jobID string, format Format) (string, error)
}

// Dispatcher schedules a job's execution off the caller's path.
type Dispatcher interface {
	Dispatch(job Job)
}
