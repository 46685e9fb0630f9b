package extractor

import (
	"context"
	"log"

	"github.com/cwygoda/mediagrab/internal/domain"
)

// Registry routes extraction requests to registered extractors.
type Registry struct {
	extractors []domain.URLExtractor
}

// NewRegistry creates a new extractor registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends an extractor. Earlier registrations win on overlapping
// patterns, so catch-alls go last.
func (r *Registry) Register(e domain.URLExtractor) {
	r.extractors = append(r.extractors, e)
}

// Match returns the first extractor that matches the URL, or nil.
func (r *Registry) Match(url string) domain.URLExtractor {
	for _, e := range r.extractors {
		if e.Match(url) {
			return e
		}
	}
	return nil
}

// Extractors returns all registered extractors.
func (r *Registry) Extractors() []domain.URLExtractor {
	return r.extractors
}

// Extract implements domain.Extractor. It picks the first extractor whose
// pattern matches the source URL, logs that routing decision together with
// the job ID and requested format, and delegates to it. The returned hint
// is the extractor's, unchanged. A URL no extractor claims fails with
// domain.ErrNoExtractor before anything is run or logged.
func (r *Registry) Extract(ctx context.Context, req domain.ExtractRequest) (string, error) {
	e := r.Match(req.SourceURL)
	if e == nil {
		return "", domain.ErrNoExtractor
	}
	log.Printf("job %s: extracting %s as %s with %s", req.JobID, req.SourceURL, req.Format, e.Name())
	return e.Extract(ctx, req)
}
