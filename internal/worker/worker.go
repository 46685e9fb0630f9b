package worker

import (
	"context"
	"log"
	"time"
)

// Maintainer performs one round of housekeeping.
type Maintainer interface {
	Maintain(ctx context.Context)
}

// Janitor periodically sweeps expired artifacts and prunes old jobs.
type Janitor struct {
	svc      Maintainer
	interval time.Duration
}

// NewJanitor creates a janitor running svc.Maintain every interval.
func NewJanitor(svc Maintainer, interval time.Duration) *Janitor {
	return &Janitor{
		svc:      svc,
		interval: interval,
	}
}

// Run performs one round immediately, then one per tick until ctx is
// cancelled.
func (j *Janitor) Run(ctx context.Context) {
	log.Printf("janitor started, sweeping every %s", j.interval)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.svc.Maintain(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Println("janitor shutting down")
			return
		case <-ticker.C:
			j.svc.Maintain(ctx)
		}
	}
}
