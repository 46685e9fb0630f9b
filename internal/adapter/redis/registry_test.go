package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/cwygoda/mediagrab/internal/domain"
	"github.com/google/uuid"
)

// setupTestRegistry connects to MEDIAGRAB_TEST_REDIS_ADDR and isolates each
// test under a random key prefix.
func setupTestRegistry(t *testing.T) *Registry {
	t.Helper()
	addr := os.Getenv("MEDIAGRAB_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("MEDIAGRAB_TEST_REDIS_ADDR not set")
	}

	prefix := "mediagrab-test:" + uuid.NewString() + ":"
	reg, err := New(context.Background(), Options{Addr: addr, Prefix: prefix})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := reg.client.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			reg.client.Del(ctx, keys...)
		}
		reg.Close()
	})
	return reg
}

func TestRegistry_Lifecycle(t *testing.T) {
	reg := setupTestRegistry(t)
	ctx := context.Background()

	job, err := reg.Create(ctx, "https://example.com/v1", domain.FormatAudio)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := reg.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.State != domain.StatePending || got.SourceURL != job.SourceURL {
		t.Errorf("Get() = %+v, want pending %s", got, job.SourceURL)
	}

	if err := reg.Transition(ctx, job.ID, domain.StateFailed, "x"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("pending -> failed error = %v, want ErrInvalidTransition", err)
	}
	if err := reg.Transition(ctx, job.ID, domain.StateProcessing, ""); err != nil {
		t.Fatalf("Transition(processing) error = %v", err)
	}
	if err := reg.Transition(ctx, job.ID, domain.StateSucceeded, job.ID+"_song.mp3"); err != nil {
		t.Fatalf("Transition(succeeded) error = %v", err)
	}
	if err := reg.Transition(ctx, job.ID, domain.StateFailed, "late"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("terminal transition error = %v, want ErrInvalidTransition", err)
	}

	got, _ = reg.Get(ctx, job.ID)
	if got.State != domain.StateSucceeded || got.Artifact != job.ID+"_song.mp3" {
		t.Errorf("Get() = %+v, want succeeded", got)
	}
}

func TestRegistry_CreateIndexesJob(t *testing.T) {
	reg := setupTestRegistry(t)
	ctx := context.Background()

	job, err := reg.Create(ctx, "https://example.com/v", domain.FormatAudio)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	score, err := reg.client.ZScore(ctx, reg.indexKey(), job.ID).Result()
	if err != nil {
		t.Fatalf("index entry missing for %s: %v", job.ID, err)
	}
	if want := float64(job.CreatedAt.UnixNano()); score != want {
		t.Errorf("index score = %v, want %v", score, want)
	}
	if n, err := reg.client.Exists(ctx, reg.jobKey(job.ID)).Result(); err != nil || n != 1 {
		t.Errorf("job record exists = %d, %v; want 1", n, err)
	}
}

func TestRegistry_NotFound(t *testing.T) {
	reg := setupTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.Get(ctx, "missing"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("Get() error = %v, want %v", err, domain.ErrJobNotFound)
	}
	if err := reg.Transition(ctx, "missing", domain.StateProcessing, ""); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("Transition() error = %v, want %v", err, domain.ErrJobNotFound)
	}
}

func TestRegistry_PruneOlderThan(t *testing.T) {
	reg := setupTestRegistry(t)
	ctx := context.Background()
	base := time.Now()

	reg.now = func() time.Time { return base.Add(-25 * time.Hour) }
	old, _ := reg.Create(ctx, "https://example.com/old", domain.FormatVideo)

	reg.now = func() time.Time { return base }
	fresh, _ := reg.Create(ctx, "https://example.com/new", domain.FormatVideo)

	n, err := reg.PruneOlderThan(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("PruneOlderThan() error = %v", err)
	}
	if n != 1 {
		t.Errorf("PruneOlderThan() = %d, want 1", n)
	}
	if _, err := reg.Get(ctx, old.ID); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("old job still present: %v", err)
	}
	if _, err := reg.Get(ctx, fresh.ID); err != nil {
		t.Errorf("fresh job pruned: %v", err)
	}
}
