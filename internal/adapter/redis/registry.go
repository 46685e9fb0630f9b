// Package redis implements the job registry on a Redis server.
//
// Keys: {prefix}job:<id> => JSON(record); sorted set {prefix}jobs indexes
// job IDs by creation time for pruning.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cwygoda/mediagrab/internal/domain"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const maxTxAttempts = 5

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Registry implements domain.JobRegistry using Redis.
type Registry struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

type record struct {
	ID        string `json:"job_id"`
	SourceURL string `json:"source_url"`
	Format    string `json:"format"`
	State     string `json:"state"`
	Artifact  string `json:"artifact,omitempty"`
	Error     string `json:"error,omitempty"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, opts Options) (*Registry, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return &Registry{client: client, prefix: opts.Prefix, now: time.Now}, nil
}

// Close closes the client.
func (r *Registry) Close() error {
	return r.client.Close()
}

func (r *Registry) jobKey(id string) string { return r.prefix + "job:" + id }
func (r *Registry) indexKey() string        { return r.prefix + "jobs" }

// Create stores a new pending job.
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

	b, err := json.Marshal(toRecord(job))
	if err != nil {
		return nil, err
	}
	// The record and its index entry go in one MULTI so a failed index
	// write never leaves an unprunable job behind.
	var created *redis.BoolCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		created = pipe.SetNX(ctx, r.jobKey(job.ID), b, 0)
		pipe.ZAddNX(ctx, r.indexKey(), redis.Z{Score: float64(now.UnixNano()), Member: job.ID})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !created.Val() {
		return nil, fmt.Errorf("job with ID %s already exists", job.ID)
	}
	return job, nil
}

// Get retrieves a job by ID.
func (r *Registry) Get(ctx context.Context, id string) (*domain.Job, error) {
	b, err := r.client.Get(ctx, r.jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return decode(b)
}

// Transition applies a state change inside a WATCH/MULTI transaction,
// retrying when another writer touched the key.
func (r *Registry) Transition(ctx context.Context, id string, next domain.JobState, payload string) error {
	key := r.jobKey(id)
	txf := func(tx *redis.Tx) error {
		b, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrJobNotFound
		}
		if err != nil {
			return err
		}
		job, err := decode(b)
		if err != nil {
			return err
		}
		if err := job.Apply(next, payload, r.now()); err != nil {
			return err
		}
		out, err := json.Marshal(toRecord(job))
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, redis.KeepTTL)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxAttempts; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("transition job %s: too much contention", id)
}

// PruneOlderThan deletes jobs created more than age ago, in any state.
func (r *Registry) PruneOlderThan(ctx context.Context, age time.Duration) (int, error) {
	cutoff := r.now().Add(-age).UnixNano()
	ids, err := r.client.ZRangeByScore(ctx, r.indexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ids))
	members := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = r.jobKey(id)
		members[i] = id
	}
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.ZRem(ctx, r.indexKey(), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func toRecord(j *domain.Job) record {
	return record{
		ID:        j.ID,
		SourceURL: j.SourceURL,
		Format:    string(j.Format),
		State:     string(j.State),
		Artifact:  j.Artifact,
		Error:     j.Error,
		CreatedAt: j.CreatedAt.UnixNano(),
		UpdatedAt: j.UpdatedAt.UnixNano(),
	}
}

func decode(b []byte) (*domain.Job, error) {
	var rec record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &domain.Job{
		ID:        rec.ID,
		SourceURL: rec.SourceURL,
		Format:    domain.Format(rec.Format),
		State:     domain.JobState(rec.State),
		Artifact:  rec.Artifact,
		Error:     rec.Error,
		CreatedAt: time.Unix(0, rec.CreatedAt),
		UpdatedAt: time.Unix(0, rec.UpdatedAt),
	}, nil
}
