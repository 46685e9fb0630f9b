package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cwygoda/mediagrab/internal/domain"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// MemoryDSN keeps the job table in process memory.
const MemoryDSN = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id         TEXT PRIMARY KEY,
    url        TEXT NOT NULL,
    format     TEXT NOT NULL,
    status     TEXT NOT NULL DEFAULT 'pending',
    artifact   TEXT,
    error      TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
`

// Repository implements domain.JobRegistry using SQLite.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// New opens the database and initializes the schema. Job records do not
// survive a restart, so any rows left by a previous process are discarded.
func New(dbPath string) (*Repository, error) {
	if dbPath == "" {
		dbPath = MemoryDSN
	}
	if dbPath != MemoryDSN {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection serializes writers and keeps :memory: databases
	// from splitting across connections.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`DELETE FROM jobs`); err != nil {
		db.Close()
		return nil, err
	}

	return &Repository{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Create inserts a new pending job.
func (r *Repository) Create(ctx context.Context, sourceURL string, format domain.Format) (*domain.Job, error) {
	now := r.now()
	job := &domain.Job{
		ID:        uuid.NewString(),
		SourceURL: sourceURL,
		Format:    format,
		State:     domain.StatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO jobs (id, url, format, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		job.ID, job.SourceURL, string(job.Format), string(job.State), now.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return job, nil
}

// Get retrieves a job by ID.
func (r *Repository) Get(ctx context.Context, id string) (*domain.Job, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, url, format, status, COALESCE(artifact, ''), COALESCE(error, ''), created_at, updated_at
		 FROM jobs WHERE id = ?`, id,
	)
	return scanJob(row)
}

// Transition applies a state change with a single conditional UPDATE, so
// readers see either the old row or the new one.
func (r *Repository) Transition(ctx context.Context, id string, next domain.JobState, payload string) error {
	preds := domain.Predecessors(next)
	if len(preds) != 1 || (next.IsTerminal() && payload == "") {
		return r.rejectTransition(ctx, id, next, payload)
	}

	now := r.now().UnixNano()
	var (
		result sql.Result
		err    error
	)
	switch next {
	case domain.StateSucceeded:
		result, err = r.db.ExecContext(ctx,
			`UPDATE jobs SET status = ?, artifact = ?, updated_at = ? WHERE id = ? AND status = ?`,
			string(next), payload, now, id, string(preds[0]),
		)
	case domain.StateFailed:
		result, err = r.db.ExecContext(ctx,
			`UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE id = ? AND status = ?`,
			string(next), payload, now, id, string(preds[0]),
		)
	default:
		result, err = r.db.ExecContext(ctx,
			`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			string(next), now, id, string(preds[0]),
		)
	}
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return r.rejectTransition(ctx, id, next, payload)
	}
	return nil
}

// rejectTransition reports why a transition could not be applied.
func (r *Repository) rejectTransition(ctx context.Context, id string, next domain.JobState, payload string) error {
	var status string
	err := r.db.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrJobNotFound
	}
	if err != nil {
		return err
	}
	if err := domain.CheckTransition(domain.JobState(status), next, payload); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, status, next)
}

// PruneOlderThan deletes jobs created more than age ago, in any state.
func (r *Repository) PruneOlderThan(ctx context.Context, age time.Duration) (int, error) {
	cutoff := r.now().Add(-age).UnixNano()
	result, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*domain.Job, error) {
	var (
		job                  domain.Job
		format, status       string
		createdAt, updatedAt int64
	)
	err := row.Scan(&job.ID, &job.SourceURL, &format, &status, &job.Artifact, &job.Error, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	job.Format = domain.Format(format)
	job.State = domain.JobState(status)
	job.CreatedAt = time.Unix(0, createdAt)
	job.UpdatedAt = time.Unix(0, updatedAt)
	return &job, nil
}
