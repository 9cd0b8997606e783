package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

const defaultListLimit = 20

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// Run is one row of mirror_runs.
type Run struct {
	ID           string         `db:"id"           json:"id"`
	RootURL      string         `db:"root_url"     json:"root_url"`
	ArchiveRef   string         `db:"archive_ref"  json:"archive_ref"`
	Status       string         `db:"status"       json:"status"`
	Entries      int            `db:"entries"      json:"entries"`
	Broken       int            `db:"broken"       json:"broken"`
	Unscrapable  int            `db:"unscrapable"  json:"unscrapable"`
	Unrecognized int            `db:"unrecognized" json:"unrecognized"`
	StartedAt    time.Time      `db:"started_at"   json:"started_at"`
	FinishedAt   *time.Time     `db:"finished_at"  json:"finished_at,omitempty"`
	Error        sql.NullString `db:"error"        json:"-"`
}

// RunRepository handles database operations for mirroring runs.
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a run in the running state.
func (r *RunRepository) Create(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO mirror_runs (id, root_url, status, started_at)
		VALUES ($1, $2, $3, $4)
	`

	if _, err := r.db.ExecContext(ctx, query, run.ID, run.RootURL, run.Status, run.StartedAt); err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// Finish records the outcome of a run.
func (r *RunRepository) Finish(ctx context.Context, run *Run) error {
	query := `
		UPDATE mirror_runs
		SET archive_ref = $1,
		    status = $2,
		    entries = $3,
		    broken = $4,
		    unscrapable = $5,
		    unrecognized = $6,
		    finished_at = $7,
		    error = $8
		WHERE id = $9
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		run.ArchiveRef,
		run.Status,
		run.Entries,
		run.Broken,
		run.Unscrapable,
		run.Unrecognized,
		run.FinishedAt,
		run.Error,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
	}
	return nil
}

// GetByID retrieves a run by its ID.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*Run, error) {
	var run Run
	query := `
		SELECT id, root_url, archive_ref, status, entries, broken, unscrapable,
		       unrecognized, started_at, finished_at, error
		FROM mirror_runs
		WHERE id = $1
	`

	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// List returns the most recent runs first. A non-positive limit uses the default.
func (r *RunRepository) List(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT id, root_url, archive_ref, status, entries, broken, unscrapable,
		       unrecognized, started_at, finished_at, error
		FROM mirror_runs
		ORDER BY started_at DESC
		LIMIT $1
	`

	var runs []*Run
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}
