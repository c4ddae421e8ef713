package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/volunteerhq/galaxysync/internal/repository"
)

// CheckpointRepository implements repository.CheckpointStore for SQLite
type CheckpointRepository struct {
	db *DB
}

// NewCheckpointRepository creates a new CheckpointRepository
func NewCheckpointRepository(db *DB) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

// Get retrieves the checkpoint for one resource
func (r *CheckpointRepository) Get(ctx context.Context, resource string) (*repository.Checkpoint, error) {
	query := `SELECT resource, last_sync, last_success FROM checkpoints WHERE resource = ?`

	cp, err := scanCheckpoint(r.db.QueryRowContext(ctx, query, resource))
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint %s: %w", resource, err)
	}
	return cp, nil
}

// List returns every checkpoint ordered by resource name
func (r *CheckpointRepository) List(ctx context.Context) ([]repository.Checkpoint, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT resource, last_sync, last_success FROM checkpoints ORDER BY resource`)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var cps []repository.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		cps = append(cps, *cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read checkpoints: %w", err)
	}
	return cps, nil
}

// MarkAttempt advances last_sync for a resource
func (r *CheckpointRepository) MarkAttempt(ctx context.Context, resource string, at time.Time) error {
	query := `
		INSERT INTO checkpoints (resource, last_sync)
		VALUES (?, ?)
		ON CONFLICT(resource) DO UPDATE SET last_sync = excluded.last_sync
	`
	if _, err := r.db.ExecContext(ctx, query, resource, at.UTC()); err != nil {
		return fmt.Errorf("failed to mark attempt for %s: %w", resource, err)
	}
	return nil
}

// MarkSuccess advances last_success for a resource. last_sync is pulled
// forward when it trails the new value, preserving the invariant
// last_success <= last_sync.
func (r *CheckpointRepository) MarkSuccess(ctx context.Context, resource string, at time.Time) error {
	query := `
		INSERT INTO checkpoints (resource, last_sync, last_success)
		VALUES (?, ?, ?)
		ON CONFLICT(resource) DO UPDATE SET
			last_success = excluded.last_success,
			last_sync = CASE
				WHEN checkpoints.last_sync IS NULL OR checkpoints.last_sync < excluded.last_sync
				THEN excluded.last_sync
				ELSE checkpoints.last_sync
			END
	`
	if _, err := r.db.ExecContext(ctx, query, resource, at.UTC(), at.UTC()); err != nil {
		return fmt.Errorf("failed to mark success for %s: %w", resource, err)
	}
	return nil
}

func scanCheckpoint(row rowScanner) (*repository.Checkpoint, error) {
	var cp repository.Checkpoint
	var lastSync, lastSuccess sql.NullTime
	if err := row.Scan(&cp.Resource, &lastSync, &lastSuccess); err != nil {
		return nil, err
	}
	if lastSync.Valid {
		t := lastSync.Time
		cp.LastSync = &t
	}
	if lastSuccess.Valid {
		t := lastSuccess.Time
		cp.LastSuccess = &t
	}
	return &cp, nil
}
