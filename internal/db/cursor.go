package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// cursorID is the fixed id of the singleton sync cursor row.
const cursorID = 1

// CursorRepository handles the singleton sync cursor record.
type CursorRepository struct {
	pool *pgxpool.Pool
}

// Read retrieves the sync cursor. Returns ErrNotFound before the first run.
func (r *CursorRepository) Read(ctx context.Context) (*SyncCursor, error) {
	query := `
		SELECT id, last_synced_at
		FROM sync_cursor
		WHERE id = $1
	`
	var cursor SyncCursor
	err := r.pool.QueryRow(ctx, query, cursorID).Scan(&cursor.ID, &cursor.LastSyncedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying sync cursor: %w", err)
	}
	return &cursor, nil
}

// Claim atomically checks the throttle window and claims the cursor slot in a
// single conditional write. It returns true when the caller won the claim:
// either no cursor existed yet, or the previous run finished at least window
// ago. Two concurrent callers can never both win.
func (r *CursorRepository) Claim(ctx context.Context, now time.Time, window time.Duration) (bool, error) {
	query := `
		INSERT INTO sync_cursor (id, last_synced_at)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET last_synced_at = EXCLUDED.last_synced_at
		WHERE sync_cursor.last_synced_at <= $3
	`
	tag, err := r.pool.Exec(ctx, query, cursorID, now, now.Add(-window))
	if err != nil {
		return false, fmt.Errorf("claiming sync cursor: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Touch records the completion time of a pipeline run, restarting the
// throttle window.
func (r *CursorRepository) Touch(ctx context.Context, now time.Time) error {
	query := `
		INSERT INTO sync_cursor (id, last_synced_at)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET last_synced_at = EXCLUDED.last_synced_at
	`
	if _, err := r.pool.Exec(ctx, query, cursorID, now); err != nil {
		return fmt.Errorf("updating sync cursor: %w", err)
	}
	return nil
}
