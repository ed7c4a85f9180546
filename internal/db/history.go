package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HistoryRepository handles play event database operations.
type HistoryRepository struct {
	pool *pgxpool.Pool
}

// List retrieves play events ordered by played_at descending.
func (r *HistoryRepository) List(ctx context.Context, limit, offset int) ([]PlayEvent, error) {
	query := `
		SELECT id, track_name, artist_name, album_name, album_image_url,
		       spotify_track_id, spotify_track_url, duration_ms, played_at,
		       preview_url, created_at
		FROM play_events
		ORDER BY played_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying play events: %w", err)
	}
	defer rows.Close()

	var events []PlayEvent
	for rows.Next() {
		var e PlayEvent
		if err := rows.Scan(
			&e.ID,
			&e.TrackName,
			&e.ArtistName,
			&e.AlbumName,
			&e.AlbumImageURL,
			&e.SpotifyTrackID,
			&e.SpotifyTrackURL,
			&e.DurationMs,
			&e.PlayedAt,
			&e.PreviewURL,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning play event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Create inserts a new play event, assigning an id if none is set.
// Returns false without error when an event with the same played_at already
// exists; the unique constraint makes double-creation impossible even across
// concurrent pipeline runs.
func (r *HistoryRepository) Create(ctx context.Context, event *PlayEvent) (bool, error) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}

	query := `
		INSERT INTO play_events (
			id, track_name, artist_name, album_name, album_image_url,
			spotify_track_id, spotify_track_url, duration_ms, played_at,
			preview_url, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (played_at) DO NOTHING
	`
	now := time.Now()
	tag, err := r.pool.Exec(ctx, query,
		event.ID,
		event.TrackName,
		event.ArtistName,
		event.AlbumName,
		event.AlbumImageURL,
		event.SpotifyTrackID,
		event.SpotifyTrackURL,
		event.DurationMs,
		event.PlayedAt,
		event.PreviewURL,
		now,
	)
	if err != nil {
		return false, fmt.Errorf("inserting play event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	event.CreatedAt = now
	return true, nil
}

// UpdatePreviewURL sets the preview URL for an event.
// Returns ErrNotFound if the event no longer exists.
func (r *HistoryRepository) UpdatePreviewURL(ctx context.Context, id uuid.UUID, previewURL string) error {
	query := `
		UPDATE play_events
		SET preview_url = $2
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, previewURL)
	if err != nil {
		return fmt.Errorf("updating preview url: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a play event. Deleting an id that is already gone succeeds:
// the contract is "absent afterward", so the retention trimmer can race with
// itself or with manual cleanup.
func (r *HistoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM play_events WHERE id = $1`
	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("deleting play event: %w", err)
	}
	return nil
}
