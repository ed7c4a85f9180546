package db

import (
	"time"

	"github.com/google/uuid"
)

// PlayEvent is one realized playback of a track. PlayedAt is the upstream
// timestamp and the natural identity of a play: the store never holds two
// events with the same PlayedAt.
type PlayEvent struct {
	ID              uuid.UUID
	TrackName       string
	ArtistName      string // multiple artists joined with ", "
	AlbumName       string
	AlbumImageURL   string
	SpotifyTrackID  string
	SpotifyTrackURL string
	DurationMs      int
	PlayedAt        time.Time
	PreviewURL      string // may be empty at ingestion; repaired by backfill
	CreatedAt       time.Time
}

// SyncCursor is the singleton record tracking pipeline progress. It is created
// on the first run and mutated on every subsequent run, never deleted.
type SyncCursor struct {
	ID           int16
	LastSyncedAt time.Time
}
