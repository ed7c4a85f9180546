// Package ingest implements the listening history ingestion pipeline: it
// fetches recently played tracks from Spotify on a throttled schedule,
// repairs stored records missing a preview URL, merges new events without
// duplicates and bounds the stored history to the most recent tracks.
//
// Every run is stateless; all decisions are rehydrated from the store, so the
// pipeline is safe to trigger repeatedly and concurrently from timers, user
// polling and manual refresh.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/justestif/muziqua/internal/db"
	"github.com/justestif/muziqua/internal/spotify"
)

const (
	// DefaultCooldown is the minimum time between pipeline runs.
	DefaultCooldown = 3 * time.Minute

	// MaxTracks bounds the stored history to the most recent plays.
	MaxTracks = 50

	// PageLimit is the upstream page size. One page per run is a deliberate
	// backpressure policy: each invocation does a bounded amount of work and
	// the next run picks up from the new cursor.
	PageLimit = 50
)

// Player is the subset of the upstream client the pipeline needs.
type Player interface {
	RecentlyPlayed(ctx context.Context, after time.Time, limit int) ([]spotify.PlayedTrack, error)
	TracksByIDs(ctx context.Context, ids []string) (map[string]spotify.Track, error)
}

// Connector authenticates against the upstream API for one run. Credential
// and token failures surface here, before any store write beyond the claim.
type Connector interface {
	Connect(ctx context.Context) (Player, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context) (Player, error)

// Connect implements Connector.
func (f ConnectorFunc) Connect(ctx context.Context) (Player, error) {
	return f(ctx)
}

// HistoryStore is the play event store the pipeline writes to.
type HistoryStore interface {
	List(ctx context.Context, limit, offset int) ([]db.PlayEvent, error)
	Create(ctx context.Context, event *db.PlayEvent) (bool, error)
	UpdatePreviewURL(ctx context.Context, id uuid.UUID, previewURL string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// CursorStore tracks pipeline progress and implements the throttle gate as a
// single atomic check-and-claim write.
type CursorStore interface {
	Claim(ctx context.Context, now time.Time, window time.Duration) (bool, error)
	Touch(ctx context.Context, now time.Time) error
}

// Result is the structured outcome of one pipeline run.
type Result struct {
	Throttled    bool
	Synced       int // events created
	Deleted      int // events removed by the retention trim
	Backfilled   int // events whose preview URL was repaired
	TotalFetched int // events seen in the fetched page, including known ones
	Message      string
}

// Pipeline orchestrates one ingestion run per trigger.
type Pipeline struct {
	history   HistoryStore
	cursor    CursorStore
	connector Connector
	log       zerolog.Logger
	cooldown  time.Duration
	maxTracks int
	pageLimit int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithCooldown sets the minimum time between runs.
func WithCooldown(d time.Duration) Option {
	return func(p *Pipeline) {
		p.cooldown = d
	}
}

// WithMaxTracks sets the retention bound.
func WithMaxTracks(n int) Option {
	return func(p *Pipeline) {
		p.maxTracks = n
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(log zerolog.Logger) Option {
	return func(p *Pipeline) {
		p.log = log
	}
}

// New creates a pipeline over the given store and upstream connector.
func New(history HistoryStore, cursor CursorStore, connector Connector, opts ...Option) *Pipeline {
	p := &Pipeline{
		history:   history,
		cursor:    cursor,
		connector: connector,
		log:       zerolog.Nop(),
		cooldown:  DefaultCooldown,
		maxTracks: MaxTracks,
		pageLimit: PageLimit,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one ingestion pass: gate, token refresh, cursor-bounded fetch,
// preview backfill, deduplicated merge, retention trim, cursor update.
//
// A throttled run returns a Result with Throttled set and zero counts; no
// network call or further write happens. Any error before the merge step
// aborts the run with no event writes. Per-record failures during backfill
// and trim are logged and skipped, never propagated.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	claimed, err := p.cursor.Claim(ctx, time.Now(), p.cooldown)
	if err != nil {
		return nil, fmt.Errorf("claiming sync slot: %w", err)
	}
	if !claimed {
		return &Result{Throttled: true, Message: "throttled"}, nil
	}

	player, err := p.connector.Connect(ctx)
	if err != nil {
		return nil, err
	}

	// The newest stored event is the exclusive lower bound for the fetch.
	// An empty store fetches the most recent page unbounded.
	var after time.Time
	newest, err := p.history.List(ctx, 1, 0)
	if err != nil {
		return nil, fmt.Errorf("reading newest event: %w", err)
	}
	if len(newest) > 0 {
		after = newest[0].PlayedAt
	}

	fetched, err := player.RecentlyPlayed(ctx, after, p.pageLimit)
	if err != nil {
		return nil, err
	}

	result := &Result{TotalFetched: len(fetched)}

	// Backfill runs regardless of whether the fetch found anything new; it is
	// an eventually-consistent repair of earlier ingestions.
	result.Backfilled = p.backfill(ctx, player)

	if len(fetched) > 0 {
		synced, err := p.merge(ctx, fetched)
		if err != nil {
			return nil, err
		}
		result.Synced = synced
	} else {
		result.Message = "no new tracks"
	}

	result.Deleted = p.trim(ctx)

	// Restart the throttle window even when nothing new was found.
	if err := p.cursor.Touch(ctx, time.Now()); err != nil {
		return nil, fmt.Errorf("updating sync cursor: %w", err)
	}

	return result, nil
}

// merge creates a play event for each fetched item not already stored.
// The dedup key is the exact upstream played-at timestamp at millisecond
// precision; order of the fetched page is irrelevant.
func (p *Pipeline) merge(ctx context.Context, fetched []spotify.PlayedTrack) (int, error) {
	recent, err := p.history.List(ctx, p.maxTracks, 0)
	if err != nil {
		return 0, fmt.Errorf("reading recent events: %w", err)
	}

	seen := make(map[int64]struct{}, len(recent))
	for _, e := range recent {
		seen[e.PlayedAt.UnixMilli()] = struct{}{}
	}

	synced := 0
	for _, item := range fetched {
		key := item.PlayedAt.UnixMilli()
		if _, ok := seen[key]; ok {
			continue
		}

		event := &db.PlayEvent{
			TrackName:       item.Name,
			ArtistName:      item.ArtistNames,
			AlbumName:       item.AlbumName,
			AlbumImageURL:   item.AlbumImageURL,
			SpotifyTrackID:  item.ID,
			SpotifyTrackURL: item.URL,
			DurationMs:      item.DurationMs,
			PlayedAt:        item.PlayedAt,
			PreviewURL:      item.PreviewURL,
		}
		created, err := p.history.Create(ctx, event)
		if err != nil {
			return synced, fmt.Errorf("creating play event: %w", err)
		}
		if created {
			synced++
		}
		seen[key] = struct{}{}
	}
	return synced, nil
}

// backfill patches stored events missing a preview URL from one batch track
// lookup. Failures leave records untouched; they are retried on a later run.
func (p *Pipeline) backfill(ctx context.Context, player Player) int {
	recent, err := p.history.List(ctx, p.maxTracks, 0)
	if err != nil {
		p.log.Warn().Err(err).Msg("backfill: reading recent events failed")
		return 0
	}

	var missing []db.PlayEvent
	idSet := make(map[string]struct{})
	var ids []string
	for _, e := range recent {
		if e.PreviewURL != "" || e.SpotifyTrackID == "" {
			continue
		}
		missing = append(missing, e)
		if _, ok := idSet[e.SpotifyTrackID]; !ok {
			idSet[e.SpotifyTrackID] = struct{}{}
			ids = append(ids, e.SpotifyTrackID)
		}
	}
	if len(missing) == 0 {
		return 0
	}

	tracks, err := player.TracksByIDs(ctx, ids)
	if err != nil {
		p.log.Warn().Err(err).Msg("backfill: track lookup failed")
		return 0
	}

	backfilled := 0
	for _, e := range missing {
		track, ok := tracks[e.SpotifyTrackID]
		if !ok || track.PreviewURL == "" {
			continue
		}
		if err := p.history.UpdatePreviewURL(ctx, e.ID, track.PreviewURL); err != nil {
			p.log.Warn().Err(err).Str("track", e.TrackName).Msg("backfill: update failed")
			continue
		}
		backfilled++
	}
	return backfilled
}

// trim deletes every event beyond the newest maxTracks. The wide read window
// tolerates rows inserted moments earlier; deletions tolerate "already gone".
func (p *Pipeline) trim(ctx context.Context) int {
	events, err := p.history.List(ctx, p.maxTracks+p.pageLimit, 0)
	if err != nil {
		p.log.Warn().Err(err).Msg("trim: reading events failed")
		return 0
	}
	if len(events) <= p.maxTracks {
		return 0
	}

	deleted := 0
	for _, e := range events[p.maxTracks:] {
		if err := p.history.Delete(ctx, e.ID); err != nil {
			p.log.Warn().Err(err).Str("track", e.TrackName).Msg("trim: delete failed")
			continue
		}
		deleted++
	}
	return deleted
}
