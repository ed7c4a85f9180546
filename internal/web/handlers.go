package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/justestif/muziqua/internal/db"
	"github.com/justestif/muziqua/internal/ingest"
	"github.com/justestif/muziqua/internal/metrics"
	"github.com/justestif/muziqua/internal/nowplaying"
	"github.com/justestif/muziqua/internal/presence"
)

// Runner executes one ingestion pipeline run.
type Runner interface {
	Run(ctx context.Context) (*ingest.Result, error)
}

// Resolver resolves the live playback status.
type Resolver interface {
	Resolve(ctx context.Context) (*nowplaying.Status, error)
}

// HistoryLister reads stored play events newest-first.
type HistoryLister interface {
	List(ctx context.Context, limit, offset int) ([]db.PlayEvent, error)
}

// PresenceUpdater publishes a playback status to an external presence system.
type PresenceUpdater interface {
	Update(ctx context.Context, status *nowplaying.Status) (string, error)
}

// Handlers contains the HTTP handlers for the service API.
type Handlers struct {
	pipeline Runner
	resolver Resolver
	history  HistoryLister
	slack    PresenceUpdater
	badge    func(*nowplaying.Status) []byte
	log      zerolog.Logger
}

// NewHandlers creates a Handlers instance.
func NewHandlers(pipeline Runner, resolver Resolver, history HistoryLister, slack PresenceUpdater, badge func(*nowplaying.Status) []byte, log zerolog.Logger) *Handlers {
	return &Handlers{
		pipeline: pipeline,
		resolver: resolver,
		history:  history,
		slack:    slack,
		badge:    badge,
		log:      log,
	}
}

// syncResponse is the structured outcome of a pipeline invocation.
type syncResponse struct {
	Success      bool   `json:"success"`
	Synced       int    `json:"synced"`
	Deleted      int    `json:"deleted"`
	Backfilled   int    `json:"backfilled"`
	TotalFetched int    `json:"total_fetched"`
	Message      string `json:"message,omitempty"`
	Error        string `json:"error,omitempty"`
}

// trackResponse is the playback status payload.
type trackResponse struct {
	Playing       bool   `json:"playing"`
	Source        string `json:"source,omitempty"`
	TrackName     string `json:"track_name,omitempty"`
	ArtistName    string `json:"artist_name,omitempty"`
	AlbumName     string `json:"album_name,omitempty"`
	AlbumImageURL string `json:"album_image_url,omitempty"`
	TrackURL      string `json:"spotify_track_url,omitempty"`
	DurationMs    int    `json:"duration_ms,omitempty"`
	ProgressMs    int    `json:"progress_ms"`
	PreviewURL    string `json:"preview_url,omitempty"`
	Error         string `json:"error,omitempty"`
}

// historyItem is one stored play event.
type historyItem struct {
	ID            string    `json:"id"`
	TrackName     string    `json:"track_name"`
	ArtistName    string    `json:"artist_name"`
	AlbumName     string    `json:"album_name"`
	AlbumImageURL string    `json:"album_image_url"`
	TrackID       string    `json:"spotify_track_id"`
	TrackURL      string    `json:"spotify_track_url"`
	DurationMs    int       `json:"duration_ms"`
	PlayedAt      time.Time `json:"played_at"`
	PreviewURL    string    `json:"preview_url"`
}

// presenceResponse reports the result of a presence push.
type presenceResponse struct {
	Success    bool   `json:"success"`
	Source     string `json:"source,omitempty"`
	StatusText string `json:"status_text,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Sync triggers one ingestion pipeline run (POST /api/sync). The request
// carries no parameters; the outcome is always a JSON body, never an
// unhandled fault.
func (h *Handlers) Sync(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	result, err := h.pipeline.Run(r.Context())
	metrics.ObserveRun(result, err, time.Since(start))

	if err != nil {
		h.log.Error().Err(err).Msg("sync run failed")
		writeJSON(w, syncResponse{Success: false, Error: err.Error()})
		return
	}

	resp := syncResponse{
		Success:      true,
		Synced:       result.Synced,
		Deleted:      result.Deleted,
		Backfilled:   result.Backfilled,
		TotalFetched: result.TotalFetched,
		Message:      result.Message,
	}
	writeJSON(w, resp)
}

// NowPlaying returns the live playback status (GET /api/now-playing).
// Failures degrade to a "not playing" payload with the error attached.
func (h *Handlers) NowPlaying(w http.ResponseWriter, r *http.Request) {
	status, err := h.resolver.Resolve(r.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("now-playing resolution failed")
		writeJSON(w, trackResponse{Playing: false, Error: err.Error()})
		return
	}
	writeJSON(w, statusToResponse(status))
}

// History lists stored play events newest-first (GET /api/history).
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", ingest.MaxTracks)
	if limit < 1 || limit > ingest.MaxTracks {
		limit = ingest.MaxTracks
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	events, err := h.history.List(r.Context(), limit, offset)
	if err != nil {
		h.log.Error().Err(err).Msg("listing history failed")
		writeJSON(w, map[string]any{"items": []historyItem{}, "error": err.Error()})
		return
	}

	items := make([]historyItem, 0, len(events))
	for _, e := range events {
		items = append(items, historyItem{
			ID:            e.ID.String(),
			TrackName:     e.TrackName,
			ArtistName:    e.ArtistName,
			AlbumName:     e.AlbumName,
			AlbumImageURL: e.AlbumImageURL,
			TrackID:       e.SpotifyTrackID,
			TrackURL:      e.SpotifyTrackURL,
			DurationMs:    e.DurationMs,
			PlayedAt:      e.PlayedAt,
			PreviewURL:    e.PreviewURL,
		})
	}
	writeJSON(w, map[string]any{"items": items})
}

// Badge renders the playback status banner (GET /api/badge.svg). Resolution
// failures render the empty banner; a badge embed should never break.
func (h *Handlers) Badge(w http.ResponseWriter, r *http.Request) {
	status, err := h.resolver.Resolve(r.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("badge resolution failed")
		status = nil
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	_, _ = w.Write(h.badge(status))
}

// Presence pushes the playback status to Slack (POST /api/presence/slack).
func (h *Handlers) Presence(w http.ResponseWriter, r *http.Request) {
	status, err := h.resolver.Resolve(r.Context())
	if err != nil {
		writeJSON(w, presenceResponse{Success: false, Error: err.Error()})
		return
	}

	text, err := h.slack.Update(r.Context(), status)
	if err != nil {
		if !errors.Is(err, presence.ErrMissingToken) && !errors.Is(err, presence.ErrNoTrack) {
			h.log.Error().Err(err).Msg("slack presence update failed")
		}
		writeJSON(w, presenceResponse{Success: false, Source: status.Source, Error: err.Error()})
		return
	}

	writeJSON(w, presenceResponse{Success: true, Source: status.Source, StatusText: text})
}

// Healthz reports liveness (GET /healthz).
func (h *Handlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// statusToResponse maps a resolved status to the wire payload.
func statusToResponse(status *nowplaying.Status) trackResponse {
	resp := trackResponse{
		Playing: status.Playing,
		Source:  status.Source,
	}
	if status.Track != nil {
		resp.TrackName = status.Track.Name
		resp.ArtistName = status.Track.ArtistNames
		resp.AlbumName = status.Track.AlbumName
		resp.AlbumImageURL = status.Track.AlbumImageURL
		resp.TrackURL = status.Track.URL
		resp.DurationMs = status.Track.DurationMs
		resp.ProgressMs = status.ProgressMs
		resp.PreviewURL = status.Track.PreviewURL
	}
	return resp
}

// queryInt parses an integer query parameter, returning def when absent or
// malformed.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// writeJSON writes a JSON response body. Business failures still produce an
// HTTP 200 with a structured error field; the boundary never surfaces an
// unhandled fault.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}
