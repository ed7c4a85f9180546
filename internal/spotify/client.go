// Package spotify provides the typed upstream client for the listening
// history mirror: token refresh, currently-playing, recently-played and
// batch track lookup.
package spotify

import (
	"context"
	"time"

	"github.com/zmb3/spotify/v2"
)

// maxTracksPerRequest is the upstream cap on ids per batch track lookup.
const maxTracksPerRequest = 50

// Client wraps the Spotify API client with the calls the service needs.
type Client struct {
	api *spotify.Client
}

// New creates a new Spotify client wrapper.
// The underlying client should already be authenticated.
func New(api *spotify.Client) *Client {
	return &Client{api: api}
}

// CurrentlyPlaying returns the active playback item, or nil when nothing is
// playing. Upstream signals "nothing playing" with an empty response; that is
// not an error.
func (c *Client) CurrentlyPlaying(ctx context.Context) (*NowPlaying, error) {
	playing, err := c.api.PlayerCurrentlyPlaying(ctx)
	if err != nil {
		return nil, upstreamError("fetching currently playing", err)
	}
	if playing == nil || !playing.Playing || playing.Item == nil {
		return nil, nil
	}
	return &NowPlaying{
		Track:      trackFromFull(playing.Item),
		ProgressMs: int(playing.Progress),
	}, nil
}

// RecentlyPlayed returns up to limit play events, most recent first.
// A non-zero after bounds the fetch to events played strictly later.
func (c *Client) RecentlyPlayed(ctx context.Context, after time.Time, limit int) ([]PlayedTrack, error) {
	opts := spotify.RecentlyPlayedOptions{Limit: spotify.Numeric(limit)}
	if !after.IsZero() {
		opts.AfterEpochMs = after.UnixMilli()
	}

	items, err := c.api.PlayerRecentlyPlayedOpt(ctx, &opts)
	if err != nil {
		return nil, upstreamError("fetching recently played", err)
	}

	played := make([]PlayedTrack, 0, len(items))
	for _, item := range items {
		played = append(played, PlayedTrack{
			Track:    trackFromSimple(item.Track),
			PlayedAt: item.PlayedAt,
		})
	}
	return played, nil
}

// TracksByIDs batch-fetches track metadata keyed by track id, chunking
// requests at the upstream cap. Ids the upstream does not know are simply
// absent from the result.
func (c *Client) TracksByIDs(ctx context.Context, ids []string) (map[string]Track, error) {
	tracks := make(map[string]Track, len(ids))

	for start := 0; start < len(ids); start += maxTracksPerRequest {
		end := min(start+maxTracksPerRequest, len(ids))

		chunk := make([]spotify.ID, 0, end-start)
		for _, id := range ids[start:end] {
			chunk = append(chunk, spotify.ID(id))
		}

		full, err := c.api.GetTracks(ctx, chunk)
		if err != nil {
			return nil, upstreamError("fetching tracks", err)
		}
		for _, t := range full {
			if t == nil {
				continue
			}
			tracks[string(t.ID)] = trackFromFull(t)
		}
	}
	return tracks, nil
}
