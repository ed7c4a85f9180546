// Package nowplaying resolves the user's live playback status: the currently
// playing track when one is active, otherwise the most recently played one.
// The resolver never writes to the store.
package nowplaying

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/justestif/muziqua/internal/spotify"
)

// Status sources.
const (
	SourceNowPlaying = "now_playing"
	SourceLastPlayed = "last_played"
	SourceNone       = "none"
)

// Client is the subset of the upstream client the resolver needs.
type Client interface {
	CurrentlyPlaying(ctx context.Context) (*spotify.NowPlaying, error)
	RecentlyPlayed(ctx context.Context, after time.Time, limit int) ([]spotify.PlayedTrack, error)
}

// Connector authenticates against the upstream API for one resolution.
type Connector interface {
	Connect(ctx context.Context) (Client, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context) (Client, error)

// Connect implements Connector.
func (f ConnectorFunc) Connect(ctx context.Context) (Client, error) {
	return f(ctx)
}

// Status is the resolved playback state.
type Status struct {
	Playing    bool
	Source     string // now_playing, last_played or none
	Track      *spotify.Track
	ProgressMs int // zero unless actively playing
}

// Resolver performs single-shot playback status reads.
type Resolver struct {
	connector Connector
	log       zerolog.Logger
}

// New creates a Resolver.
func New(connector Connector, log zerolog.Logger) *Resolver {
	return &Resolver{connector: connector, log: log}
}

// Resolve asks upstream for the active playback item, falling back to the
// single most recent played track. A failing currently-playing call degrades
// to the fallback rather than erroring; only credential, token and fallback
// failures surface.
func (r *Resolver) Resolve(ctx context.Context) (*Status, error) {
	client, err := r.connector.Connect(ctx)
	if err != nil {
		return nil, err
	}

	playing, err := r.currentlyPlaying(ctx, client)
	if err == nil && playing != nil {
		return &Status{
			Playing:    true,
			Source:     SourceNowPlaying,
			Track:      &playing.Track,
			ProgressMs: playing.ProgressMs,
		}, nil
	}

	recent, err := client.RecentlyPlayed(ctx, time.Time{}, 1)
	if err != nil {
		return nil, err
	}
	if len(recent) > 0 {
		last := recent[0]
		return &Status{
			Playing: false,
			Source:  SourceLastPlayed,
			Track:   &last.Track,
		}, nil
	}

	return &Status{Source: SourceNone}, nil
}

// currentlyPlaying fetches the active item, logging failures instead of
// propagating them so the last-played fallback still runs.
func (r *Resolver) currentlyPlaying(ctx context.Context, client Client) (*spotify.NowPlaying, error) {
	playing, err := client.CurrentlyPlaying(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("currently-playing lookup failed, falling back")
		return nil, err
	}
	return playing, nil
}
