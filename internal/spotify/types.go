package spotify

import (
	"strings"
	"time"

	"github.com/zmb3/spotify/v2"
)

// preferredImageHeight selects the mid-resolution album art variant.
const preferredImageHeight = 300

// Track is the subset of upstream track metadata the service stores.
type Track struct {
	ID            string
	Name          string
	ArtistNames   string // joined with ", " in upstream order
	AlbumName     string
	AlbumImageURL string
	URL           string
	DurationMs    int
	PreviewURL    string // empty when upstream omits it
}

// PlayedTrack is one entry from the recently-played feed.
type PlayedTrack struct {
	Track
	PlayedAt time.Time
}

// NowPlaying is the active playback item with progress into the track.
type NowPlaying struct {
	Track
	ProgressMs int
}

// joinArtists joins artist names with ", " in upstream-provided order.
func joinArtists(artists []spotify.SimpleArtist) string {
	names := make([]string, len(artists))
	for i, a := range artists {
		names[i] = a.Name
	}
	return strings.Join(names, ", ")
}

// albumImageURL prefers the image at the target height, falling back to the
// first image offered. Empty when the album carries no images.
func albumImageURL(images []spotify.Image) string {
	for _, img := range images {
		if int(img.Height) == preferredImageHeight {
			return img.URL
		}
	}
	if len(images) > 0 {
		return images[0].URL
	}
	return ""
}

// trackFromSimple converts an upstream track as it appears in the
// recently-played feed.
func trackFromSimple(t spotify.SimpleTrack) Track {
	return Track{
		ID:            string(t.ID),
		Name:          t.Name,
		ArtistNames:   joinArtists(t.Artists),
		AlbumName:     t.Album.Name,
		AlbumImageURL: albumImageURL(t.Album.Images),
		URL:           t.ExternalURLs["spotify"],
		DurationMs:    int(t.Duration),
		PreviewURL:    t.PreviewURL,
	}
}

// trackFromFull converts a full track object; the album lives on the outer
// struct rather than the embedded simple track.
func trackFromFull(t *spotify.FullTrack) Track {
	track := trackFromSimple(t.SimpleTrack)
	track.AlbumName = t.Album.Name
	track.AlbumImageURL = albumImageURL(t.Album.Images)
	return track
}
