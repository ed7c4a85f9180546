// Package badge renders the playback status as an embeddable SVG banner.
package badge

import (
	"fmt"
	"html"

	"github.com/justestif/muziqua/internal/nowplaying"
)

// Banner geometry and palette, matching the signature banner the history page
// embeds: dark panel, Spotify-green accent bar, green label, white text.
const (
	width  = 620
	height = 36

	backgroundColor = "#0F0F0F"
	panelColor      = "#1E1E1E"
	highlightColor  = "#2A2A2A"
	shadowColor     = "#0A0A0A"
	accentColor     = "#1DB954"
	textColor       = "#FFFFFF"
)

// Render produces the SVG banner for a playback status. A nil status or one
// without a track renders a "Nothing playing" banner rather than failing.
func Render(status *nowplaying.Status) []byte {
	label := "LAST PLAYED:"
	text := "Nothing playing"

	if status != nil {
		if status.Playing {
			label = "NOW PLAYING:"
		}
		if status.Track != nil {
			text = status.Track.Name
			if status.Track.ArtistNames != "" {
				text += " - " + status.Track.ArtistNames
			}
		}
	}

	svg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
  <rect width="%d" height="%d" fill="%s"/>
  <rect x="2" y="2" width="%d" height="%d" fill="%s"/>
  <rect x="2" y="2" width="%d" height="1" fill="%s"/>
  <rect x="2" y="%d" width="%d" height="1" fill="%s"/>
  <rect x="2" y="2" width="3" height="%d" fill="%s"/>
  <rect x="5" y="2" width="3" height="%d" fill="%s" opacity="0.25"/>
  <text x="14" y="23" font-family="Helvetica, Arial, sans-serif" font-size="14" font-weight="bold" fill="%s">%s</text>
  <text x="124" y="23" font-family="Helvetica, Arial, sans-serif" font-size="14" fill="%s">%s</text>
</svg>`,
		width, height, width, height,
		width, height, backgroundColor,
		width-4, height-4, panelColor,
		width-4, highlightColor,
		height-3, width-4, shadowColor,
		height-4, accentColor,
		height-4, accentColor,
		accentColor, html.EscapeString(label),
		textColor, html.EscapeString(text),
	)
	return []byte(svg)
}
