// Package presence pushes the resolved playback status to Slack as the
// user's profile status.
package presence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/justestif/muziqua/internal/nowplaying"
)

const (
	defaultBaseURL = "https://slack.com/api"
	statusEmoji    = ":musical_note:"
)

// Sentinel errors.
var (
	// ErrMissingToken is returned when no Slack token is configured.
	ErrMissingToken = errors.New("missing SLACK_TOKEN")

	// ErrNoTrack is returned when the playback status carries no track.
	ErrNoTrack = errors.New("no track data to publish")
)

// Slack updates the user's Slack profile status.
type Slack struct {
	token      string
	siteURL    string
	baseURL    string
	httpClient *http.Client
}

// NewSlack creates a Slack presence client. A non-empty siteURL is appended
// to the status text as a link back to the history page.
func NewSlack(token, siteURL string) *Slack {
	return &Slack{
		token:   token,
		siteURL: siteURL,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// statusText formats the Slack status line for a resolved track.
func (s *Slack) statusText(status *nowplaying.Status) string {
	text := fmt.Sprintf("%s - %s", status.Track.Name, status.Track.ArtistNames)
	if s.siteURL != "" {
		text += " | " + s.siteURL
	}
	return text
}

// Update sets the Slack profile status from the playback status and returns
// the published text. Returns ErrMissingToken when unconfigured and ErrNoTrack
// when there is nothing to report; callers treat both as "nothing to do".
func (s *Slack) Update(ctx context.Context, status *nowplaying.Status) (string, error) {
	if s.token == "" {
		return "", ErrMissingToken
	}
	if status == nil || status.Track == nil {
		return "", ErrNoTrack
	}

	text := s.statusText(status)

	payload := map[string]any{
		"profile": map[string]any{
			"status_text":       text,
			"status_emoji":      statusEmoji,
			"status_expiration": 0,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding profile payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/users.profile.set", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response body: %w", err)
	}

	var result struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}
	if !result.OK {
		return "", fmt.Errorf("slack API error: %s", result.Error)
	}

	return text, nil
}
