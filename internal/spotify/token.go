package spotify

import (
	"context"
	"errors"
	"sync"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

// Credentials holds the fixed-account credentials for the upstream API.
// The refresh token is long-lived; access tokens are minted from it on demand.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// missing lists the absent credential variables by their environment names.
func (c Credentials) missing() []string {
	var m []string
	if c.ClientID == "" {
		m = append(m, "SPOTIFY_CLIENT_ID")
	}
	if c.ClientSecret == "" {
		m = append(m, "SPOTIFY_CLIENT_SECRET")
	}
	if c.RefreshToken == "" {
		m = append(m, "SPOTIFY_REFRESH_TOKEN")
	}
	return m
}

// TokenManager exchanges the refresh credential for short-lived access tokens
// via the refresh-token grant, reusing an unexpired token across calls.
// Safe for concurrent use.
type TokenManager struct {
	creds    Credentials
	tokenURL string

	mu    sync.Mutex
	token *oauth2.Token
}

// NewTokenManager creates a TokenManager for the given credentials.
// Credentials are validated on use, not here, so a service without them can
// still start and report the problem per run.
func NewTokenManager(creds Credentials) *TokenManager {
	return &TokenManager{
		creds:    creds,
		tokenURL: spotifyauth.TokenURL,
	}
}

// Token returns a valid access token, refreshing if the cached one expired.
// Returns a *CredentialsError before any network call when credentials are
// absent, or a *TokenRefreshError carrying the upstream body on rejection.
func (m *TokenManager) Token(ctx context.Context) (*oauth2.Token, error) {
	if missing := m.creds.missing(); len(missing) > 0 {
		return nil, &CredentialsError{Missing: missing}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token.Valid() {
		return m.token, nil
	}

	cfg := &oauth2.Config{
		ClientID:     m.creds.ClientID,
		ClientSecret: m.creds.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyauth.AuthURL,
			TokenURL: m.tokenURL,
		},
	}

	token, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: m.creds.RefreshToken}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, &TokenRefreshError{Body: retrieveErr.Body, err: err}
		}
		return nil, &TokenRefreshError{err: err}
	}

	m.token = token
	return token, nil
}

// Client authenticates and returns an API client for the duration of the
// obtained token.
func (m *TokenManager) Client(ctx context.Context) (*Client, error) {
	token, err := m.Token(ctx)
	if err != nil {
		return nil, err
	}
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	return New(spotify.New(httpClient)), nil
}
