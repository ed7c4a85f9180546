package spotify

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the upstream API boundary.
var (
	// ErrMissingCredentials is returned before any network call when the
	// client id, client secret or refresh token is absent.
	ErrMissingCredentials = errors.New("missing spotify credentials")

	// ErrTokenRefresh is returned when the token endpoint rejects the
	// refresh-token grant.
	ErrTokenRefresh = errors.New("spotify token refresh failed")

	// ErrUpstream is returned when the Spotify API responds with a
	// non-success status.
	ErrUpstream = errors.New("spotify api error")
)

// CredentialsError reports which credential variables are absent.
// It matches ErrMissingCredentials under errors.Is.
type CredentialsError struct {
	Missing []string
}

func (e *CredentialsError) Error() string {
	return fmt.Sprintf("missing spotify credentials: %s", strings.Join(e.Missing, ", "))
}

func (e *CredentialsError) Unwrap() error {
	return ErrMissingCredentials
}

// TokenRefreshError carries the upstream error body from a rejected
// refresh-token grant. It matches ErrTokenRefresh under errors.Is.
type TokenRefreshError struct {
	Body []byte
	err  error
}

func (e *TokenRefreshError) Error() string {
	if len(e.Body) > 0 {
		return fmt.Sprintf("spotify token refresh failed: %s", e.Body)
	}
	return fmt.Sprintf("spotify token refresh failed: %v", e.err)
}

func (e *TokenRefreshError) Unwrap() error {
	return ErrTokenRefresh
}

// upstreamError wraps an API failure so callers can match ErrUpstream while
// keeping the upstream response message.
func upstreamError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUpstream, op, err)
}
