// Package session holds the client's authentication state: the session
// model, the manager that owns the current session, the guard that
// validates it before remote operations, and the monitor that heals it in
// the background.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Sentinel errors
var (
	// ErrNoSession is returned when an operation needs a current session
	// and none exists.
	ErrNoSession = errors.New("no current session")

	// ErrNoExpiry is returned when an access token carries no exp claim.
	ErrNoExpiry = errors.New("token has no expiry claim")
)

// Session is the client-held proof of authentication for one user: the
// token pair plus its absolute expiry. At most one session is current per
// Manager at a time.
type Session struct {
	UserID       string
	Email        string
	AccessToken  string
	RefreshToken string
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// TimeUntilExpiry returns the remaining lifetime, negative once expired.
func (s *Session) TimeUntilExpiry() time.Duration {
	return time.Until(s.ExpiresAt)
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// storedSession is the serialized form persisted through the storage
// adapter. The expires_at field doubles as the adapter's embedded-expiry
// probe, so stale sessions are evicted rather than replayed.
type storedSession struct {
	UserID       string `json:"user_id"`
	Email        string `json:"email"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IssuedAt     int64  `json:"issued_at"`
	ExpiresAt    int64  `json:"expires_at"`
}

// Marshal serializes the session for the storage adapter.
func (s *Session) Marshal() (string, error) {
	data, err := json.Marshal(storedSession{
		UserID:       s.UserID,
		Email:        s.Email,
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		IssuedAt:     s.IssuedAt.Unix(),
		ExpiresAt:    s.ExpiresAt.Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}
	return string(data), nil
}

// Unmarshal deserializes a session produced by Marshal.
func Unmarshal(value string) (*Session, error) {
	var stored storedSession
	if err := json.Unmarshal([]byte(value), &stored); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}
	if stored.AccessToken == "" || stored.ExpiresAt == 0 {
		return nil, errors.New("stored session is incomplete")
	}
	return &Session{
		UserID:       stored.UserID,
		Email:        stored.Email,
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		IssuedAt:     time.Unix(stored.IssuedAt, 0),
		ExpiresAt:    time.Unix(stored.ExpiresAt, 0),
	}, nil
}

// ExpiryFromAccessToken extracts the exp claim from a JWT without
// verifying its signature. Used when the auth provider's response omits
// an explicit expiry; the token is the authority on its own lifetime
// either way, and verification is the server's job.
func ExpiryFromAccessToken(accessToken string) (time.Time, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}, fmt.Errorf("failed to parse access token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrNoExpiry
	}
	return claims.ExpiresAt.Time, nil
}

// State is the guard-visible lifecycle position of the current session.
type State int

const (
	// StateNone means no session exists.
	StateNone State = iota

	// StateValid means the session has more than the safety margin left.
	StateValid

	// StateNearExpiry means the session is inside the safety margin.
	StateNearExpiry

	// StateRefreshing means a refresh call is in flight.
	StateRefreshing

	// StateExpired means the session's expiry has passed.
	StateExpired
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateValid:
		return "valid"
	case StateNearExpiry:
		return "near_expiry"
	case StateRefreshing:
		return "refreshing"
	case StateExpired:
		return "expired"
	default:
		return "none"
	}
}

// stateOf derives the passive state of a session for the given safety
// margin. Passive time alone moves valid -> near_expiry -> expired; only
// a refresh moves the other way.
func stateOf(s *Session, margin time.Duration) State {
	switch {
	case s == nil:
		return StateNone
	case s.IsExpired():
		return StateExpired
	case s.TimeUntilExpiry() <= margin:
		return StateNearExpiry
	default:
		return StateValid
	}
}
