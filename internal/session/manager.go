package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zkardes/chrono-meister-sub000/internal/apierr"
	"github.com/zkardes/chrono-meister-sub000/internal/storage"
	"github.com/zkardes/chrono-meister-sub000/internal/telemetry"
)

const (
	// StoragePrefix namespaces every key this application writes to the
	// storage adapter.
	StoragePrefix = "chrono.auth."

	// StorageKey is the adapter key under which the current session is
	// persisted.
	StorageKey = StoragePrefix + "session"
)

// Provider is the remote auth provider boundary the manager depends on.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*Session, error)
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

// Manager owns the current session: one per client instance. It keeps
// the session persisted through the storage adapter and publishes
// lifecycle events through its broker.
//
// Remote calls are made outside the state lock, so two callers racing a
// refresh may both hit the provider. That is tolerated: refresh is
// idempotent from the client's perspective, the last writer wins, and
// both writers install a token that is valid.
type Manager struct {
	provider Provider
	store    *storage.Adapter
	broker   *Broker
	logger   zerolog.Logger

	mu            sync.Mutex
	current       *Session
	refreshing    bool
	authenticated bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the manager logger.
func WithManagerLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a manager and restores any persisted session. A
// restored session may already be expired; the guard and monitor deal
// with that, restore itself never makes a remote call.
func NewManager(provider Provider, store *storage.Adapter, opts ...ManagerOption) *Manager {
	m := &Manager{
		provider: provider,
		store:    store,
		broker:   NewBroker(),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}

	if value, ok := store.Get(StorageKey); ok {
		s, err := Unmarshal(value)
		if err != nil {
			m.logger.Warn().Err(err).Msg("discarding unreadable persisted session")
			store.Remove(StorageKey)
		} else {
			m.current = s
			m.authenticated = true
			m.logger.Debug().
				Str("userID", s.UserID).
				Time("expiresAt", s.ExpiresAt).
				Msg("restored persisted session")
		}
	}

	return m
}

// Current returns a copy of the current session, or nil if none exists.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil
	}
	s := *m.current
	return &s
}

// Authenticated reports whether the client considers itself signed in.
// This flag can disagree with Current() after a silent session loss; the
// monitor uses exactly that disagreement to trigger recovery.
func (m *Manager) Authenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authenticated
}

// AccessToken returns the current access token, or empty when signed out.
func (m *Manager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return ""
	}
	return m.current.AccessToken
}

// State returns the lifecycle state of the current session for the given
// safety margin.
func (m *Manager) State(margin time.Duration) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.refreshing {
		return StateRefreshing
	}
	return stateOf(m.current, margin)
}

// Subscribe registers a handler for session lifecycle events and returns
// its unsubscribe function.
func (m *Manager) Subscribe(handler func(Event)) func() {
	return m.broker.Subscribe(handler)
}

// SignIn authenticates against the provider and installs the resulting
// session.
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	s, err := m.provider.SignIn(ctx, email, password)
	if err != nil {
		return fmt.Errorf("sign in failed: %w", err)
	}

	m.install(s, true)
	m.broker.publish(Event{Type: SessionEstablished, Session: s})

	m.logger.Info().Str("userID", s.UserID).Time("expiresAt", s.ExpiresAt).Msg("signed in")

	return nil
}

// SignOut invalidates the session with the provider and clears local
// state. Local state is cleared even when the remote call fails; a
// half-signed-out client must not keep using its tokens.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()

	var remoteErr error
	if current != nil {
		remoteErr = m.provider.SignOut(ctx, current.AccessToken)
	}

	m.clear(false)
	m.broker.publish(Event{Type: SessionCleared})

	if remoteErr != nil {
		return fmt.Errorf("remote sign out failed: %w", remoteErr)
	}

	m.logger.Info().Msg("signed out")

	return nil
}

// Refresh rotates the token pair using the current refresh token. On a
// terminal auth failure the session is destroyed (the refresh token is
// dead, nothing local can revive it); the authenticated flag is left set
// so the monitor and UI can observe the inconsistency.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return ErrNoSession
	}
	refreshToken := m.current.RefreshToken
	m.refreshing = true
	m.mu.Unlock()

	telemetry.GetMetrics().SessionRefreshTotal.Add(ctx, 1)

	s, err := m.provider.Refresh(ctx, refreshToken)

	m.mu.Lock()
	m.refreshing = false
	m.mu.Unlock()

	if err != nil {
		telemetry.GetMetrics().SessionRefreshErrorsTotal.Add(ctx, 1)
		if apierr.Classify(err) == apierr.SessionExpired {
			m.logger.Warn().Err(err).Msg("refresh token rejected, destroying session")
			m.clear(true)
			m.broker.publish(Event{Type: SessionCleared})
		}
		return fmt.Errorf("refresh failed: %w", err)
	}

	m.install(s, true)
	m.broker.publish(Event{Type: SessionRefreshed, Session: s})

	m.logger.Debug().Time("expiresAt", s.ExpiresAt).Msg("session refreshed")

	return nil
}

// Recover re-establishes a lost session: first from the durable tier
// (another context may have a fresher token pair), then, if the restored
// session is stale, via a refresh. Used by the monitor when it finds no
// session while the authenticated flag is still set.
func (m *Manager) Recover(ctx context.Context) error {
	telemetry.GetMetrics().SessionRecoveryTotal.Add(ctx, 1)

	m.mu.Lock()
	hasSession := m.current != nil
	m.mu.Unlock()

	if !hasSession {
		value, ok := m.store.Get(StorageKey)
		if !ok {
			return ErrNoSession
		}
		s, err := Unmarshal(value)
		if err != nil {
			m.store.Remove(StorageKey)
			return fmt.Errorf("persisted session unreadable: %w", err)
		}

		m.install(s, false)
		m.broker.publish(Event{Type: SessionEstablished, Session: s})
		m.logger.Info().Str("userID", s.UserID).Msg("recovered session from storage")
	}

	s := m.Current()
	if s != nil && !s.IsExpired() {
		return nil
	}

	return m.Refresh(ctx)
}

// install makes s the current session and persists it.
func (m *Manager) install(s *Session, persist bool) {
	m.mu.Lock()
	m.current = s
	m.authenticated = true
	m.mu.Unlock()

	if !persist {
		return
	}

	value, err := s.Marshal()
	if err != nil {
		m.logger.Warn().Err(err).Msg("failed to serialize session for storage")
		return
	}
	m.store.Set(StorageKey, value)
}

// clear drops the current session. keepAuthenticated preserves the
// signed-in flag for the silent-loss case.
func (m *Manager) clear(keepAuthenticated bool) {
	m.mu.Lock()
	m.current = nil
	if !keepAuthenticated {
		m.authenticated = false
	}
	m.mu.Unlock()

	m.store.Remove(StorageKey)
}
