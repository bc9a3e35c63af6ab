package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkardes/chrono-meister-sub000/internal/apierr"
	"github.com/zkardes/chrono-meister-sub000/internal/storage"
)

// fakeProvider is a Provider with call counting and injectable failures.
type fakeProvider struct {
	mu           sync.Mutex
	signInCalls  int
	refreshCalls int
	signOutCalls int

	signInErr  error
	refreshErr error
	signOutErr error

	ttl time.Duration
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{ttl: time.Hour}
}

func (f *fakeProvider) newSession() *Session {
	now := time.Now()
	return &Session{
		UserID:       "user-1",
		Email:        "worker@example.com",
		AccessToken:  fmt.Sprintf("access-%d", now.UnixNano()),
		RefreshToken: fmt.Sprintf("refresh-%d", now.UnixNano()),
		IssuedAt:     now,
		ExpiresAt:    now.Add(f.ttl),
	}
}

func (f *fakeProvider) SignIn(_ context.Context, _, _ string) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signInCalls++
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	return f.newSession(), nil
}

func (f *fakeProvider) Refresh(_ context.Context, _ string) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.newSession(), nil
}

func (f *fakeProvider) SignOut(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOutCalls++
	return f.signOutErr
}

func (f *fakeProvider) refreshes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls
}

func newTestAdapter() *storage.Adapter {
	return storage.NewAdapter(storage.NewMemoryTier(), "chrono.auth.")
}

func TestManager_SignIn(t *testing.T) {
	t.Run("installs and persists the session", func(t *testing.T) {
		provider := newFakeProvider()
		store := newTestAdapter()
		m := NewManager(provider, store)

		var events []Event
		unsubscribe := m.Subscribe(func(e Event) { events = append(events, e) })
		defer unsubscribe()

		require.NoError(t, m.SignIn(context.Background(), "worker@example.com", "secret"))

		s := m.Current()
		require.NotNil(t, s)
		assert.Equal(t, "user-1", s.UserID)
		assert.True(t, m.Authenticated())

		_, ok := store.Get(StorageKey)
		assert.True(t, ok)

		require.Len(t, events, 1)
		assert.Equal(t, SessionEstablished, events[0].Type)
	})

	t.Run("restores persisted session on construction", func(t *testing.T) {
		provider := newFakeProvider()
		store := newTestAdapter()

		m := NewManager(provider, store)
		require.NoError(t, m.SignIn(context.Background(), "worker@example.com", "secret"))

		// A fresh manager over the same adapter picks the session up
		// without any remote call.
		restored := NewManager(provider, store)
		s := restored.Current()
		require.NotNil(t, s)
		assert.Equal(t, "user-1", s.UserID)
		assert.True(t, restored.Authenticated())
		assert.Equal(t, 1, provider.signInCalls)
	})
}

func TestManager_SignOut(t *testing.T) {
	t.Run("clears local state even when the remote call fails", func(t *testing.T) {
		provider := newFakeProvider()
		provider.signOutErr = fmt.Errorf("backend down")
		store := newTestAdapter()
		m := NewManager(provider, store)
		require.NoError(t, m.SignIn(context.Background(), "worker@example.com", "secret"))

		err := m.SignOut(context.Background())
		require.Error(t, err)

		assert.Nil(t, m.Current())
		assert.False(t, m.Authenticated())
		_, ok := store.Get(StorageKey)
		assert.False(t, ok)
	})

	t.Run("publishes SessionCleared", func(t *testing.T) {
		provider := newFakeProvider()
		m := NewManager(provider, newTestAdapter())
		require.NoError(t, m.SignIn(context.Background(), "worker@example.com", "secret"))

		var cleared int
		unsubscribe := m.Subscribe(func(e Event) {
			if e.Type == SessionCleared {
				cleared++
			}
		})
		defer unsubscribe()

		require.NoError(t, m.SignOut(context.Background()))
		assert.Equal(t, 1, cleared)
	})
}

func TestManager_Refresh(t *testing.T) {
	t.Run("rotates tokens and publishes SessionRefreshed", func(t *testing.T) {
		provider := newFakeProvider()
		m := NewManager(provider, newTestAdapter())
		require.NoError(t, m.SignIn(context.Background(), "worker@example.com", "secret"))

		before := m.Current().AccessToken

		var refreshed int
		unsubscribe := m.Subscribe(func(e Event) {
			if e.Type == SessionRefreshed {
				refreshed++
			}
		})
		defer unsubscribe()

		require.NoError(t, m.Refresh(context.Background()))

		assert.NotEqual(t, before, m.Current().AccessToken)
		assert.Equal(t, 1, refreshed)
	})

	t.Run("returns ErrNoSession when signed out", func(t *testing.T) {
		m := NewManager(newFakeProvider(), newTestAdapter())
		assert.ErrorIs(t, m.Refresh(context.Background()), ErrNoSession)
	})

	t.Run("terminal auth failure destroys the session but keeps the flag", func(t *testing.T) {
		provider := newFakeProvider()
		m := NewManager(provider, newTestAdapter())
		require.NoError(t, m.SignIn(context.Background(), "worker@example.com", "secret"))

		provider.refreshErr = &apierr.BackendError{
			Op: "auth.refresh", Status: 401, Message: "refresh token expired",
		}

		require.Error(t, m.Refresh(context.Background()))

		assert.Nil(t, m.Current())
		assert.True(t, m.Authenticated(), "silent loss must stay observable")
	})

	t.Run("transient failure keeps the session", func(t *testing.T) {
		provider := newFakeProvider()
		m := NewManager(provider, newTestAdapter())
		require.NoError(t, m.SignIn(context.Background(), "worker@example.com", "secret"))

		provider.refreshErr = fmt.Errorf("connection reset")
		require.Error(t, m.Refresh(context.Background()))

		assert.NotNil(t, m.Current())
	})
}

func TestManager_Recover(t *testing.T) {
	t.Run("recovers a fresh session from storage without a remote call", func(t *testing.T) {
		provider := newFakeProvider()
		store := newTestAdapter()
		m := NewManager(provider, store)
		require.NoError(t, m.SignIn(context.Background(), "worker@example.com", "secret"))

		// Simulate silent loss of the in-memory session while the
		// durable copy survives.
		persisted, ok := store.Get(StorageKey)
		require.True(t, ok)
		m.clear(true)
		store.Set(StorageKey, persisted)

		require.NoError(t, m.Recover(context.Background()))

		assert.NotNil(t, m.Current())
		assert.Equal(t, 0, provider.refreshes())
	})

	t.Run("returns ErrNoSession when nothing is recoverable", func(t *testing.T) {
		provider := newFakeProvider()
		m := NewManager(provider, newTestAdapter())
		require.NoError(t, m.SignIn(context.Background(), "worker@example.com", "secret"))

		m.clear(true)

		assert.ErrorIs(t, m.Recover(context.Background()), ErrNoSession)
		assert.Equal(t, 0, provider.refreshes())
	})
}

func TestSessionSerialization(t *testing.T) {
	t.Run("round trips through Marshal and Unmarshal", func(t *testing.T) {
		now := time.Now().Truncate(time.Second)
		s := &Session{
			UserID:       "user-1",
			Email:        "worker@example.com",
			AccessToken:  "access",
			RefreshToken: "refresh",
			IssuedAt:     now,
			ExpiresAt:    now.Add(time.Hour),
		}

		value, err := s.Marshal()
		require.NoError(t, err)

		decoded, err := Unmarshal(value)
		require.NoError(t, err)
		assert.Equal(t, s.UserID, decoded.UserID)
		assert.Equal(t, s.AccessToken, decoded.AccessToken)
		assert.True(t, s.ExpiresAt.Equal(decoded.ExpiresAt))
	})

	t.Run("rejects incomplete data", func(t *testing.T) {
		_, err := Unmarshal(`{"user_id":"u"}`)
		assert.Error(t, err)
	})
}
