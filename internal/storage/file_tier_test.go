package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileTier(t *testing.T) {
	t.Run("round trips values", func(t *testing.T) {
		tier, err := NewFileTier(t.TempDir())
		require.NoError(t, err)

		require.NoError(t, tier.Set("chrono.auth.session", `{"v":1}`))

		value, err := tier.Get("chrono.auth.session")
		require.NoError(t, err)
		assert.Equal(t, `{"v":1}`, value)
	})

	t.Run("missing key returns ErrNotFound", func(t *testing.T) {
		tier, err := NewFileTier(t.TempDir())
		require.NoError(t, err)

		_, err = tier.Get("chrono.auth.missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("detects a tampered value", func(t *testing.T) {
		dir := t.TempDir()
		tier, err := NewFileTier(dir)
		require.NoError(t, err)

		require.NoError(t, tier.Set("chrono.auth.session", `{"v":1}`))

		// Flip bytes in the payload without updating the checksum.
		path := filepath.Join(dir, "chrono.auth.session.entry")
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		data[len(data)-1] ^= 0xff
		require.NoError(t, os.WriteFile(path, data, 0600))

		_, err = tier.Get("chrono.auth.session")
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("detects a truncated value", func(t *testing.T) {
		dir := t.TempDir()
		tier, err := NewFileTier(dir)
		require.NoError(t, err)

		path := filepath.Join(dir, "chrono.auth.session.entry")
		require.NoError(t, os.WriteFile(path, []byte("short"), 0600))

		_, err = tier.Get("chrono.auth.session")
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("lists keys by prefix", func(t *testing.T) {
		tier, err := NewFileTier(t.TempDir())
		require.NoError(t, err)

		require.NoError(t, tier.Set("chrono.auth.session", `{}`))
		require.NoError(t, tier.Set("chrono.auth.profile", `{}`))
		require.NoError(t, tier.Set("other.key", `{}`))

		keys, err := tier.Keys("chrono.auth.")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"chrono.auth.session", "chrono.auth.profile"}, keys)
	})

	t.Run("remove of absent key is not an error", func(t *testing.T) {
		tier, err := NewFileTier(t.TempDir())
		require.NoError(t, err)

		assert.NoError(t, tier.Remove("chrono.auth.nope"))
	})

	t.Run("escapes keys with path separators", func(t *testing.T) {
		tier, err := NewFileTier(t.TempDir())
		require.NoError(t, err)

		require.NoError(t, tier.Set("chrono.auth/odd", `{}`))
		value, err := tier.Get("chrono.auth/odd")
		require.NoError(t, err)
		assert.Equal(t, `{}`, value)
	})
}

func TestWatcher(t *testing.T) {
	t.Run("external write converges the memory tier", func(t *testing.T) {
		dir := t.TempDir()
		tier, err := NewFileTier(dir)
		require.NoError(t, err)

		adapter := NewAdapter(tier, testPrefix)
		watcher, err := NewWatcher(adapter, tier, zerolog.Nop())
		require.NoError(t, err)
		defer watcher.Stop()

		adapter.Set(testPrefix+"session", sessionValue(time.Now().Add(time.Hour).Unix()))

		// A second client sharing the directory rotates the session.
		other, err := NewFileTier(dir)
		require.NoError(t, err)
		rotated := `{"access_token":"rotated"}`
		require.NoError(t, other.Set(testPrefix+"session", rotated))

		assert.Eventually(t, func() bool {
			value, ok := adapter.Get(testPrefix + "session")
			return ok && value == rotated
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("external remove clears the memory tier", func(t *testing.T) {
		dir := t.TempDir()
		tier, err := NewFileTier(dir)
		require.NoError(t, err)

		adapter := NewAdapter(tier, testPrefix)
		watcher, err := NewWatcher(adapter, tier, zerolog.Nop())
		require.NoError(t, err)
		defer watcher.Stop()

		adapter.Set(testPrefix+"session", sessionValue(time.Now().Add(time.Hour).Unix()))

		other, err := NewFileTier(dir)
		require.NoError(t, err)
		require.NoError(t, other.Remove(testPrefix+"session"))

		assert.Eventually(t, func() bool {
			_, ok := adapter.Get(testPrefix + "session")
			return !ok
		}, 2*time.Second, 10*time.Millisecond)
	})
}

func TestBadgerTier(t *testing.T) {
	t.Run("round trips values", func(t *testing.T) {
		tier, err := NewInMemoryBadgerTier()
		require.NoError(t, err)
		defer tier.Close()

		require.NoError(t, tier.Set("chrono.auth.session", `{"v":1}`))

		value, err := tier.Get("chrono.auth.session")
		require.NoError(t, err)
		assert.Equal(t, `{"v":1}`, value)
	})

	t.Run("missing key returns ErrNotFound", func(t *testing.T) {
		tier, err := NewInMemoryBadgerTier()
		require.NoError(t, err)
		defer tier.Close()

		_, err = tier.Get("chrono.auth.missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("lists keys by prefix", func(t *testing.T) {
		tier, err := NewInMemoryBadgerTier()
		require.NoError(t, err)
		defer tier.Close()

		require.NoError(t, tier.Set("chrono.auth.session", `{}`))
		require.NoError(t, tier.Set("other.key", `{}`))

		keys, err := tier.Keys("chrono.auth.")
		require.NoError(t, err)
		assert.Equal(t, []string{"chrono.auth.session"}, keys)
	})

	t.Run("closed store reports restricted", func(t *testing.T) {
		tier, err := NewInMemoryBadgerTier()
		require.NoError(t, err)
		require.NoError(t, tier.Close())

		err = tier.Set("chrono.auth.session", `{}`)
		assert.ErrorIs(t, err, ErrRestricted)
	})

	t.Run("persists across reopen", func(t *testing.T) {
		dir := t.TempDir()

		tier, err := NewBadgerTier(dir)
		require.NoError(t, err)
		require.NoError(t, tier.Set("chrono.auth.session", `{"v":1}`))
		require.NoError(t, tier.Close())

		reopened, err := NewBadgerTier(dir)
		require.NoError(t, err)
		defer reopened.Close()

		value, err := reopened.Get("chrono.auth.session")
		require.NoError(t, err)
		assert.Equal(t, `{"v":1}`, value)
	})
}
