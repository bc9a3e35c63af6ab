// Package storage provides a two-tier key/value store for session state:
// an always-available in-process memory tier in front of a best-effort
// durable tier. Durable-tier failures are never surfaced to callers; the
// adapter degrades to memory-only operation instead.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zkardes/chrono-meister-sub000/internal/telemetry"
)

// Sentinel errors
var (
	// ErrNotFound is returned by durable tiers when a key is absent.
	ErrNotFound = errors.New("entry not found")

	// ErrCorrupt is returned by durable tiers when a stored value fails
	// its integrity check.
	ErrCorrupt = errors.New("entry corrupt")

	// ErrQuotaExceeded is returned by durable tiers when the store is out
	// of space.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrRestricted is returned by durable tiers when writes are refused
	// by policy (read-only volume, missing permissions).
	ErrRestricted = errors.New("storage restricted")
)

// DurableTier is a best-effort persistent key/value store. Implementations
// must return the package sentinel errors so the adapter can classify
// failure modes.
type DurableTier interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Remove(key string) error
	Keys(prefix string) ([]string, error)
	Close() error
}

// Diagnostics is a read-only snapshot of adapter health.
type Diagnostics struct {
	DurableAvailable     bool
	PrivateModeSuspected bool
	MemoryEntries        int
	DurableEntries       int
}

// Adapter fronts a DurableTier with a memory tier. The memory tier is
// authoritative within a process lifetime; the durable tier is
// authoritative across restarts. Safe for concurrent use.
type Adapter struct {
	mu              sync.RWMutex
	memory          map[string]string
	durable         DurableTier
	durableDisabled bool

	prefix   string
	validate func(value string) error
	logger   zerolog.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the adapter logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// WithValidator sets the check applied to values read from the durable
// tier. Values failing the check are evicted from both tiers. The default
// requires well-formed JSON.
func WithValidator(validate func(value string) error) Option {
	return func(a *Adapter) { a.validate = validate }
}

// NewAdapter creates an adapter over the given durable tier. All keys
// managed by the adapter carry the given namespace prefix; purge, sync
// and flush operations only ever touch that namespace. A nil durable
// tier yields a memory-only adapter.
func NewAdapter(durable DurableTier, prefix string, opts ...Option) *Adapter {
	a := &Adapter{
		memory:   make(map[string]string),
		durable:  durable,
		prefix:   prefix,
		validate: validateJSON,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if durable == nil {
		a.durableDisabled = true
	}
	return a
}

func validateJSON(value string) error {
	if !json.Valid([]byte(value)) {
		return errors.New("not valid JSON")
	}
	return nil
}

// Get returns the value for key, or ok=false if absent. The memory tier
// is consulted first; on a miss the durable tier is read and the memory
// tier repopulated. Expired and corrupt entries are evicted rather than
// returned. Never fails.
func (a *Adapter) Get(key string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if value, ok := a.memory[key]; ok {
		if entryExpired(value) {
			a.logger.Debug().Str("key", key).Msg("evicting expired entry")
			a.evictLocked(key)
			return "", false
		}
		return value, true
	}

	if a.durableDisabled {
		return "", false
	}

	value, err := a.durable.Get(key)
	if err != nil {
		if errors.Is(err, ErrCorrupt) {
			a.logger.Warn().Str("key", key).Msg("evicting corrupt entry")
			a.evictLocked(key)
		}
		// Any other durable read failure is a miss.
		return "", false
	}

	if err := a.validate(value); err != nil {
		a.logger.Warn().Err(err).Str("key", key).Msg("evicting unparseable entry")
		a.evictLocked(key)
		return "", false
	}

	if entryExpired(value) {
		a.logger.Debug().Str("key", key).Msg("evicting expired entry")
		a.evictLocked(key)
		return "", false
	}

	a.memory[key] = value

	return value, true
}

// Set writes the value to the memory tier and makes a best-effort write
// to the durable tier. A quota failure triggers a purge of expired
// namespace entries (the write is not re-attempted in the same call); a
// restriction failure disables the durable tier for the remainder of the
// process. Never fails.
func (a *Adapter) Set(key, value string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.memory[key] = value

	if a.durableDisabled {
		return
	}

	err := a.durable.Set(key, value)
	if err == nil {
		return
	}

	telemetry.GetMetrics().StorageFallbackTotal.Add(context.Background(), 1)

	switch {
	case errors.Is(err, ErrQuotaExceeded):
		a.logger.Warn().Str("key", key).Msg("durable write hit quota, purging expired entries")
		a.purgeExpiredLocked()

	case errors.Is(err, ErrRestricted):
		a.logger.Warn().Str("key", key).Msg("durable tier restricted, falling back to memory only")
		a.durableDisabled = true

	default:
		a.logger.Warn().Err(err).Str("key", key).Msg("durable write failed")
	}
}

// Remove deletes the key from both tiers. Failures are swallowed.
func (a *Adapter) Remove(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.removeLocked(key)
}

func (a *Adapter) evictLocked(key string) {
	telemetry.GetMetrics().StorageEvictionsTotal.Add(context.Background(), 1)
	a.removeLocked(key)
}

func (a *Adapter) removeLocked(key string) {
	delete(a.memory, key)
	if a.durableDisabled {
		return
	}
	if err := a.durable.Remove(key); err != nil && !errors.Is(err, ErrNotFound) {
		a.logger.Debug().Err(err).Str("key", key).Msg("durable remove failed")
	}
}

// purgeExpiredLocked evicts expired namespace entries from the durable
// tier. Called with the lock held.
func (a *Adapter) purgeExpiredLocked() {
	keys, err := a.durable.Keys(a.prefix)
	if err != nil {
		a.logger.Debug().Err(err).Msg("purge: listing keys failed")
		return
	}

	purged := 0
	for _, key := range keys {
		value, err := a.durable.Get(key)
		if err != nil {
			if errors.Is(err, ErrCorrupt) {
				_ = a.durable.Remove(key)
				purged++
			}
			continue
		}
		if entryExpired(value) {
			_ = a.durable.Remove(key)
			purged++
		}
	}

	telemetry.GetMetrics().StoragePurgesTotal.Add(context.Background(), 1)
	a.logger.Info().Int("purged", purged).Msg("purged expired durable entries")
}

// Reload re-reads the key from the durable tier into the memory tier.
// Used when another process mutates the durable tier underneath us so
// concurrent contexts converge. A durable miss clears the memory entry.
func (a *Adapter) Reload(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.durableDisabled {
		return
	}

	value, err := a.durable.Get(key)
	if err != nil {
		delete(a.memory, key)
		return
	}
	if a.validate(value) != nil || entryExpired(value) {
		delete(a.memory, key)
		return
	}

	a.memory[key] = value
	a.logger.Debug().Str("key", key).Msg("reloaded entry after external change")
}

// Diagnostics probes adapter health. The only side effect is a disposable
// probe write/delete against the durable tier used to detect restricted
// environments.
func (a *Adapter) Diagnostics() Diagnostics {
	a.mu.RLock()
	memoryEntries := len(a.memory)
	disabled := a.durableDisabled
	a.mu.RUnlock()

	d := Diagnostics{
		DurableAvailable: !disabled,
		MemoryEntries:    memoryEntries,
	}

	if disabled {
		d.PrivateModeSuspected = true
		return d
	}

	if keys, err := a.durable.Keys(a.prefix); err == nil {
		d.DurableEntries = len(keys)
	}

	probeKey := a.prefix + "__probe__"
	if err := a.durable.Set(probeKey, `{}`); err != nil {
		d.PrivateModeSuspected = true
		d.DurableAvailable = false
		return d
	}
	_ = a.durable.Remove(probeKey)

	return d
}

// Close flushes namespace-prefixed memory entries to the durable tier and
// closes it. Flush failures are tolerated silently; the durable tier is
// best effort to the very end.
func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.durableDisabled {
		return
	}

	for key, value := range a.memory {
		if !hasPrefix(key, a.prefix) {
			continue
		}
		if err := a.durable.Set(key, value); err != nil {
			a.logger.Debug().Err(err).Str("key", key).Msg("flush on close failed")
		}
	}

	if err := a.durable.Close(); err != nil {
		a.logger.Debug().Err(err).Msg("durable tier close failed")
	}
	a.durableDisabled = true
}

func hasPrefix(key, prefix string) bool {
	return len(key) >= len(prefix) && key[:len(prefix)] == prefix
}

// entryExpired inspects a serialized value for an embedded absolute
// expiry. Values are JSON documents; an `expires_at` field holding epoch
// seconds marks the entry's lifetime. Values without the field never
// expire.
func entryExpired(value string) bool {
	var probe struct {
		ExpiresAt int64 `json:"expires_at"`
	}
	if err := json.Unmarshal([]byte(value), &probe); err != nil {
		return false
	}
	return probe.ExpiresAt > 0 && time.Now().Unix() >= probe.ExpiresAt
}
