package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultSafetyMargin is the minimum remaining session lifetime below
// which the guard forces a refresh before letting an operation proceed.
const DefaultSafetyMargin = 60 * time.Second

// Guard is the precondition checked immediately before every remote
// operation: the session either has more than the safety margin left, or
// has just been freshly refreshed. Otherwise the operation is refused up
// front instead of running against a stale credential.
type Guard struct {
	manager *Manager
	margin  time.Duration
	logger  zerolog.Logger
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithSafetyMargin overrides the default safety margin.
func WithSafetyMargin(margin time.Duration) GuardOption {
	return func(g *Guard) { g.margin = margin }
}

// WithGuardLogger sets the guard logger.
func WithGuardLogger(logger zerolog.Logger) GuardOption {
	return func(g *Guard) { g.logger = logger }
}

// NewGuard creates a guard over the manager.
func NewGuard(manager *Manager, opts ...GuardOption) *Guard {
	g := &Guard{
		manager: manager,
		margin:  DefaultSafetyMargin,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// EnsureValid reports whether the session is usable for a remote
// operation right now. A healthy session makes no remote call, so
// back-to-back checks are free and token-rotation races are not
// provoked. A session inside the margin (or past expiry) triggers one
// refresh; the result decides the answer. No session at all is false.
//
// Failure is deliberately a boolean, not an error: the caller decides
// whether to surface a session-expired failure or abort quietly.
func (g *Guard) EnsureValid(ctx context.Context) bool {
	s := g.manager.Current()
	if s == nil {
		g.logger.Debug().Msg("no session to validate")
		return false
	}

	remaining := s.TimeUntilExpiry()
	if remaining > g.margin {
		return true
	}

	g.logger.Debug().
		Dur("remaining", remaining).
		Dur("margin", g.margin).
		Msg("session inside safety margin, refreshing")

	if err := g.manager.Refresh(ctx); err != nil {
		g.logger.Warn().Err(err).Msg("refresh failed, session unusable")
		return false
	}

	return true
}

// Margin returns the guard's safety margin.
func (g *Guard) Margin() time.Duration {
	return g.margin
}
