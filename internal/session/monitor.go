package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zkardes/chrono-meister-sub000/internal/telemetry"
)

const (
	// DefaultPollInterval is how often the monitor inspects the session.
	DefaultPollInterval = 60 * time.Second

	// DefaultWarningWindow is the remaining lifetime below which the
	// monitor refreshes proactively. Deliberately wider than the guard's
	// safety margin: the guard is a fast-path precondition, the monitor a
	// slow background health check, and the wide window means an
	// idle-but-open client never reaches a hard expiry.
	DefaultWarningWindow = 5 * time.Minute
)

// Action records what a polling cycle did.
type Action int

const (
	// ActionNone means the session was healthy.
	ActionNone Action = iota

	// ActionProactiveRefresh means the session was inside the warning
	// window and was refreshed.
	ActionProactiveRefresh

	// ActionRecoveryAttempted means the session was missing and recovery
	// ran.
	ActionRecoveryAttempted
)

// String returns the string representation of the action.
func (a Action) String() string {
	switch a {
	case ActionProactiveRefresh:
		return "proactive_refresh"
	case ActionRecoveryAttempted:
		return "recovery_attempted"
	default:
		return "none"
	}
}

// HealthCheck is the result of one polling cycle.
type HealthCheck struct {
	CheckedAt       time.Time
	SessionPresent  bool
	TimeUntilExpiry time.Duration
	Action          Action
	ActionFailed    bool
}

// Monitor watches for session decay between explicit operations: user
// idle, a backgrounded client, another context signing out underneath
// us. It heals what it can silently and leaves the rest observable via
// LastCheck; it never tears anything down on the caller's behalf.
//
// Polls and in-flight operations are not coordinated. Both converge on
// the manager's session state, and a refresh raced by the guard is a
// no-op on whichever side arrives second.
type Monitor struct {
	manager  *Manager
	interval time.Duration
	window   time.Duration
	logger   zerolog.Logger

	mu   sync.Mutex
	last *HealthCheck

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithPollInterval overrides the polling interval.
func WithPollInterval(interval time.Duration) MonitorOption {
	return func(mo *Monitor) { mo.interval = interval }
}

// WithWarningWindow overrides the proactive-refresh window.
func WithWarningWindow(window time.Duration) MonitorOption {
	return func(mo *Monitor) { mo.window = window }
}

// WithMonitorLogger sets the monitor logger.
func WithMonitorLogger(logger zerolog.Logger) MonitorOption {
	return func(mo *Monitor) { mo.logger = logger }
}

// NewMonitor creates a monitor over the manager.
func NewMonitor(manager *Manager, opts ...MonitorOption) *Monitor {
	mo := &Monitor{
		manager:  manager,
		interval: DefaultPollInterval,
		window:   DefaultWarningWindow,
		logger:   zerolog.Nop(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(mo)
	}
	return mo
}

// Start launches the polling loop. The loop exits when Stop is called or
// ctx is cancelled, whichever comes first, so a monitor can never
// outlive its owner.
func (mo *Monitor) Start(ctx context.Context) {
	go mo.loop(ctx)
}

// Stop halts polling and waits for the loop to exit. Safe to call more
// than once.
func (mo *Monitor) Stop() {
	mo.stopOnce.Do(func() {
		close(mo.stopCh)
		<-mo.doneCh
	})
}

// LastCheck returns the most recent health check, if any cycle has run.
// This is what a status banner reads.
func (mo *Monitor) LastCheck() (HealthCheck, bool) {
	mo.mu.Lock()
	defer mo.mu.Unlock()

	if mo.last == nil {
		return HealthCheck{}, false
	}
	return *mo.last, true
}

func (mo *Monitor) loop(ctx context.Context) {
	defer close(mo.doneCh)

	ticker := time.NewTicker(mo.interval)
	defer ticker.Stop()

	mo.logger.Debug().Dur("interval", mo.interval).Msg("session monitor started")

	for {
		select {
		case <-ticker.C:
			mo.poll(ctx)

		case <-mo.stopCh:
			mo.logger.Debug().Msg("session monitor stopping")
			return

		case <-ctx.Done():
			mo.logger.Debug().Msg("session monitor context cancelled")
			return
		}
	}
}

// poll runs one health-check cycle. Nothing happens while signed out;
// polling picks back up by itself once the manager is authenticated
// again.
func (mo *Monitor) poll(ctx context.Context) {
	if !mo.manager.Authenticated() {
		return
	}

	check := HealthCheck{CheckedAt: time.Now()}

	s := mo.manager.Current()
	if s == nil {
		// Authenticated flag set, session gone: silent loss. One
		// recovery attempt per cycle; on failure we leave the state
		// alone rather than forcing the caller through a teardown that
		// would destroy unsaved work.
		check.Action = ActionRecoveryAttempted
		if err := mo.manager.Recover(ctx); err != nil {
			check.ActionFailed = true
			mo.logger.Warn().Err(err).Msg("session lost and recovery failed")
		} else {
			mo.logger.Info().Msg("recovered lost session")
		}
		mo.record(check)
		return
	}

	check.SessionPresent = true
	check.TimeUntilExpiry = s.TimeUntilExpiry()

	if check.TimeUntilExpiry <= mo.window {
		check.Action = ActionProactiveRefresh
		telemetry.GetMetrics().ProactiveRefreshTotal.Add(ctx, 1)
		if err := mo.manager.Refresh(ctx); err != nil {
			check.ActionFailed = true
			mo.logger.Warn().Err(err).Dur("remaining", check.TimeUntilExpiry).Msg("proactive refresh failed")
		} else {
			mo.logger.Debug().Dur("remaining", check.TimeUntilExpiry).Msg("proactively refreshed session")
		}
	}

	mo.record(check)
}

func (mo *Monitor) record(check HealthCheck) {
	mo.mu.Lock()
	mo.last = &check
	mo.mu.Unlock()
}
