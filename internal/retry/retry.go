// Package retry executes remote operations with bounded, session-aware
// retry. The attempt loop is explicit: every attempt produces an outcome
// (success, retryable, terminal) and the attempt ceiling is data, not
// control flow.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/zkardes/chrono-meister-sub000/internal/apierr"
	"github.com/zkardes/chrono-meister-sub000/internal/telemetry"
)

const (
	// DefaultMaxRetries bounds re-attempts after the first invocation.
	DefaultMaxRetries = 3

	// DefaultDelay is the fixed inter-attempt delay.
	DefaultDelay = time.Second
)

// Guard is the session precondition consulted before the first attempt
// and again before every retry.
type Guard interface {
	EnsureValid(ctx context.Context) bool
}

// Options tunes one wrapped operation.
type Options struct {
	// Op names the operation for logs and error context.
	Op string

	// MaxRetries bounds re-attempts; the operation runs at most
	// MaxRetries+1 times. Zero means DefaultMaxRetries, negative means
	// no retries.
	MaxRetries int

	// Delay is the fixed wait between attempts. Ignored when BackOff is
	// set. Zero means DefaultDelay.
	Delay time.Duration

	// BackOff supplies inter-attempt delays; overrides Delay. The core
	// policy is a fixed interval, so this defaults to a constant
	// back-off rather than an exponential one.
	BackOff backoff.BackOff

	// ShouldRetry overrides the retry decision for every error. When
	// nil, backend errors retry only on session expiry and
	// transport-level failures are treated as transient.
	ShouldRetry func(error) bool

	// Logger for attempt-level debug logging.
	Logger zerolog.Logger
}

// Do runs op with bounded retry. The guard is checked before the first
// attempt (a refused session returns apierr.ErrSessionExpired without
// invoking op at all) and re-checked before every retry so no attempt is
// spent against a session already known to be unrecoverable.
func Do[T any](ctx context.Context, guard Guard, op func(context.Context) (T, error), opts Options) (T, error) {
	var zero T

	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	} else if maxRetries < 0 {
		maxRetries = 0
	}

	delay := opts.Delay
	if delay == 0 {
		delay = DefaultDelay
	}

	bo := opts.BackOff
	if bo == nil {
		bo = backoff.NewConstantBackOff(delay)
	}
	bo.Reset()

	shouldRetry := opts.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = defaultShouldRetry
	}

	if !guard.EnsureValid(ctx) {
		return zero, apierr.ErrSessionExpired
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			telemetry.GetMetrics().RetryAttemptsTotal.Add(ctx, 1)
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, lastErr
		}

		if !shouldRetry(err) {
			opts.Logger.Debug().
				Err(err).
				Str("op", opts.Op).
				Int("attempt", attempt).
				Msg("terminal error, not retrying")
			return zero, lastErr
		}

		if attempt >= maxRetries {
			telemetry.GetMetrics().RetryExhaustedTotal.Add(ctx, 1)
			opts.Logger.Warn().
				Err(err).
				Str("op", opts.Op).
				Int("attempts", attempt+1).
				Msg("retry budget exhausted")
			return zero, lastErr
		}

		// The failure may have been a stale token; re-validate (which
		// refreshes when needed) before spending another attempt. A
		// session confirmed unrecoverable aborts immediately.
		if !guard.EnsureValid(ctx) {
			return zero, apierr.ErrSessionExpired
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return zero, lastErr
		}

		opts.Logger.Debug().
			Err(err).
			Str("op", opts.Op).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("retrying after delay")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// defaultShouldRetry retries auth failures a refresh can fix, plus
// transport-level failures that never reached the backend. Everything
// the backend rejected for a non-auth reason is terminal.
func defaultShouldRetry(err error) bool {
	if apierr.IsRetryable(err) {
		return true
	}

	// A decoded backend rejection that is not a session problem will not
	// get better by asking again.
	var be *apierr.BackendError
	if errors.As(err, &be) {
		return false
	}
	if errors.Is(err, apierr.ErrSessionExpired) {
		return false
	}

	// Connection resets, timeouts short of the context deadline, and
	// other transport noise are assumed transient.
	return true
}
