package executor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vietddude/sigitm-etl/internal/core/domain"
	"github.com/vietddude/sigitm-etl/internal/core/retry"
)

// Operation is one phase's unit of work. It must respect ctx and release
// anything it acquired on every exit path.
type Operation func(ctx context.Context) (domain.Artifact, error)

// Executor runs one phase under a retry policy with a per-attempt
// timeout, recording an Attempt per invocation.
type Executor struct {
	log   *slog.Logger
	clock clock
}

func New(log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{log: log, clock: realClock{}}
}

// Execute invokes op until it succeeds, fails non-retryably, the policy
// is exhausted, or ctx is cancelled. A timed-out attempt counts as a
// retryable failure. The backoff wait between attempts holds nothing and
// cuts short on ctx cancellation.
func (e *Executor) Execute(ctx context.Context, phase domain.Phase, op Operation, policy retry.Policy, timeout time.Duration) domain.PhaseResult {
	result := domain.PhaseResult{Phase: phase}
	phaseStart := e.clock.Now()

	e.log.Info("phase started", "phase", phase, "max_attempts", policy.MaxAttempts(), "timeout", timeout)

	for attempt := 1; ; attempt++ {
		attemptStart := e.clock.Now()
		artifact, err := e.runAttempt(ctx, op, timeout)
		a := domain.Attempt{
			Seq:       attempt,
			StartedAt: attemptStart.UTC(),
			Duration:  e.clock.Since(attemptStart),
			OK:        err == nil,
		}

		if err == nil {
			result.Attempts = append(result.Attempts, a)
			result.Status = domain.PhaseSucceeded
			result.Artifact = artifact
			result.Elapsed = e.clock.Since(phaseStart)
			e.log.Info("phase succeeded", "phase", phase, "attempts", attempt, "elapsed", result.Elapsed)
			return result
		}

		a.Kind = domain.KindOf(err)
		a.Cause = err.Error()
		result.Attempts = append(result.Attempts, a)

		if ctx.Err() != nil {
			result.Status = domain.PhaseAborted
			result.Elapsed = e.clock.Since(phaseStart)
			e.log.Warn("phase aborted", "phase", phase, "attempt", attempt, "error", err)
			return result
		}

		if !domain.IsRetryable(err) {
			result.Status = domain.PhaseFailed
			result.Elapsed = e.clock.Since(phaseStart)
			e.log.Error("phase failed, not retryable", "phase", phase, "attempt", attempt, "kind", a.Kind, "error", err)
			return result
		}

		delay, ok := policy.NextDelay(attempt)
		if !ok {
			result.Status = domain.PhaseFailed
			result.Elapsed = e.clock.Since(phaseStart)
			e.log.Error("phase failed, attempts exhausted", "phase", phase, "attempts", attempt, "kind", a.Kind, "error", err)
			return result
		}

		e.log.Warn("attempt failed, retrying", "phase", phase, "attempt", attempt, "kind", a.Kind, "retry_in", delay, "error", err)

		select {
		case <-e.clock.After(delay):
		case <-ctx.Done():
			result.Status = domain.PhaseAborted
			result.Elapsed = e.clock.Since(phaseStart)
			e.log.Warn("phase aborted during backoff", "phase", phase, "attempt", attempt)
			return result
		}
	}
}

// runAttempt bounds a single invocation with the per-attempt timeout and
// maps deadline expiry to a retryable timeout failure.
func (e *Executor) runAttempt(parent context.Context, op Operation, timeout time.Duration) (domain.Artifact, error) {
	ctx := parent
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, timeout)
		defer cancel()
	}

	artifact, err := op(ctx)
	if err == nil {
		return artifact, nil
	}
	if parent.Err() == nil && (errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded) {
		return nil, domain.Retryable(domain.KindTimeout, err)
	}
	return nil, err
}

// =============================================================================
// Clock
// =============================================================================

type clock interface {
	Now() time.Time
	Since(time.Time) time.Duration
	After(time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Since(t time.Time) time.Duration { return time.Since(t) }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
