// Package retry provides the bounded exponential-backoff policy shared by the
// inference gateway and the audio ingestion pipeline.
//
// Usage:
//
//	p := retry.Policy{MaxAttempts: 3, InitialDelay: 500 * time.Millisecond}
//	attempts, err := p.Do(ctx, func(ctx context.Context, attempt int) error {
//	    return client.Call(ctx)
//	})
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrBudgetExhausted is joined to the last attempt error when the next backoff
// would push the call past Policy.MaxElapsed.
var ErrBudgetExhausted = errors.New("retry: wall-clock budget exhausted")

// Policy controls the retry behaviour. A Policy is read-only after
// construction and safe to share between goroutines.
type Policy struct {
	// MaxAttempts is the total number of attempts (including the first).
	// Zero or negative values are treated as 1 (no retries).
	MaxAttempts int
	// InitialDelay is the wait before the second attempt.
	// Subsequent delays are doubled up to MaxDelay.
	InitialDelay time.Duration
	// MaxDelay caps the per-attempt wait, including server-provided hints.
	MaxDelay time.Duration
	// MaxElapsed bounds the total wall-clock time spent across attempts and
	// backoff waits. Zero disables the budget (the context deadline still
	// applies).
	MaxElapsed time.Duration
	// ShouldRetry is an optional predicate that lets callers classify errors
	// as retryable. When nil, all non-nil errors are retried.
	ShouldRetry func(err error) bool
	// OnRetry, when set, is called before each backoff wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy provides sensible defaults for short-lived network calls.
var DefaultPolicy = Policy{
	MaxAttempts:  3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
}

// Hinter is implemented by errors that carry a server-suggested wait, such
// as a model endpoint reporting its estimated cold-start time.
type Hinter interface {
	RetryAfter() time.Duration
}

// Do calls fn up to p.MaxAttempts times, backing off exponentially between
// attempts. It stops early when ctx is cancelled, fn returns nil, ShouldRetry
// rejects the error, or the wall-clock budget would be exceeded.
// It returns the number of attempts made and the error from the last attempt.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	p = p.withDefaults()
	shouldRetry := p.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = func(err error) bool { return true }
	}

	start := time.Now()
	delay := p.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, errors.Join(lastErr, err)
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}

		if !shouldRetry(lastErr) {
			return attempt, lastErr
		}
		if attempt == p.MaxAttempts {
			return attempt, lastErr
		}

		wait := delay
		var h Hinter
		if errors.As(lastErr, &h) && h.RetryAfter() > wait {
			wait = h.RetryAfter()
		}
		if wait > p.MaxDelay {
			wait = p.MaxDelay
		}
		if p.MaxElapsed > 0 && time.Since(start)+wait > p.MaxElapsed {
			return attempt, errors.Join(lastErr, ErrBudgetExhausted)
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, lastErr, wait)
		}
		slog.Debug("retry: attempt failed, retrying",
			"attempt", attempt, "max", p.MaxAttempts,
			"err", lastErr, "delay", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, errors.Join(lastErr, ctx.Err())
		case <-timer.C:
		}

		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return p.MaxAttempts, lastErr
}

// Do is a convenience wrapper for callers that do not need the attempt
// count or the per-attempt context.
func Do(ctx context.Context, p Policy, fn func() error) error {
	_, err := p.Do(ctx, func(context.Context, int) error { return fn() })
	return err
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultPolicy.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultPolicy.MaxDelay
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	return p
}
