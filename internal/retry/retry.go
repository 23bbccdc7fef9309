// Package retry runs an operation with bounded attempts and exponential
// backoff. The sleep function is injectable so callers can test timing
// without wall-clock delays.
package retry

import (
	"context"
	"errors"
	"time"
)

// SleepFunc waits for d or until ctx is done, returning ctx.Err() in the
// latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy describes how an operation is retried. The zero value performs a
// single attempt.
type Policy struct {
	// MaxAttempts is the total number of calls, including the first.
	MaxAttempts int

	// BaseDelay is the wait after the first failure. Attempt n (1-based)
	// is followed by BaseDelay * 2^(n-1).
	BaseDelay time.Duration

	// Sleep defaults to SleepContext.
	Sleep SleepFunc

	// OnRetry, if set, is called before each backoff wait with the attempt
	// that just failed, the delay about to be taken and the failure.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// permanentError marks a failure that must not be retried.
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so Do returns it immediately. errors.Is and errors.As
// still see the wrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Delay returns the backoff after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.BaseDelay * time.Duration(1<<(attempt-1))
}

// Do calls op until it succeeds, returns a permanent error, the context is
// done, or MaxAttempts calls have failed. After exhaustion the last error
// is returned unchanged.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return errors.Join(lastErr, err)
			}
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if IsPermanent(lastErr) {
			var perm *permanentError
			errors.As(lastErr, &perm)
			return perm.err
		}
		if attempt == attempts {
			break
		}

		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, lastErr)
		}
		if err := sleep(ctx, delay); err != nil {
			return errors.Join(lastErr, err)
		}
	}
	return lastErr
}

// SleepContext waits for d, returning early with ctx.Err() if ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
