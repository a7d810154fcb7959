package retry

import (
	"context"
	"errors"
	"time"
)

// Policy controls how many times and how long to wait between attempts.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Fixed keeps the delay at BaseDelay instead of doubling it.
	Fixed bool
	// Retryable decides whether an error is worth another attempt.
	// Permanent errors are never retried regardless of this hook.
	Retryable func(error) bool
	// Sleep waits for d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Exponential doubles the delay after every attempt, capped at maxDelay.
func Exponential(maxRetries int, baseDelay, maxDelay time.Duration) Policy {
	return Policy{MaxRetries: maxRetries, BaseDelay: baseDelay, MaxDelay: maxDelay}
}

// Fixed waits the same delay between every attempt.
func Fixed(maxRetries int, delay time.Duration) Policy {
	return Policy{MaxRetries: maxRetries, BaseDelay: delay, Fixed: true}
}

// Delay returns the wait before retry number attempt (0-based).
func (p Policy) Delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	if p.Fixed {
		return base
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var perm *permanentError
	return errors.As(err, &perm)
}

// Do runs fn until it succeeds, returns a non-retryable error, or the policy is exhausted.
// It returns the number of attempts made alongside the last error.
func Do(ctx context.Context, p Policy, fn func(context.Context) error) (int, error) {
	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = wait
	}

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return attempt + 1, nil
		}
		if IsPermanent(err) {
			return attempt + 1, unwrapPermanent(err)
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return attempt + 1, err
		}
		if attempt >= maxRetries {
			return attempt + 1, err
		}
		if err := sleep(ctx, p.Delay(attempt)); err != nil {
			return attempt + 1, err
		}
	}
}

func unwrapPermanent(err error) error {
	var perm *permanentError
	if errors.As(err, &perm) && perm == err {
		return perm.err
	}
	return err
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
