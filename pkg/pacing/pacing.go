// Package pacing holds the timing policy of a run: jittered delays between
// requests and linear backoff between retries.
package pacing

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Jitter returns the next delay to wait.
type Jitter func() time.Duration

// Uniform draws delays uniformly from [min, max].
func Uniform(min, max time.Duration) Jitter {
	if max <= min {
		return Fixed(min)
	}
	span := int64(max - min)
	return func() time.Duration {
		return min + time.Duration(rand.Int64N(span+1))
	}
}

// Fixed always returns d.
func Fixed(d time.Duration) Jitter {
	return func() time.Duration { return d }
}

// None never waits. Tests use it to run without delays.
func None() Jitter {
	return Fixed(0)
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Linear is a backoff.BackOff whose n-th wait is n × Base.
type Linear struct {
	Base    time.Duration
	attempt int
}

// NextBackOff implements backoff.BackOff.
func (l *Linear) NextBackOff() time.Duration {
	l.attempt++
	return time.Duration(l.attempt) * l.Base
}

// Reset implements backoff.BackOff.
func (l *Linear) Reset() {
	l.attempt = 0
}

// RetryPolicy bounds how often and how patiently an operation is retried.
type RetryPolicy struct {
	Attempts int           // total attempts, including the first
	Base     time.Duration // wait after the first failure; grows linearly
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Retry runs op until it succeeds, returns a Permanent error, the attempts are
// exhausted, or ctx is cancelled while waiting. notify is called before each wait
// with the failed attempt number (1-based), the error and the wait.
// The returned error is always the last error returned by op.
func Retry(ctx context.Context, policy RetryPolicy, op func(attempt int) error, notify func(attempt int, err error, wait time.Duration)) error {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var b backoff.BackOff = &Linear{Base: policy.Base}
	b = backoff.WithMaxRetries(b, uint64(attempts-1))
	b = backoff.WithContext(b, ctx)

	attempt := 0
	var lastErr error
	err := backoff.RetryNotify(func() error {
		attempt++
		lastErr = op(attempt)
		return lastErr
	}, b, func(err error, wait time.Duration) {
		if notify != nil {
			notify(attempt, err, wait)
		}
	})
	if err == nil {
		return nil
	}

	// cancellation while waiting surfaces as ctx.Err(); report what actually failed
	var perm *backoff.PermanentError
	if errors.As(lastErr, &perm) {
		return perm.Err
	}
	return lastErr
}
