package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Clock abstracts time so bounded waits can be tested without sleeping
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RealClock is the wall clock
var RealClock Clock = realClock{}

// Policy is a fixed-interval poll bounded by an overall deadline.
// The deadline is the only bound; there is no attempt count.
type Policy struct {
	Interval time.Duration
	Timeout  time.Duration
	Clock    Clock
}

func (p Policy) clock() Clock {
	if p.Clock == nil {
		return RealClock
	}
	return p.Clock
}

// WithClock returns a copy of the policy using the given clock
func (p Policy) WithClock(c Clock) Policy {
	p.Clock = c
	return p
}

// TimeoutError is returned when a bounded wait exceeds its deadline
type TimeoutError struct {
	Operation string
	Timeout   time.Duration
	Attempts  int
	LastErr   error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timeout: %s did not succeed within %s (%d attempts)", e.Operation, e.Timeout, e.Attempts)
	if e.LastErr != nil {
		msg += ": " + e.LastErr.Error()
	}
	return msg
}

func (e *TimeoutError) Unwrap() error {
	return e.LastErr
}

// IsTimeout reports whether err is (or wraps) a TimeoutError
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// FatalError marks a probe error that must not be retried
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal wraps err so Poll stops immediately
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether err was marked with Fatal
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// Probe is one attempt. It returns done=true when the wait is over.
// A non-fatal error is remembered and the probe is retried.
type Probe func(ctx context.Context) (done bool, err error)

// Poll runs probe immediately and then once per Interval until it reports done,
// returns a fatal error, the context is cancelled, or Timeout elapses.
func Poll(ctx context.Context, operation string, policy Policy, probe Probe) (int, error) {
	clock := policy.clock()
	deadline := clock.Now().Add(policy.Timeout)

	var lastErr error
	attempts := 0
	for {
		attempts++
		done, err := probe(ctx)
		if err != nil && IsFatal(err) {
			return attempts, fmt.Errorf("%s: %w", operation, err)
		}
		if err == nil && done {
			return attempts, nil
		}
		if err != nil {
			lastErr = err
		}

		if clock.Now().Add(policy.Interval).After(deadline) {
			return attempts, &TimeoutError{
				Operation: operation,
				Timeout:   policy.Timeout,
				Attempts:  attempts,
				LastErr:   lastErr,
			}
		}

		if err := clock.Sleep(ctx, policy.Interval); err != nil {
			return attempts, fmt.Errorf("%s: cancelled after %d attempts: %w", operation, attempts, err)
		}
	}
}
