package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// ErrExhausted is returned when every attempt of a policy was used without success.
var ErrExhausted = errors.New("retry budget exhausted")

// Clock abstracts waiting so poll loops can be driven by a fake in tests.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// RealClock returns a Clock backed by the time package.
func RealClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Policy describes a bounded poll: at most MaxAttempts calls, Interval apart.
// Jitter is a fraction of Interval (0.1 = up to ±10%) added to each wait.
type Policy struct {
	MaxAttempts int
	Interval    time.Duration
	Jitter      float64
}

// Fixed returns a policy with no jitter.
func Fixed(attempts int, interval time.Duration) Policy {
	return Policy{MaxAttempts: attempts, Interval: interval}
}

func (p Policy) wait() time.Duration {
	if p.Jitter <= 0 || p.Interval <= 0 {
		return p.Interval
	}
	delta := (rand.Float64()*2 - 1) * p.Jitter * float64(p.Interval)
	return p.Interval + time.Duration(delta)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as terminal: Do stops immediately and returns it unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it reports done, returns a permanent error, the context is
// cancelled or the attempt budget is spent. It returns the number of calls made.
// Non-permanent errors are remembered and wrapped into ErrExhausted.
func (p Policy) Do(ctx context.Context, clock Clock, fn func(attempt int) (bool, error)) (int, error) {
	if clock == nil {
		clock = RealClock()
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		done, err := fn(attempt)
		if err != nil {
			var perm *permanentError
			if errors.As(err, &perm) {
				return attempt, perm.err
			}
			lastErr = err
		}
		if done {
			return attempt, nil
		}

		if attempt < attempts {
			if err := clock.Sleep(ctx, p.wait()); err != nil {
				return attempt, err
			}
		}
	}

	if lastErr != nil {
		return attempts, fmt.Errorf("%w after %d attempts: %v", ErrExhausted, attempts, lastErr)
	}
	return attempts, fmt.Errorf("%w after %d attempts", ErrExhausted, attempts)
}
