// Package retry runs an operation a bounded number of times with a backoff
// between attempts. Attempts are strictly sequential.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Backoff returns the wait before attempt+1, given the attempt that just
// failed (1-based).
type Backoff func(attempt int) time.Duration

// Policy bounds the number of attempts.
type Policy struct {
	MaxAttempts int
	Backoff     Backoff
}

// Default is three attempts with 1s, 2s waits plus jitter.
func Default() Policy {
	return Policy{MaxAttempts: 3, Backoff: Jitter(Exponential(time.Second, 30*time.Second), 250*time.Millisecond)}
}

// Exponential doubles base on every attempt, capped at max.
func Exponential(base, max time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= max {
				return max
			}
		}
		return min(d, max)
	}
}

// Jitter adds up to spread of random delay to b.
func Jitter(b Backoff, spread time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if spread <= 0 {
			return b(attempt)
		}
		return b(attempt) + time.Duration(rand.Int63n(int64(spread)))
	}
}

type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanent{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanent
	return errors.As(err, &p)
}

// Do calls fn until it succeeds, returns a permanent error, the context is
// done, or MaxAttempts is reached. It returns the number of attempts made and
// the last error.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) (int, error) {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attempt - 1, ctxErr
		}

		err = fn(ctx, attempt)
		if err == nil {
			return attempt, nil
		}

		if IsPermanent(err) || errors.Is(err, context.Canceled) || attempt == p.MaxAttempts {
			return attempt, err
		}
		if p.Backoff != nil {
			if sleepErr := sleep(ctx, p.Backoff(attempt)); sleepErr != nil {
				return attempt, sleepErr
			}
		}
	}
	return p.MaxAttempts, err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
