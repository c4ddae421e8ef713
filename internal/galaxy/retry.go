package galaxy

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds retries of transient API failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy matches the upstream API's observed behavior:
// short bursts of 5xx responses and occasional rate limiting.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    60 * time.Second,
	}
}

// Do runs op with exponential backoff. Terminal errors and context
// cancellation propagate immediately; transient errors are retried
// until the attempt budget runs out, then wrapped in ExhaustedError.
// A RateLimitError's RetryAfter hint overrides the computed delay,
// capped at MaxDelay.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := waitWithContext(ctx, p.delay(attempt, lastErr)); err != nil {
				return err
			}
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if IsTerminal(err) {
			return err
		}
		lastErr = err
	}
	return &ExhaustedError{Attempts: attempts, Last: lastErr}
}

// delay computes the backoff before the given attempt (1-based for
// the first retry). Jitter spreads concurrent resource syncs apart.
func (p RetryPolicy) delay(attempt int, lastErr error) time.Duration {
	var limited *RateLimitError
	if errors.As(lastErr, &limited) && limited.RetryAfter > 0 {
		if limited.RetryAfter > p.MaxDelay {
			return p.MaxDelay
		}
		return limited.RetryAfter
	}

	d := p.BaseDelay << (attempt - 1)
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	// Full jitter in [d/2, d).
	return d/2 + time.Duration(rand.Int64N(int64(d/2)+1))
}

func waitWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
