package migration

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// maxRetryDelay caps the exponential backoff.
const maxRetryDelay = 10 * time.Second

// Transient errors are matched by substring on the error text, not by
// status code alone: the transport does not expose status codes uniformly
// (some failures surface as wrapped net errors with no code at all).
var transientMarkers = []string{
	"http 429",
	"too many requests",
	"rate limit",
	"timeout",
	"timed out",
	"deadline exceeded",
	"http 500",
	"http 502",
	"http 503",
	"http 504",
	"bad gateway",
	"service unavailable",
	"temporarily unavailable",
	"connection reset",
	"connection refused",
	"unexpected eof",
}

// isTransient classifies an error as retryable.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// retryer re-runs an operation on transient failures with exponential
// backoff and optional jitter. Non-transient errors propagate immediately.
type retryer struct {
	policy    RetryPolicy
	sleep     func(context.Context, time.Duration) error
	randFloat func() float64
}

func newRetryer(policy RetryPolicy) *retryer {
	return &retryer{
		policy:    policy,
		sleep:     sleepCtx,
		randFloat: rand.Float64,
	}
}

// backoffDelay computes the wait before retry number attempt (0-based).
func (r *retryer) backoffDelay(attempt int) time.Duration {
	delay := time.Duration(r.policy.BaseDelayMs) * time.Millisecond
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			break
		}
	}
	if r.policy.Jitter {
		delay += time.Duration(r.randFloat() * 0.3 * float64(delay))
	}
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

// do runs fn, retrying transient failures up to MaxRetries times. desc names
// the operation in warnings and in the final error.
func (r *retryer) do(ctx context.Context, desc string, warn func(string), fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
		if attempt >= r.policy.MaxRetries {
			return fmt.Errorf("%s: retries exhausted after %d attempts: %w", desc, attempt+1, err)
		}
		delay := r.backoffDelay(attempt)
		if warn != nil {
			warn(fmt.Sprintf("%s: transient error, retrying in %s (attempt %d/%d): %v",
				desc, delay.Round(time.Millisecond), attempt+1, r.policy.MaxRetries, err))
		}
		if serr := r.sleep(ctx, delay); serr != nil {
			return serr
		}
	}
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
