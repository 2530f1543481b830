// Package resilience provides retry and circuit breaking for calls to
// external market-data and embedding services.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Backoff describes a bounded exponential retry policy.
type Backoff struct {
	// Attempts is the total number of tries including the first. Default: 3.
	Attempts int

	// Initial is the delay before the first retry. Default: 600ms.
	Initial time.Duration

	// Max caps any single delay. Default: 4s.
	Max time.Duration

	// Factor multiplies the delay after each retry. Default: 2.
	Factor float64

	// Jitter randomizes each delay by up to ±Jitter of its value. Zero keeps
	// delays deterministic.
	Jitter float64

	// Retryable overrides IsTransient as the retry predicate.
	Retryable func(err error) bool

	// OnRetry runs before each sleep with the 1-based retry number.
	OnRetry func(attempt int, err error)
}

// DefaultBackoff returns the market-data retry policy: three attempts,
// 0.6s doubling, capped at 4s.
func DefaultBackoff() Backoff {
	return Backoff{
		Attempts: 3,
		Initial:  600 * time.Millisecond,
		Max:      4 * time.Second,
		Factor:   2,
	}
}

// Delay returns the sleep before retry n (0-based).
func (b Backoff) Delay(n int) time.Duration {
	b = b.withDefaults()
	d := float64(b.Initial) * math.Pow(b.Factor, float64(n))
	d = math.Min(d, float64(b.Max))
	if b.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * b.Jitter
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

func (b Backoff) withDefaults() Backoff {
	if b.Attempts <= 0 {
		b.Attempts = 3
	}
	if b.Initial <= 0 {
		b.Initial = 600 * time.Millisecond
	}
	if b.Max <= 0 {
		b.Max = 4 * time.Second
	}
	if b.Factor <= 0 {
		b.Factor = 2
	}
	if b.Jitter < 0 {
		b.Jitter = 0
	}
	if b.Retryable == nil {
		b.Retryable = IsTransient
	}
	return b
}

// Do runs fn until it succeeds, returns a non-retryable error, runs out of
// attempts, or ctx is done. The last error is returned.
func Do(ctx context.Context, b Backoff, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for functions that produce a value.
func DoVal[T any](ctx context.Context, b Backoff, fn func(ctx context.Context) (T, error)) (T, error) {
	b = b.withDefaults()

	var zero T
	for attempt := 0; ; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		if ctx.Err() != nil || !b.Retryable(err) || attempt == b.Attempts-1 {
			return zero, err
		}
		if b.OnRetry != nil {
			b.OnRetry(attempt+1, err)
		}

		timer := time.NewTimer(b.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
}

// RetryLogger returns an OnRetry hook that logs through the global logger.
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying request",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
