package retry

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"

	"wacast/internal/models"
)

// Backoff retries an operation with exponential delays. Used for
// startup dependencies (database open, gateway reachability) where the
// failure is usually a race with another container coming up.
type Backoff struct {
	initial     time.Duration
	max         time.Duration
	multiplier  float64
	maxAttempts int
	jitter      bool
}

func New(cfg models.RetryConfig) *Backoff {
	b := &Backoff{
		initial:     time.Duration(cfg.InitialBackoffMs) * time.Millisecond,
		max:         time.Duration(cfg.MaxBackoffMs) * time.Millisecond,
		multiplier:  2.0,
		maxAttempts: cfg.MaxAttempts,
		jitter:      true,
	}
	if b.initial <= 0 {
		b.initial = 100 * time.Millisecond
	}
	if b.max <= 0 {
		b.max = 30 * time.Second
	}
	if b.maxAttempts <= 0 {
		b.maxAttempts = 5
	}
	return b
}

// Do runs operation until it succeeds, attempts run out, or the context
// is cancelled. Returns the last error on exhaustion.
func (b *Backoff) Do(ctx context.Context, operation func() error) error {
	var lastErr error
	for attempt := 1; attempt <= b.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if lastErr = operation(); lastErr == nil {
			return nil
		}
		if attempt == b.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.delay(attempt)):
		}
	}
	return lastErr
}

func (b *Backoff) delay(attempt int) time.Duration {
	d := time.Duration(float64(b.initial) * math.Pow(b.multiplier, float64(attempt-1)))
	if d > b.max {
		d = b.max
	}
	if b.jitter && d > 0 {
		// Up to 25% random jitter to spread out simultaneous retries.
		span := int64(d / 4)
		if span > 0 {
			if n, err := rand.Int(rand.Reader, big.NewInt(span)); err == nil {
				d += time.Duration(n.Int64())
			}
		}
	}
	return d
}
