package service

import (
	"context"
	"time"
)

// Pacer spaces out consecutive sends within one delivery batch.
type Pacer struct{}

func NewPacer() *Pacer {
	return &Pacer{}
}

// Pace blocks for interval between recipients. It returns immediately
// when the caller has just delivered the last recipient of the batch,
// so a trailing delay never pads the pass. Cancellation propagates as
// the context's error; callers treat that as an aborted pass.
func (p *Pacer) Pace(ctx context.Context, lastInBatch bool, interval time.Duration) error {
	if lastInBatch || interval <= 0 {
		return nil
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
