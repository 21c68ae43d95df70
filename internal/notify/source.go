package notify

import (
	"context"
	"time"
)

// Source is a push transport. Run blocks, feeding events into pub until
// ctx is cancelled, and returns ctx.Err() on shutdown.
type Source interface {
	Name() string
	Run(ctx context.Context, pub Publisher) error
}

// Backoff bounds the reconnect delay of a Source.
type Backoff struct {
	Min time.Duration
	Max time.Duration
}

// DefaultBackoff starts at half a second and caps at 30 seconds.
func DefaultBackoff() Backoff {
	return Backoff{Min: 500 * time.Millisecond, Max: 30 * time.Second}
}

func (b Backoff) next(cur time.Duration) time.Duration {
	if b.Min <= 0 {
		b.Min = DefaultBackoff().Min
	}
	if b.Max < b.Min {
		b.Max = b.Min
	}
	if cur < b.Min {
		return b.Min
	}
	cur *= 2
	if cur > b.Max {
		return b.Max
	}
	return cur
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
