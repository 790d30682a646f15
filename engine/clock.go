package engine

import (
	"context"
	"time"
)

// Clock abstracts time for every polling wait in the engine so tests can run
// the retry, fill-wait and monitor loops deterministically.
type Clock interface {
	Now() time.Time
	// Sleep suspends the calling goroutine for d, returning early with
	// ctx.Err() if the context is cancelled first.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		// Still honor cancellation on zero-length sleeps.
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
