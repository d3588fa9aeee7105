package workflow

import (
	"context"
	"time"
)

// Clock is the time source for worker sleeps and timestamps.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// sleep waits d in steps of at most chunk. It returns false when ctx ends
// first and true when the full duration elapsed or wake fired. A nil wake
// never fires.
func sleep(ctx context.Context, clock Clock, d, chunk time.Duration, wake <-chan struct{}) bool {
	if chunk <= 0 || chunk > d {
		chunk = d
	}
	for remaining := d; remaining > 0; remaining -= chunk {
		step := min(chunk, remaining)
		select {
		case <-ctx.Done():
			return false
		case <-wake:
			return true
		case <-clock.After(step):
		}
	}
	return ctx.Err() == nil
}
