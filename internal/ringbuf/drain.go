package ringbuf

import (
	"context"
	"time"
)

// pollDelay is how long Drain sleeps when the ring is empty.
const pollDelay = time.Millisecond

// Drain pumps the ring into out until ctx is cancelled. Whenever the ring's
// overflow counter has grown since the previous pop, onOverflow receives the
// number of newly dropped pushes, so no drops are lost between observations.
func Drain[T any](ctx context.Context, r *Ring[T], out chan<- T, onOverflow func(dropped uint64)) {
	var seen uint64
	for {
		if ctx.Err() != nil {
			return
		}

		v, ok := r.Pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollDelay):
			}
			continue
		}

		if of := r.Overflow(); of > seen {
			if onOverflow != nil {
				onOverflow(of - seen)
			}
			seen = of
		}

		select {
		case out <- v:
		case <-ctx.Done():
			return
		}
	}
}
