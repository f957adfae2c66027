package session

import (
	"context"
	"sync"
)

// Outcome is the result of one refresh cycle, shared between the caller that
// started it and every waiter that joined while it was in flight.
type Outcome struct {
	Success      bool
	AccessToken  string
	RefreshToken string // empty when the server did not rotate
}

// Coordinator serializes token refreshes: at most one underlying operation is
// in flight at a time, and concurrent callers share its Outcome. Waiters
// always receive the result of the cycle that was in flight when they joined,
// never a cached result from an earlier cycle.
type Coordinator struct {
	lock       sync.Mutex
	refreshing bool
	waiters    []chan Outcome
}

// NewCoordinator creates an idle Coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// Do runs op, or joins an already in-flight run of it.
//
// The first caller to find the coordinator idle becomes the leader and
// invokes op; everyone arriving while it runs is appended to the waiter list
// and suspends. When op completes, the waiters are drained with the same
// outcome. A waiter whose context is cancelled stops waiting and gets a
// failed Outcome, but the in-flight operation still runs to completion.
func (c *Coordinator) Do(ctx context.Context, op func() Outcome) Outcome {
	c.lock.Lock()
	if c.refreshing {
		ch := make(chan Outcome, 1)
		c.waiters = append(c.waiters, ch)
		c.lock.Unlock()

		select {
		case out := <-ch:
			return out
		case <-ctx.Done():
			return Outcome{}
		}
	}
	c.refreshing = true
	c.lock.Unlock()

	out := op()

	c.lock.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.refreshing = false
	c.lock.Unlock()

	// Channels are buffered, so abandoned waiters never block the drain.
	for _, ch := range waiters {
		ch <- out
	}
	return out
}
