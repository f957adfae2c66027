package session_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/evolve-healthtech/evolve-go/session"
)

func TestCoordinatorSingleFlight(t *testing.T) {
	coordinator := session.NewCoordinator()

	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})

	op := func() session.Outcome {
		atomic.AddInt32(&calls, 1)
		close(started)
		<-release
		return session.Outcome{Success: true, AccessToken: "A2"}
	}

	const n = 8
	results := make([]session.Outcome, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = coordinator.Do(context.Background(), op)
		}(i)
	}

	<-started
	// Give the remaining callers time to join the waiter list.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.EqualValues(t, 1, atomic.LoadInt32(&calls), "operation must run exactly once")
	for _, out := range results {
		require.True(t, out.Success)
		require.Equal(t, "A2", out.AccessToken)
	}
}

func TestCoordinatorWaitersReceiveTheirCycle(t *testing.T) {
	coordinator := session.NewCoordinator()

	started := make(chan struct{})
	release := make(chan struct{})
	firstCycle := func() session.Outcome {
		close(started)
		<-release
		return session.Outcome{Success: true, AccessToken: "cycle-1"}
	}

	leaderDone := make(chan session.Outcome, 1)
	go func() {
		leaderDone <- coordinator.Do(context.Background(), firstCycle)
	}()
	<-started

	var secondOpRan int32
	waiterDone := make(chan session.Outcome, 1)
	go func() {
		waiterDone <- coordinator.Do(context.Background(), func() session.Outcome {
			atomic.AddInt32(&secondOpRan, 1)
			return session.Outcome{Success: true, AccessToken: "cycle-2"}
		})
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)

	leaderOut := <-leaderDone
	waiterOut := <-waiterDone
	require.Equal(t, "cycle-1", leaderOut.AccessToken)
	require.Equal(t, "cycle-1", waiterOut.AccessToken, "waiter must get the cycle it joined, not its own operation")
	require.Zero(t, atomic.LoadInt32(&secondOpRan), "joining caller's operation must not run")

	// After the first cycle completed, a new caller starts a fresh cycle.
	out := coordinator.Do(context.Background(), func() session.Outcome {
		return session.Outcome{Success: true, AccessToken: "cycle-2"}
	})
	require.Equal(t, "cycle-2", out.AccessToken)
}

func TestCoordinatorCancelledWaiterAbandonsResult(t *testing.T) {
	coordinator := session.NewCoordinator()

	started := make(chan struct{})
	release := make(chan struct{})
	go coordinator.Do(context.Background(), func() session.Outcome {
		close(started)
		<-release
		return session.Outcome{Success: true}
	})
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := coordinator.Do(ctx, func() session.Outcome {
		t.Fatal("cancelled waiter must not start its own cycle")
		return session.Outcome{}
	})
	require.False(t, out.Success, "cancelled waiter gets a failed outcome")

	// The in-flight operation still completes and does not block on the
	// abandoned waiter.
	close(release)
	done := coordinator.Do(context.Background(), func() session.Outcome {
		return session.Outcome{Success: true}
	})
	require.True(t, done.Success)
}
