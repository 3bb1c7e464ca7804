package codeforces

import (
	"sync"
	"testing"
	"time"

	"student-progress-sync/internal/clock"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueDispatchesInEnqueueOrder(t *testing.T) {
	spy := clock.NewMock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	q := newRequestQueue(200*time.Millisecond, spy, zerolog.Nop())
	defer q.stop()

	const callers = 40

	var (
		mu         sync.Mutex
		dispatched []uint64
		inFlight   int
		maxFlight  int
		wg         sync.WaitGroup
	)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			seqCh := make(chan uint64, 1)
			finished := make(chan struct{})
			seq, ok := q.enqueue(func() {
				s := <-seqCh
				mu.Lock()
				inFlight++
				if inFlight > maxFlight {
					maxFlight = inFlight
				}
				dispatched = append(dispatched, s)
				inFlight--
				mu.Unlock()
				close(finished)
			}, func() { close(finished) })
			if !ok {
				wg.Done()
				return
			}
			seqCh <- seq
			<-finished
			wg.Done()
		}()
	}
	wg.Wait()

	require.Len(t, dispatched, callers)
	for i, seq := range dispatched {
		assert.Equal(t, uint64(i+1), seq, "dispatch %d out of order", i)
	}
	assert.Equal(t, 1, maxFlight)

	sleeps := spy.Sleeps()
	require.Len(t, sleeps, callers)
	for _, d := range sleeps {
		assert.Equal(t, 200*time.Millisecond, d)
	}
}

func TestQueueWaitsForPreviousCompletion(t *testing.T) {
	spy := clock.NewMock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	q := newRequestQueue(200*time.Millisecond, spy, zerolog.Nop())
	defer q.stop()

	release := make(chan struct{})
	firstStarted := make(chan struct{})
	secondDone := make(chan struct{})

	q.enqueue(func() {
		close(firstStarted)
		<-release
	}, func() {})
	q.enqueue(func() { close(secondDone) }, func() {})

	<-firstStarted
	select {
	case <-secondDone:
		t.Fatal("second request dispatched before the first completed")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-secondDone:
	case <-time.After(2 * time.Second):
		t.Fatal("second request never dispatched")
	}
}

func TestQueueStopAbortsPending(t *testing.T) {
	spy := clock.NewMock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	q := newRequestQueue(0, spy, zerolog.Nop())

	release := make(chan struct{})
	started := make(chan struct{})
	aborted := make(chan struct{})

	q.enqueue(func() {
		close(started)
		<-release
	}, func() {})
	q.enqueue(func() { t.Error("pending request must not run after stop") }, func() { close(aborted) })

	<-started
	stopped := make(chan struct{})
	go func() {
		q.stop()
		close(stopped)
	}()
	<-q.done
	close(release)

	<-stopped
	<-aborted

	_, ok := q.enqueue(func() {}, func() {})
	assert.False(t, ok)
}
