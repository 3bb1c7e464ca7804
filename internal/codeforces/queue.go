package codeforces

import (
	"sync"
	"time"

	"student-progress-sync/internal/clock"

	"github.com/rs/zerolog"
)

type queuedRequest struct {
	seq   uint64
	run   func()
	abort func()
}

// requestQueue serializes every outbound call through one worker. Requests
// are dispatched strictly in enqueue order, each one after the previous has
// completed and the spacing delay has elapsed.
type requestQueue struct {
	mu      sync.Mutex
	pending []queuedRequest
	seq     uint64
	stopped bool

	wake    chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	spacing time.Duration
	clock   clock.Clock
	log     zerolog.Logger
}

func newRequestQueue(spacing time.Duration, clk clock.Clock, log zerolog.Logger) *requestQueue {
	q := &requestQueue{
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		spacing: spacing,
		clock:   clk,
		log:     log,
	}
	q.wg.Add(1)
	go q.loop()
	return q
}

// enqueue appends a request and returns its position. abort runs instead of
// run if the queue is stopped before the request is dispatched.
func (q *requestQueue) enqueue(run, abort func()) (uint64, bool) {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return 0, false
	}
	q.seq++
	seq := q.seq
	q.pending = append(q.pending, queuedRequest{seq: seq, run: run, abort: abort})
	depth := len(q.pending)
	q.mu.Unlock()

	q.log.Debug().Uint64("seq", seq).Int("depth", depth).Msg("Request enqueued")

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return seq, true
}

func (q *requestQueue) next() (queuedRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return queuedRequest{}, false
	}
	req := q.pending[0]
	q.pending[0] = queuedRequest{}
	q.pending = q.pending[1:]
	return req, true
}

func (q *requestQueue) loop() {
	defer q.wg.Done()

	for {
		req, ok := q.next()
		if !ok {
			select {
			case <-q.wake:
				continue
			case <-q.done:
				return
			}
		}

		select {
		case <-q.done:
			req.abort()
			return
		default:
		}

		q.clock.Sleep(q.spacing)
		req.run()
	}
}

func (q *requestQueue) stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.mu.Unlock()

	close(q.done)
	q.wg.Wait()

	q.mu.Lock()
	remaining := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, req := range remaining {
		req.abort()
	}
}
