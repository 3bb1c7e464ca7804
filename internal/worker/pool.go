package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"student-progress-sync/internal/logger"

	"github.com/rs/zerolog"
)

// Job is one unit of pool work. Name tags its log lines (a trace id or an
// object key).
type Job struct {
	Name string
	Run  func(context.Context) error
}

// WorkerPool runs jobs on a fixed number of goroutines. Its channel holds
// two jobs per worker; Submit blocks once that buffer is full.
type WorkerPool struct {
	workerCount int
	jobChan     chan Job
	inFlight    atomic.Int64
	wg          sync.WaitGroup
	log         zerolog.Logger
}

func NewWorkerPool(workerCount int) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &WorkerPool{
		workerCount: workerCount,
		jobChan:     make(chan Job, workerCount*2),
		log:         logger.Get(),
	}
}

func (wp *WorkerPool) Start(ctx context.Context) {
	wp.log.Info().Int("worker_count", wp.workerCount).Msg("Starting worker pool")

	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

// Stop closes the job channel and waits for the workers. Nothing may call
// Submit once Stop has begun.
func (wp *WorkerPool) Stop() {
	wp.log.Info().Int64("in_flight", wp.InFlight()).Int("buffered", len(wp.jobChan)).Msg("Stopping worker pool")
	close(wp.jobChan)
	wp.wg.Wait()
	wp.log.Info().Msg("Worker pool stopped")
}

// Submit blocks until a worker slot accepts the job, so the consumer stops
// popping messages while every worker is busy.
func (wp *WorkerPool) Submit(ctx context.Context, job Job) error {
	select {
	case wp.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InFlight is the number of jobs currently running.
func (wp *WorkerPool) InFlight() int64 {
	return wp.inFlight.Load()
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	log := wp.log.With().Int("worker_id", id).Logger()
	log.Debug().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("Worker stopping due to context cancellation")
			return
		case job, ok := <-wp.jobChan:
			if !ok {
				log.Debug().Msg("Worker stopping due to closed job channel")
				return
			}
			wp.run(ctx, log, job)
		}
	}
}

func (wp *WorkerPool) run(ctx context.Context, log zerolog.Logger, job Job) {
	wp.inFlight.Add(1)
	defer wp.inFlight.Add(-1)

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		log.Error().Err(err).Str("job", job.Name).Dur("duration", time.Since(start)).Msg("Job execution failed")
		return
	}
	log.Debug().Str("job", job.Name).Dur("duration", time.Since(start)).Msg("Job finished")
}
