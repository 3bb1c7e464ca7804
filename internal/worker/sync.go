package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"student-progress-sync/internal/config"
	"student-progress-sync/internal/logger"
	"student-progress-sync/internal/model"
	"student-progress-sync/internal/queue"
	syncsvc "student-progress-sync/internal/sync"

	"github.com/rs/zerolog"
)

// StudentStore is the slice of db.Repository the sync worker needs.
type StudentStore interface {
	syncsvc.ResultSink
	GetStudent(ctx context.Context, id string) (*model.Student, error)
	ListStudents(ctx context.Context) ([]model.Student, error)
}

type Syncer interface {
	SyncStudent(ctx context.Context, student model.Student) (*model.SyncResult, error)
	BulkSync(ctx context.Context, students []model.Student, sink syncsvc.ResultSink) model.BulkSyncReport
}

type SyncWorker struct {
	cfg        *config.Config
	repo       StudentStore
	syncer     Syncer
	consumer   *queue.Consumer
	workerPool *WorkerPool
	started    atomic.Bool
	done       chan struct{}
	log        zerolog.Logger
}

func NewSyncWorker(
	cfg *config.Config,
	repo StudentStore,
	syncer Syncer,
	redisClient *queue.RedisClient,
) *SyncWorker {
	return &SyncWorker{
		cfg:        cfg,
		repo:       repo,
		syncer:     syncer,
		consumer:   queue.NewConsumer(redisClient, cfg),
		workerPool: NewWorkerPool(cfg.Workers.Sync.Count),
		done:       make(chan struct{}),
		log:        logger.Get(),
	}
}

func (w *SyncWorker) Start(ctx context.Context) error {
	w.log.Info().Msg("Starting sync worker")

	w.started.Store(true)
	defer close(w.done)

	w.workerPool.Start(ctx)

	return w.consumer.ConsumeSyncQueue(ctx, w.handleMessage)
}

func (w *SyncWorker) Stop() {
	w.log.Info().Msg("Stopping sync worker")
	// the consumer must be gone before the job channel closes
	if w.started.Load() {
		<-w.done
	}
	w.workerPool.Stop()
}

func (w *SyncWorker) handleMessage(ctx context.Context, data []byte) error {
	var job model.SyncJob
	if err := json.Unmarshal(data, &job); err != nil {
		w.log.Error().Err(err).Msg("Failed to unmarshal sync job")
		return err
	}

	switch job.Kind {
	case model.SyncJobStudent:
		if job.StudentID == "" {
			return fmt.Errorf("student sync job %s has no student id", job.TraceID)
		}
	case model.SyncJobBulk:
	default:
		return fmt.Errorf("unknown sync job kind %q", job.Kind)
	}

	w.log.Info().
		Str("kind", string(job.Kind)).
		Str("student_id", job.StudentID).
		Str("trace_id", job.TraceID).
		Msg("Processing sync job")

	return w.workerPool.Submit(ctx, Job{
		Name: string(job.Kind) + ":" + job.TraceID,
		Run: func(ctx context.Context) error {
			return w.process(ctx, job)
		},
	})
}

func (w *SyncWorker) process(ctx context.Context, job model.SyncJob) error {
	if job.Kind == model.SyncJobBulk {
		_, err := w.runBulk(ctx, job)
		return err
	}
	return w.runStudent(ctx, job)
}

func (w *SyncWorker) runStudent(ctx context.Context, job model.SyncJob) error {
	log := w.log.With().Str("student_id", job.StudentID).Str("trace_id", job.TraceID).Logger()

	student, err := w.repo.GetStudent(ctx, job.StudentID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load student")
		return err
	}

	result, err := w.syncer.SyncStudent(ctx, *student)
	if err != nil {
		return err
	}

	if err := w.repo.SaveSyncResult(ctx, result); err != nil {
		log.Error().Err(err).Msg("Failed to save sync result")
		return err
	}

	log.Info().Int("contests", len(result.Contests)).Msg("Student sync persisted")
	return nil
}

func (w *SyncWorker) runBulk(ctx context.Context, job model.SyncJob) (model.BulkSyncReport, error) {
	students, err := w.repo.ListStudents(ctx)
	if err != nil {
		w.log.Error().Err(err).Str("trace_id", job.TraceID).Msg("Failed to list students")
		return model.BulkSyncReport{}, err
	}

	report := w.syncer.BulkSync(ctx, students, w.repo)

	w.log.Info().
		Str("trace_id", job.TraceID).
		Time("requested_at", job.RequestedAt).
		Int("synced", report.Synced).
		Strs("failed", report.Failed).
		Int("reminders_sent", report.RemindersSent).
		Msg("Bulk sync job finished")
	return report, nil
}
