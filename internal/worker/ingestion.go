package worker

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"sync/atomic"
	"time"

	"student-progress-sync/internal/config"
	"student-progress-sync/internal/excel"
	"student-progress-sync/internal/logger"
	"student-progress-sync/internal/model"
	"student-progress-sync/internal/queue"
	"student-progress-sync/internal/storage"
	"student-progress-sync/pkg/errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type StudentCreator interface {
	CreateStudent(ctx context.Context, student *model.Student) error
}

type SyncRequester interface {
	RequestStudentSync(ctx context.Context, studentID string) (string, error)
}

type IngestionReport struct {
	Rows       int
	Created    int
	Duplicates int
}

type IngestionWorker struct {
	cfg        *config.Config
	repo       StudentCreator
	storage    storage.Storage
	parser     excel.ParsingStrategy
	syncs      SyncRequester
	consumer   *queue.Consumer
	workerPool *WorkerPool
	started    atomic.Bool
	done       chan struct{}
	log        zerolog.Logger
}

func NewIngestionWorker(
	cfg *config.Config,
	repo StudentCreator,
	storage storage.Storage,
	syncs SyncRequester,
	redisClient *queue.RedisClient,
) *IngestionWorker {
	return &IngestionWorker{
		cfg:        cfg,
		repo:       repo,
		storage:    storage,
		parser:     excel.NewExcelStrategy(),
		syncs:      syncs,
		consumer:   queue.NewConsumer(redisClient, cfg),
		workerPool: NewWorkerPool(cfg.Workers.Ingestion.Count),
		done:       make(chan struct{}),
		log:        logger.Get(),
	}
}

func (w *IngestionWorker) Start(ctx context.Context) error {
	w.log.Info().Msg("Starting ingestion worker")

	w.started.Store(true)
	defer close(w.done)

	w.workerPool.Start(ctx)

	return w.consumer.ConsumeRosterQueue(ctx, w.handleMessage)
}

func (w *IngestionWorker) Stop() {
	w.log.Info().Msg("Stopping ingestion worker")
	// the consumer must be gone before the job channel closes
	if w.started.Load() {
		<-w.done
	}
	w.workerPool.Stop()
}

func (w *IngestionWorker) handleMessage(ctx context.Context, data []byte) error {
	var job model.IngestionJob
	if err := json.Unmarshal(data, &job); err != nil {
		w.log.Error().Err(err).Msg("Failed to unmarshal ingestion job")
		return err
	}

	w.log.Info().Str("key", job.Key).Msg("Processing ingestion job")

	return w.workerPool.Submit(ctx, Job{
		Name: job.Key,
		Run: func(ctx context.Context) error {
			_, err := w.processFile(ctx, job)
			return err
		},
	})
}

// processFile imports a roster workbook. Handles already tracked are skipped;
// every created student gets a sync job.
func (w *IngestionWorker) processFile(ctx context.Context, job model.IngestionJob) (IngestionReport, error) {
	log := w.log.With().Str("key", job.Key).Logger()
	var report IngestionReport

	log.Debug().Msg("Downloading roster from S3")
	reader, err := w.storage.Download(ctx, job.Key)
	if err != nil {
		log.Error().Err(err).Msg("Failed to download roster")
		return report, err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read roster data")
		return report, err
	}

	log.Debug().Msg("Parsing roster workbook")
	rows, err := w.parser.Parse(ctx, data)
	if err != nil {
		log.Error().Err(err).Msg("Failed to parse roster")
		return report, err
	}
	report.Rows = len(rows)

	log.Debug().Int("row_count", len(rows)).Msg("Validating roster rows")
	if err := w.parser.Validate(ctx, rows); err != nil {
		log.Error().Err(err).Msg("Roster validation failed")
		return report, err
	}

	now := time.Now()
	for _, row := range rows {
		student := model.NewStudent(uuid.NewString(), row, now)
		if err := w.repo.CreateStudent(ctx, &student); err != nil {
			if stderrors.Is(err, errors.ErrDuplicateStudent) {
				log.Warn().Str("handle", row.Handle).Msg("Student already tracked, skipping")
				report.Duplicates++
				continue
			}
			log.Error().Err(err).Str("handle", row.Handle).Msg("Failed to create student")
			return report, err
		}
		report.Created++

		if _, err := w.syncs.RequestStudentSync(ctx, student.ID); err != nil {
			log.Warn().Err(err).Str("student_id", student.ID).Msg("Failed to enqueue initial sync")
		}
	}

	log.Info().
		Int("rows", report.Rows).
		Int("created", report.Created).
		Int("duplicates", report.Duplicates).
		Msg("Roster processed successfully")
	return report, nil
}
