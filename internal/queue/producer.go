package queue

import (
	"context"
	"encoding/json"
	"time"

	"student-progress-sync/internal/config"
	"student-progress-sync/internal/logger"
	"student-progress-sync/internal/model"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Producer struct {
	client *redis.Client
	cfg    *config.Config
	log    zerolog.Logger
}

func NewProducer(redisClient *RedisClient, cfg *config.Config) *Producer {
	return &Producer{
		client: redisClient.Client(),
		cfg:    cfg,
		log:    logger.Get().With().Str("component", "producer").Logger(),
	}
}

func (p *Producer) EnqueueIngestionJob(ctx context.Context, job model.IngestionJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	return p.client.LPush(ctx, p.cfg.Redis.RosterQueue, data).Err()
}

func (p *Producer) EnqueueSyncJob(ctx context.Context, job model.SyncJob) error {
	if job.TraceID == "" {
		job.TraceID = uuid.NewString()
	}
	if job.RequestedAt.IsZero() {
		job.RequestedAt = time.Now()
	}

	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	if err := p.client.LPush(ctx, p.cfg.Redis.SyncQueue, data).Err(); err != nil {
		return err
	}

	p.log.Debug().
		Str("kind", string(job.Kind)).
		Str("student_id", job.StudentID).
		Str("trace_id", job.TraceID).
		Msg("Sync job enqueued")
	return nil
}

// RequestStudentSync queues a single-student sync.
func (p *Producer) RequestStudentSync(ctx context.Context, studentID string) (string, error) {
	job := model.SyncJob{Kind: model.SyncJobStudent, StudentID: studentID, TraceID: uuid.NewString()}
	return job.TraceID, p.EnqueueSyncJob(ctx, job)
}

// PublishSyncRequested turns a scheduler event into a bulk sync job.
func (p *Producer) PublishSyncRequested(ctx context.Context, event model.SyncRequestedEvent) error {
	return p.EnqueueSyncJob(ctx, model.SyncJob{
		Kind:        model.SyncJobBulk,
		TraceID:     uuid.NewString(),
		RequestedAt: event.Timestamp,
	})
}
