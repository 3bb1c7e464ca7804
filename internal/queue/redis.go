package queue

import (
	"context"
	"fmt"
	"time"

	"student-progress-sync/internal/config"

	"github.com/go-redis/redis/v8"
)

type RedisClient struct {
	client *redis.Client
	cfg    *config.Config
}

func NewRedisClient(cfg *config.Config) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisClient{
		client: rdb,
		cfg:    cfg,
	}, nil
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}

func (r *RedisClient) Client() *redis.Client {
	return r.client
}

// Depth reports the pending and dead-lettered message counts of a queue.
func (r *RedisClient) Depth(ctx context.Context, queueName string) (pending, dead int64, err error) {
	pipe := r.client.Pipeline()
	p := pipe.LLen(ctx, queueName)
	d := pipe.LLen(ctx, queueName+r.cfg.Redis.DLQSuffix)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}
	return p.Val(), d.Val(), nil
}

// ReplayDeadLetters moves up to limit messages from the queue's DLQ back onto
// the queue, oldest first. limit <= 0 replays everything.
func (r *RedisClient) ReplayDeadLetters(ctx context.Context, queueName string, limit int) (int, error) {
	dlqName := queueName + r.cfg.Redis.DLQSuffix

	moved := 0
	for limit <= 0 || moved < limit {
		err := r.client.RPopLPush(ctx, dlqName, queueName).Err()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}
