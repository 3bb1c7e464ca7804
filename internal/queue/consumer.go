package queue

import (
	"context"
	"time"

	"student-progress-sync/internal/config"
	"student-progress-sync/internal/logger"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

const (
	popTimeout   = 5 * time.Second
	errorBackoff = time.Second
)

type Consumer struct {
	client *redis.Client
	cfg    *config.Config
	log    zerolog.Logger
}

type MessageHandler func(ctx context.Context, data []byte) error

func NewConsumer(redisClient *RedisClient, cfg *config.Config) *Consumer {
	return &Consumer{
		client: redisClient.Client(),
		cfg:    cfg,
		log:    logger.Get().With().Str("component", "consumer").Logger(),
	}
}

func (c *Consumer) ConsumeRosterQueue(ctx context.Context, handler MessageHandler) error {
	return c.consume(ctx, c.cfg.Redis.RosterQueue, handler)
}

func (c *Consumer) ConsumeSyncQueue(ctx context.Context, handler MessageHandler) error {
	return c.consume(ctx, c.cfg.Redis.SyncQueue, handler)
}

// consume pops messages until ctx is cancelled. A message whose handler
// fails is moved to the queue's DLQ, from where ReplayDeadLetters can
// return it.
func (c *Consumer) consume(ctx context.Context, queueName string, handler MessageHandler) error {
	log := c.log.With().Str("queue", queueName).Logger()
	log.Info().Msg("Consuming queue")

	for ctx.Err() == nil {
		message, ok, err := c.pop(ctx, queueName)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Error().Err(err).Msg("Failed to consume message")
			time.Sleep(errorBackoff)
			continue
		}
		if !ok {
			continue
		}

		if err := handler(ctx, message); err != nil {
			log.Error().Err(err).Msg("Failed to process message")
			c.deadLetter(queueName, message)
		}
	}

	log.Info().Msg("Stopped consuming queue")
	return ctx.Err()
}

// pop waits up to popTimeout for one message; ok is false on timeout.
func (c *Consumer) pop(ctx context.Context, queueName string) ([]byte, bool, error) {
	result, err := c.client.BRPop(ctx, popTimeout, queueName).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(result) < 2 {
		return nil, false, nil
	}
	return []byte(result[1]), true, nil
}

// deadLetter uses a fresh context so a message is not lost when it fails
// because of shutdown.
func (c *Consumer) deadLetter(queueName string, message []byte) {
	dlqName := queueName + c.cfg.Redis.DLQSuffix
	ctx, cancel := context.WithTimeout(context.Background(), popTimeout)
	defer cancel()

	if err := c.client.LPush(ctx, dlqName, message).Err(); err != nil {
		c.log.Error().Err(err).Str("dlq", dlqName).Msg("Failed to move message to DLQ")
	}
}
