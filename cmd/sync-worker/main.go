package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"student-progress-sync/internal/clock"
	"student-progress-sync/internal/codeforces"
	"student-progress-sync/internal/config"
	"student-progress-sync/internal/db"
	"student-progress-sync/internal/logger"
	"student-progress-sync/internal/queue"
	"student-progress-sync/internal/reminder"
	"student-progress-sync/internal/sync"
	"student-progress-sync/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Named("sync-worker")
	log := logger.Get()

	log.Info().Str("version", cfg.App.Version).Msg("Starting sync worker")

	database, err := db.NewConnection(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	repo := db.NewRepository(database)

	redisClient, err := queue.NewRedisClient(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	// One client per process: its request queue spaces every upstream call.
	client := codeforces.NewClient(cfg, clock.Real{})
	defer client.Close()

	dispatcher := reminder.NewDispatcher(
		reminder.NewPolicy(cfg.Reminders.InactivityDays),
		reminder.NewLogNotifier(cfg.Reminders.SendsPerSecond),
		clock.Real{},
	)
	syncService := sync.NewService(cfg, client, dispatcher, clock.Real{})

	syncWorker := worker.NewSyncWorker(cfg, repo, syncService, redisClient)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := syncWorker.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Fatal().Err(err).Msg("Sync worker failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down sync worker...")

	cancel()
	syncWorker.Stop()

	log.Info().Msg("Sync worker exited")
}
