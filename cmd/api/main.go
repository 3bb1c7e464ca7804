package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"student-progress-sync/internal/api"
	"student-progress-sync/internal/clock"
	"student-progress-sync/internal/config"
	"student-progress-sync/internal/db"
	"student-progress-sync/internal/logger"
	"student-progress-sync/internal/queue"
	"student-progress-sync/internal/scheduler"
	"student-progress-sync/internal/storage"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Named("api")
	log := logger.Get()

	log.Info().Str("version", cfg.App.Version).Msg("Starting API server")

	if err := db.Migrate(cfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

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

	producer := queue.NewProducer(redisClient, cfg)

	s3Storage, err := storage.NewS3Storage(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize S3 storage")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The API process owns the only scheduler; workers never run one.
	settings := scheduler.DefaultSettings(cfg)
	if saved, err := repo.GetSyncSettings(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to load sync settings")
	} else if saved != nil {
		settings = *saved
	}

	sched := scheduler.New(settings, repo, producer, clock.Real{}, cfg.Location())
	if err := sched.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to persist initial sync settings")
	}
	defer sched.Stop()

	handler := api.NewHandler(repo, producer, sched, s3Storage, clock.Real{}, cfg)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(api.RecoveryMiddleware())
	router.Use(api.CORSMiddleware())
	router.Use(api.LoggingMiddleware())

	api.SetupRoutes(router, handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
