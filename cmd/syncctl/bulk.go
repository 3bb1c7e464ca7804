package main

import (
	"fmt"
	"time"

	"student-progress-sync/internal/clock"
	"student-progress-sync/internal/codeforces"
	"student-progress-sync/internal/model"
	"student-progress-sync/internal/queue"
	"student-progress-sync/internal/reminder"
	"student-progress-sync/internal/sync"

	"github.com/spf13/cobra"
)

var bulkLocal bool

var bulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Request a bulk sync of every active student",
	Long: `Queues a bulk sync job for the sync worker. With --local the bulk sync and
the reminder pass run in this process instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		if !bulkLocal {
			redisClient, err := queue.NewRedisClient(cfg)
			if err != nil {
				return err
			}
			defer redisClient.Close()

			event := model.SyncRequestedEvent{Timestamp: time.Now(), Manual: true}
			if err := queue.NewProducer(redisClient, cfg).PublishSyncRequested(ctx, event); err != nil {
				return err
			}
			fmt.Println("📨 Bulk sync queued")
			return nil
		}

		repo, conn, err := openRepository(cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		students, err := repo.ListStudents(ctx)
		if err != nil {
			return err
		}

		client := codeforces.NewClient(cfg, clock.Real{})
		defer client.Close()

		dispatcher := reminder.NewDispatcher(
			reminder.NewPolicy(cfg.Reminders.InactivityDays),
			reminder.NewLogNotifier(cfg.Reminders.SendsPerSecond),
			clock.Real{},
		)
		report := sync.NewService(cfg, client, dispatcher, clock.Real{}).BulkSync(ctx, students, repo)

		fmt.Printf("✅ Synced %d/%d active students in %s, %d reminders sent\n",
			report.Synced, report.Requested, report.Duration.Round(time.Second), report.RemindersSent)
		for _, id := range report.Failed {
			fmt.Println("⚠️  failed:", id)
		}
		return nil
	},
}

func init() {
	bulkCmd.Flags().BoolVar(&bulkLocal, "local", false, "run the bulk sync in this process")
	rootCmd.AddCommand(bulkCmd)
}
