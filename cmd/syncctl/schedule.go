package main

import (
	"fmt"
	"time"

	"student-progress-sync/internal/queue"
	"student-progress-sync/internal/scheduler"

	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Show the persisted sync schedule and queue depths",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		repo, conn, err := openRepository(cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx := cmd.Context()
		settings, err := repo.GetSyncSettings(ctx)
		if err != nil {
			return err
		}
		if settings == nil {
			defaults := scheduler.DefaultSettings(cfg)
			settings = &defaults
			fmt.Println("ℹ️  No schedule saved yet, showing defaults")
		}

		fmt.Printf("Enabled:    %t\n", settings.Enabled)
		fmt.Printf("Time:       %s (%s)\n", settings.Time, cfg.Location())
		fmt.Printf("Frequency:  %s\n", settings.Frequency)
		if settings.LastRun != nil {
			fmt.Printf("Last run:   %s\n", settings.LastRun.In(cfg.Location()).Format(time.DateTime))
		}
		switch {
		case !settings.Enabled || settings.NextRun == nil:
			fmt.Println("Next run:   Disabled")
		default:
			fmt.Printf("Next run:   %s (in %s)\n",
				settings.NextRun.In(cfg.Location()).Format(time.DateTime),
				scheduler.FormatCountdown(time.Until(*settings.NextRun)))
		}

		redisClient, err := queue.NewRedisClient(cfg)
		if err != nil {
			fmt.Println("⚠️  Redis unavailable:", err)
			return nil
		}
		defer redisClient.Close()

		for _, name := range []string{cfg.Redis.SyncQueue, cfg.Redis.RosterQueue} {
			pending, dead, err := redisClient.Depth(ctx, name)
			if err != nil {
				return err
			}
			fmt.Printf("Queue %-14s pending=%d dead=%d\n", name, pending, dead)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}
