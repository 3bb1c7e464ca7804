package main

import (
	"fmt"

	"student-progress-sync/internal/queue"

	"github.com/spf13/cobra"
)

var replayLimit int

var replayCmd = &cobra.Command{
	Use:       "replay <sync|roster>",
	Short:     "Move dead-lettered jobs back onto their queue",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"sync", "roster"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		name := cfg.Redis.SyncQueue
		if args[0] == "roster" {
			name = cfg.Redis.RosterQueue
		}

		redisClient, err := queue.NewRedisClient(cfg)
		if err != nil {
			return err
		}
		defer redisClient.Close()

		moved, err := redisClient.ReplayDeadLetters(cmd.Context(), name, replayLimit)
		if err != nil {
			return fmt.Errorf("replayed %d before failing: %w", moved, err)
		}
		fmt.Printf("🔁 Replayed %d jobs onto %s\n", moved, name)
		return nil
	},
}

func init() {
	replayCmd.Flags().IntVar(&replayLimit, "max", 0, "replay at most this many jobs (0 = all)")
	rootCmd.AddCommand(replayCmd)
}
