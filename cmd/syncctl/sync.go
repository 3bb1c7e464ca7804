package main

import (
	"fmt"

	"student-progress-sync/internal/clock"
	"student-progress-sync/internal/codeforces"
	"student-progress-sync/internal/queue"
	"student-progress-sync/internal/sync"

	"github.com/spf13/cobra"
)

var syncQueued bool

var syncCmd = &cobra.Command{
	Use:   "sync <student-id>",
	Short: "Sync one student now, or queue the sync with --queue",
	Args:  cobra.ExactArgs(1),
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
		student, err := repo.GetStudent(ctx, args[0])
		if err != nil {
			return err
		}

		if syncQueued {
			redisClient, err := queue.NewRedisClient(cfg)
			if err != nil {
				return err
			}
			defer redisClient.Close()

			traceID, err := queue.NewProducer(redisClient, cfg).RequestStudentSync(ctx, student.ID)
			if err != nil {
				return err
			}
			fmt.Printf("📨 Queued sync for %s (trace %s)\n", student.Handle, traceID)
			return nil
		}

		client := codeforces.NewClient(cfg, clock.Real{})
		defer client.Close()

		result, err := sync.NewService(cfg, client, nil, clock.Real{}).SyncStudent(ctx, *student)
		if err != nil {
			return err
		}
		if err := repo.SaveSyncResult(ctx, result); err != nil {
			return err
		}

		st := result.Student
		fmt.Printf("✅ %s synced: rating %d (max %d), %d contests, %d solved, %d unsolved\n",
			st.Handle, st.CurrentRating, st.MaxRating, len(result.Contests),
			result.ProblemStats.TotalSolved, st.TotalUnsolvedProblems)
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncQueued, "queue", false, "enqueue for the sync worker instead of running here")
	rootCmd.AddCommand(syncCmd)
}
