package main

import (
	"database/sql"
	"fmt"
	"os"

	"student-progress-sync/internal/config"
	"student-progress-sync/internal/db"
	"student-progress-sync/internal/logger"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "syncctl",
	Short: "Operate the student progress sync pipeline",
	Long: `syncctl inspects and drives the Codeforces sync pipeline: run or queue
student and bulk syncs, list reminder candidates and show the schedule.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("❌", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log pipeline activity to stderr")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	level := "warn"
	if verbose {
		level = "debug"
	}
	logger.Init(level, "console")
	logger.Named("syncctl")
	return cfg, nil
}

func openRepository(cfg *config.Config) (db.Repository, *sql.DB, error) {
	conn, err := db.NewConnection(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database error: %w", err)
	}
	return db.NewRepository(conn), conn, nil
}
