package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"student-progress-sync/internal/reminder"

	"github.com/spf13/cobra"
)

var candidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "List students who would get an inactivity reminder",
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

		students, err := repo.ListStudents(cmd.Context())
		if err != nil {
			return err
		}

		now := time.Now()
		candidates := reminder.NewPolicy(cfg.Reminders.InactivityDays).FindCandidates(students, now)
		if len(candidates) == 0 {
			fmt.Println("✅ Everyone submitted recently.")
			return nil
		}

		fmt.Printf("🔔 %d students inactive for %d+ days:\n\n", len(candidates), cfg.Reminders.InactivityDays)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tName\tHandle\tLast Submission\tDays\tReminders")
		fmt.Fprintln(w, "--\t----\t------\t---------------\t----\t---------")
		for _, s := range candidates {
			days, _ := reminder.DaysSinceLastSubmission(s, now)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
				s.ID, s.Name, s.Handle, s.LastSubmissionDate.Format("2006-01-02"), days, s.ReminderCount)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(candidatesCmd)
}
