// Package reminder decides which students are inactive and sends them a
// reminder. The UI flag and the reminder selection share one rule.
package reminder

import (
	"time"

	"student-progress-sync/internal/model"
)

const day = 24 * time.Hour

type Policy struct {
	thresholdDays int
}

func NewPolicy(thresholdDays int) Policy {
	if thresholdDays <= 0 {
		thresholdDays = 7
	}
	return Policy{thresholdDays: thresholdDays}
}

// DaysSinceLastSubmission is the elapsed wall-clock time in whole days,
// truncated. ok is false when the student has never been synced.
func DaysSinceLastSubmission(s model.Student, now time.Time) (days int, ok bool) {
	if s.LastSubmissionDate == nil {
		return 0, false
	}
	return int(now.Sub(*s.LastSubmissionDate) / day), true
}

// IsInactive flags a student for the dashboard regardless of reminder settings.
func (p Policy) IsInactive(s model.Student, now time.Time) bool {
	days, ok := DaysSinceLastSubmission(s, now)
	return ok && days >= p.thresholdDays
}

// FindCandidates returns copies of the students eligible for a reminder. The
// input slice is not modified.
func (p Policy) FindCandidates(students []model.Student, now time.Time) []model.Student {
	var out []model.Student
	for _, s := range students {
		if s.ReminderEnabled && p.IsInactive(s, now) {
			out = append(out, s)
		}
	}
	return out
}
