package model

import "time"

type Frequency string

const (
	FrequencyDaily      Frequency = "daily"
	FrequencyEvery2Days Frequency = "every2days"
	FrequencyWeekly     Frequency = "weekly"
)

// SyncSettings is the process-wide scheduler configuration. NextRun is nil
// whenever Enabled is false.
type SyncSettings struct {
	Enabled   bool       `json:"enabled"`
	Time      string     `json:"time"`
	Frequency Frequency  `json:"frequency"`
	LastRun   *time.Time `json:"lastRun,omitempty"`
	NextRun   *time.Time `json:"nextRun,omitempty"`
}

// IngestionJob points the ingestion worker at an uploaded roster workbook.
type IngestionJob struct {
	Key        string    `json:"key"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// RosterRow is one parsed line of a roster workbook.
type RosterRow struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
	Handle string `json:"handle"`
}

// NewStudent builds a freshly added student: active, reminders on, and every
// derived field zeroed until the first sync.
func NewStudent(id string, row RosterRow, now time.Time) Student {
	return Student{
		ID:              id,
		Name:            row.Name,
		Email:           row.Email,
		Phone:           row.Phone,
		Handle:          row.Handle,
		LastUpdated:     now,
		IsActive:        true,
		ReminderEnabled: true,
	}
}
