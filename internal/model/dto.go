package model

import "time"

type SyncJobKind string

const (
	SyncJobStudent SyncJobKind = "student"
	SyncJobBulk    SyncJobKind = "bulk"
)

// SyncJob travels over the sync queue. Bulk jobs are what the scheduler
// emits; student jobs come from the API and roster ingestion.
type SyncJob struct {
	Kind        SyncJobKind `json:"kind"`
	StudentID   string      `json:"student_id,omitempty"`
	TraceID     string      `json:"trace_id"`
	RequestedAt time.Time   `json:"requested_at"`
}

// SyncRequestedEvent is the scheduler's single outbound notification.
type SyncRequestedEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Manual    bool      `json:"manual"`
}

type AddStudentRequest struct {
	Name            string `json:"name" binding:"required"`
	Email           string `json:"email" binding:"required"`
	Phone           string `json:"phone"`
	Handle          string `json:"codeforcesHandle" binding:"required"`
	ReminderEnabled *bool  `json:"reminderEnabled"`
}

type UpdateSettingsRequest struct {
	Enabled   *bool   `json:"enabled"`
	Time      *string `json:"time"`
	Frequency *string `json:"frequency"`
}

type StudentView struct {
	Student
	Inactive bool `json:"inactive"`
}

type BulkSyncReport struct {
	Requested     int           `json:"requested"`
	Synced        int           `json:"synced"`
	Failed        []string      `json:"failed,omitempty"`
	RemindersSent int           `json:"reminders_sent"`
	Duration      time.Duration `json:"duration"`
}
