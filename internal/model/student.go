package model

import "time"

// Student is the tracked record. TotalUnsolvedProblems and LastSubmissionDate
// are projections recomputed wholesale on every successful sync and are stale
// between syncs.
type Student struct {
	ID                    string     `json:"id" db:"id"`
	Name                  string     `json:"name" db:"name"`
	Email                 string     `json:"email" db:"email"`
	Phone                 string     `json:"phone" db:"phone"`
	Handle                string     `json:"codeforcesHandle" db:"codeforces_handle"`
	CurrentRating         int        `json:"currentRating" db:"current_rating"`
	MaxRating             int        `json:"maxRating" db:"max_rating"`
	LastUpdated           time.Time  `json:"lastUpdated" db:"last_updated"`
	LastSubmissionDate    *time.Time `json:"lastSubmissionDate,omitempty" db:"last_submission_date"`
	IsActive              bool       `json:"isActive" db:"is_active"`
	ReminderEnabled       bool       `json:"reminderEnabled" db:"reminder_enabled"`
	ReminderCount         int        `json:"reminderCount" db:"reminder_count"`
	TotalUnsolvedProblems int        `json:"totalUnsolvedProblems" db:"total_unsolved_problems"`
}

// Contest is one rated participation of a student, enriched with standings.
type Contest struct {
	ID                      string `json:"id"`
	ContestID               int    `json:"contestId"`
	ContestName             string `json:"contestName"`
	Handle                  string `json:"handle"`
	Rank                    int    `json:"rank"`
	OldRating               int    `json:"oldRating"`
	NewRating               int    `json:"newRating"`
	RatingChange            int    `json:"ratingChange"`
	RatingUpdateTimeSeconds int64  `json:"ratingUpdateTimeSeconds"`
	ProblemsSolved          int    `json:"problemsSolved"`
	TotalProblems           int    `json:"totalProblems"`
	UnsolvedProblems        int    `json:"unsolvedProblems"`
}

// Standings is the per-contest result for one handle. The zero value is what
// a failed lookup degrades to.
type Standings struct {
	Rank           int `json:"rank"`
	ProblemsSolved int `json:"problemsSolved"`
	TotalProblems  int `json:"totalProblems"`
}

type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type ProblemStats struct {
	TotalSolved            int            `json:"totalSolved"`
	AverageRating          int            `json:"averageRating"`
	MaxRating              int            `json:"maxRating"`
	AveragePerDay          float64        `json:"averagePerDay"`
	DifficultyDistribution map[string]int `json:"difficultyDistribution"`
	DailyActivity          []DailyCount   `json:"dailyActivity"`
}

// SyncResult is everything one successful student sync produces.
type SyncResult struct {
	Student      Student      `json:"updatedStudent"`
	Contests     []Contest    `json:"contests"`
	ProblemStats ProblemStats `json:"problemStats"`
}
