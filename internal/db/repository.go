package db

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"student-progress-sync/internal/model"
	"student-progress-sync/pkg/errors"

	"github.com/go-sql-driver/mysql"
)

const mysqlDuplicateEntry = 1062

// Repository is the key-value persistence boundary: every record is keyed by
// student id and written wholesale.
type Repository interface {
	ListStudents(ctx context.Context) ([]model.Student, error)
	GetStudent(ctx context.Context, id string) (*model.Student, error)
	CreateStudent(ctx context.Context, student *model.Student) error
	DeleteStudent(ctx context.Context, id string) error
	SaveSyncResult(ctx context.Context, result *model.SyncResult) error
	SaveReminderCount(ctx context.Context, studentID string, count int) error
	GetContests(ctx context.Context, studentID string) ([]model.Contest, error)
	GetProblemStats(ctx context.Context, studentID string) (*model.ProblemStats, error)
	GetSyncSettings(ctx context.Context) (*model.SyncSettings, error)
	SaveSyncSettings(ctx context.Context, settings model.SyncSettings) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const studentColumns = `id, name, email, phone, codeforces_handle, current_rating, max_rating,
	last_updated, last_submission_date, is_active, reminder_enabled, reminder_count, total_unsolved_problems`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStudent(row rowScanner) (*model.Student, error) {
	var s model.Student
	var lastSubmission sql.NullTime
	err := row.Scan(&s.ID, &s.Name, &s.Email, &s.Phone, &s.Handle,
		&s.CurrentRating, &s.MaxRating, &s.LastUpdated, &lastSubmission,
		&s.IsActive, &s.ReminderEnabled, &s.ReminderCount, &s.TotalUnsolvedProblems)
	if err != nil {
		return nil, err
	}
	if lastSubmission.Valid {
		t := lastSubmission.Time
		s.LastSubmissionDate = &t
	}
	return &s, nil
}

func (r *repository) ListStudents(ctx context.Context) ([]model.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []model.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, *s)
	}

	return students, rows.Err()
}

func (r *repository) GetStudent(ctx context.Context, id string) (*model.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE id = ?`

	s, err := scanStudent(r.db.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrStudentNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *repository) CreateStudent(ctx context.Context, s *model.Student) error {
	query := `INSERT INTO students (` + studentColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query, s.ID, s.Name, s.Email, s.Phone, s.Handle,
		s.CurrentRating, s.MaxRating, s.LastUpdated, nullTime(s.LastSubmissionDate),
		s.IsActive, s.ReminderEnabled, s.ReminderCount, s.TotalUnsolvedProblems)

	var myErr *mysql.MySQLError
	if stderrors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return fmt.Errorf("%w: %s", errors.ErrDuplicateStudent, s.Handle)
	}
	return err
}

// DeleteStudent removes the student; contests and stats go with it through
// the foreign keys.
func (r *repository) DeleteStudent(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.ErrStudentNotFound
	}
	return nil
}

// SaveSyncResult replaces the student's derived fields, contests and stats in
// one transaction so a reader never sees a half-applied sync.
func (r *repository) SaveSyncResult(ctx context.Context, result *model.SyncResult) error {
	distribution, err := json.Marshal(result.ProblemStats.DifficultyDistribution)
	if err != nil {
		return fmt.Errorf("failed to encode difficulty distribution: %w", err)
	}
	activity, err := json.Marshal(result.ProblemStats.DailyActivity)
	if err != nil {
		return fmt.Errorf("failed to encode daily activity: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	s := result.Student
	res, err := tx.ExecContext(ctx, `UPDATE students SET current_rating = ?, max_rating = ?, last_updated = ?,
			  last_submission_date = ?, total_unsolved_problems = ? WHERE id = ?`,
		s.CurrentRating, s.MaxRating, s.LastUpdated, nullTime(s.LastSubmissionDate),
		s.TotalUnsolvedProblems, s.ID)
	if err != nil {
		return err
	}
	// RowsAffected is 0 for an unchanged row, so existence is checked separately
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM students WHERE id = ?`, s.ID).Scan(&exists); err != nil {
			if stderrors.Is(err, sql.ErrNoRows) {
				return errors.ErrStudentNotFound
			}
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM contests WHERE student_id = ?`, s.ID); err != nil {
		return err
	}

	insertContest := `INSERT INTO contests (student_id, id, contest_id, contest_name, handle, contest_rank,
			  old_rating, new_rating, rating_change, rating_update_time, problems_solved, total_problems, unsolved_problems)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for _, c := range result.Contests {
		_, err := tx.ExecContext(ctx, insertContest, s.ID, c.ID, c.ContestID, c.ContestName, c.Handle,
			c.Rank, c.OldRating, c.NewRating, c.RatingChange, c.RatingUpdateTimeSeconds,
			c.ProblemsSolved, c.TotalProblems, c.UnsolvedProblems)
		if err != nil {
			return err
		}
	}

	ps := result.ProblemStats
	_, err = tx.ExecContext(ctx, `INSERT INTO problem_stats (student_id, total_solved, average_rating, max_rating,
			  average_per_day, difficulty_distribution, daily_activity, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE total_solved = VALUES(total_solved), average_rating = VALUES(average_rating),
			  max_rating = VALUES(max_rating), average_per_day = VALUES(average_per_day),
			  difficulty_distribution = VALUES(difficulty_distribution), daily_activity = VALUES(daily_activity),
			  updated_at = VALUES(updated_at)`,
		s.ID, ps.TotalSolved, ps.AverageRating, ps.MaxRating, ps.AveragePerDay,
		distribution, activity, s.LastUpdated)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (r *repository) SaveReminderCount(ctx context.Context, studentID string, count int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE students SET reminder_count = ? WHERE id = ?`, count, studentID)
	return err
}

func (r *repository) GetContests(ctx context.Context, studentID string) ([]model.Contest, error) {
	query := `SELECT id, contest_id, contest_name, handle, contest_rank, old_rating, new_rating, rating_change,
			  rating_update_time, problems_solved, total_problems, unsolved_problems
			  FROM contests WHERE student_id = ? ORDER BY rating_update_time`

	rows, err := r.db.QueryContext(ctx, query, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contests []model.Contest
	for rows.Next() {
		var c model.Contest
		err := rows.Scan(&c.ID, &c.ContestID, &c.ContestName, &c.Handle, &c.Rank,
			&c.OldRating, &c.NewRating, &c.RatingChange, &c.RatingUpdateTimeSeconds,
			&c.ProblemsSolved, &c.TotalProblems, &c.UnsolvedProblems)
		if err != nil {
			return nil, err
		}
		contests = append(contests, c)
	}

	return contests, rows.Err()
}

// GetProblemStats returns nil without error for a student never synced.
func (r *repository) GetProblemStats(ctx context.Context, studentID string) (*model.ProblemStats, error) {
	query := `SELECT total_solved, average_rating, max_rating, average_per_day, difficulty_distribution, daily_activity
			  FROM problem_stats WHERE student_id = ?`

	var ps model.ProblemStats
	var distribution, activity []byte
	err := r.db.QueryRowContext(ctx, query, studentID).Scan(
		&ps.TotalSolved, &ps.AverageRating, &ps.MaxRating, &ps.AveragePerDay, &distribution, &activity)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(distribution, &ps.DifficultyDistribution); err != nil {
		return nil, fmt.Errorf("failed to decode difficulty distribution: %w", err)
	}
	if err := json.Unmarshal(activity, &ps.DailyActivity); err != nil {
		return nil, fmt.Errorf("failed to decode daily activity: %w", err)
	}

	return &ps, nil
}

// GetSyncSettings returns nil without error until settings are first saved.
func (r *repository) GetSyncSettings(ctx context.Context) (*model.SyncSettings, error) {
	query := `SELECT enabled, run_time, frequency, last_run, next_run FROM sync_settings WHERE id = 1`

	var settings model.SyncSettings
	var frequency string
	var lastRun, nextRun sql.NullTime
	err := r.db.QueryRowContext(ctx, query).Scan(&settings.Enabled, &settings.Time, &frequency, &lastRun, &nextRun)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	settings.Frequency = model.Frequency(frequency)
	settings.LastRun = timePtr(lastRun)
	settings.NextRun = timePtr(nextRun)
	return &settings, nil
}

func (r *repository) SaveSyncSettings(ctx context.Context, s model.SyncSettings) error {
	query := `INSERT INTO sync_settings (id, enabled, run_time, frequency, last_run, next_run)
			  VALUES (1, ?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE enabled = VALUES(enabled), run_time = VALUES(run_time),
			  frequency = VALUES(frequency), last_run = VALUES(last_run), next_run = VALUES(next_run)`

	_, err := r.db.ExecContext(ctx, query, s.Enabled, s.Time, string(s.Frequency),
		nullTime(s.LastRun), nullTime(s.NextRun))
	return err
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
