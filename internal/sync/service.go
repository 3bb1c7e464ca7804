package sync

import (
	"context"
	"fmt"
	"time"

	"student-progress-sync/internal/clock"
	"student-progress-sync/internal/config"
	"student-progress-sync/internal/logger"
	"student-progress-sync/internal/model"
	"student-progress-sync/internal/reminder"
	"student-progress-sync/internal/stats"
	"student-progress-sync/pkg/errors"

	"github.com/rs/zerolog"
)

// ProfileFetcher is the remote side of a sync. *codeforces.Client satisfies it.
type ProfileFetcher interface {
	FetchUserInfo(ctx context.Context, handle string) (*model.UserInfo, error)
	FetchRatingHistory(ctx context.Context, handle string) ([]model.Contest, error)
	FetchSubmissions(ctx context.Context, handle string, from, count int) ([]model.Submission, error)
	FetchContestStandings(ctx context.Context, contestID int, handle string) model.Standings
}

// ResultSink persists what a bulk run produces.
type ResultSink interface {
	SaveSyncResult(ctx context.Context, result *model.SyncResult) error
	SaveReminderCount(ctx context.Context, studentID string, count int) error
}

type Service struct {
	cfg       *config.Config
	fetcher   ProfileFetcher
	reminders *reminder.Dispatcher
	clock     clock.Clock
	loc       *time.Location
	log       zerolog.Logger
}

func NewService(cfg *config.Config, fetcher ProfileFetcher, reminders *reminder.Dispatcher, clk clock.Clock) *Service {
	return &Service{
		cfg:       cfg,
		fetcher:   fetcher,
		reminders: reminders,
		clock:     clk,
		loc:       cfg.Location(),
		log:       logger.Get().With().Str("component", "sync").Logger(),
	}
}

// SyncStudent fetches the student's profile, rating history and submissions,
// derives statistics and enriches every contest with standings. Any failure of
// the three mandatory fetches yields a SyncFailure and no result; the input is
// never modified.
func (s *Service) SyncStudent(ctx context.Context, student model.Student) (*model.SyncResult, error) {
	log := s.log.With().
		Str("student_id", student.ID).
		Str("handle", student.Handle).
		Logger()

	log.Info().Msg("Syncing student")
	start := time.Now()

	info, err := s.fetcher.FetchUserInfo(ctx, student.Handle)
	if err != nil {
		return nil, s.fail(log, student, "fetch user info", err)
	}

	contests, err := s.fetcher.FetchRatingHistory(ctx, student.Handle)
	if err != nil {
		return nil, s.fail(log, student, "fetch rating history", err)
	}

	submissions, err := s.fetcher.FetchSubmissions(ctx, student.Handle, 1, s.cfg.Codeforces.SubmissionsMax)
	if err != nil {
		return nil, s.fail(log, student, "fetch submissions", err)
	}

	now := s.clock.Now().In(s.loc)
	problemStats := stats.Compute(submissions, now)

	enriched := s.enrichContests(ctx, contests, student.Handle)
	if err := ctx.Err(); err != nil {
		return nil, s.fail(log, student, "enrich contests", err)
	}

	updated := student
	if info.Rating != nil {
		updated.CurrentRating = *info.Rating
	}
	if info.MaxRating != nil {
		updated.MaxRating = *info.MaxRating
	}
	updated.LastUpdated = now
	if last := stats.LastSubmission(submissions); last != nil {
		updated.LastSubmissionDate = last
	} else if student.LastSubmissionDate != nil {
		prev := *student.LastSubmissionDate
		updated.LastSubmissionDate = &prev
	}
	updated.TotalUnsolvedProblems = stats.TotalUnsolved(enriched)

	log.Info().
		Int("contests", len(enriched)).
		Int("submissions", len(submissions)).
		Int("total_solved", problemStats.TotalSolved).
		Int("total_unsolved", updated.TotalUnsolvedProblems).
		Dur("duration", time.Since(start)).
		Msg("Student synced")

	return &model.SyncResult{
		Student:      updated,
		Contests:     enriched,
		ProblemStats: problemStats,
	}, nil
}

// enrichContests looks standings up one contest at a time; every call goes
// through the client's shared queue anyway.
func (s *Service) enrichContests(ctx context.Context, contests []model.Contest, handle string) []model.Contest {
	enriched := make([]model.Contest, 0, len(contests))
	for _, c := range contests {
		standings := s.fetcher.FetchContestStandings(ctx, c.ContestID, handle)
		enriched = append(enriched, stats.EnrichContest(c, standings))
	}
	return enriched
}

func (s *Service) fail(log zerolog.Logger, student model.Student, step string, err error) error {
	log.Error().Err(err).Str("step", step).Msg("Student sync failed")
	return errors.SyncFailure{StudentID: student.ID, Err: fmt.Errorf("%s: %w", step, err)}
}

// BulkSync syncs every active student in order, pausing between students,
// then sends reminders over the refreshed collection. One student's failure
// never stops the others.
func (s *Service) BulkSync(ctx context.Context, students []model.Student, sink ResultSink) model.BulkSyncReport {
	start := time.Now()

	current := make([]model.Student, len(students))
	copy(current, students)

	var active []int
	for i, st := range current {
		if st.IsActive {
			active = append(active, i)
		}
	}

	report := model.BulkSyncReport{Requested: len(active)}
	if len(active) == 0 {
		s.log.Warn().Msg("No active students to sync")
	} else {
		s.log.Info().Int("students", len(active)).Msg("Starting bulk sync")
	}

	for n, i := range active {
		if ctx.Err() != nil {
			report.Failed = append(report.Failed, current[i].ID)
			continue
		}
		if n > 0 {
			s.clock.Sleep(s.cfg.Sync.StudentDelay)
		}

		result, err := s.SyncStudent(ctx, current[i])
		if err != nil {
			report.Failed = append(report.Failed, current[i].ID)
			continue
		}
		if err := sink.SaveSyncResult(ctx, result); err != nil {
			s.log.Error().Err(err).Str("student_id", current[i].ID).Msg("Failed to save sync result")
			report.Failed = append(report.Failed, current[i].ID)
			continue
		}
		current[i] = result.Student
		report.Synced++
	}

	if s.reminders != nil {
		dispatched := s.reminders.Run(ctx, current)
		for _, st := range dispatched.Sent {
			if err := sink.SaveReminderCount(ctx, st.ID, st.ReminderCount); err != nil {
				s.log.Error().Err(err).Str("student_id", st.ID).Msg("Failed to save reminder count")
				continue
			}
			report.RemindersSent++
		}
	}

	report.Duration = time.Since(start)
	s.log.Info().
		Int("requested", report.Requested).
		Int("synced", report.Synced).
		Int("failed", len(report.Failed)).
		Int("reminders_sent", report.RemindersSent).
		Dur("duration", report.Duration).
		Msg("Bulk sync completed")

	return report
}
