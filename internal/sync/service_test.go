package sync

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"student-progress-sync/internal/clock"
	"student-progress-sync/internal/config"
	"student-progress-sync/internal/model"
	"student-progress-sync/internal/reminder"
	"student-progress-sync/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

type profile struct {
	info        *model.UserInfo
	contests    []model.Contest
	submissions []model.Submission
	standings   map[int]model.Standings
	infoErr     error
	ratingErr   error
	subsErr     error
}

type fakeFetcher struct {
	profiles map[string]*profile
	calls    []string
}

func (f *fakeFetcher) FetchUserInfo(ctx context.Context, handle string) (*model.UserInfo, error) {
	f.calls = append(f.calls, "info:"+handle)
	p := f.profiles[handle]
	if p.infoErr != nil {
		return nil, p.infoErr
	}
	return p.info, nil
}

func (f *fakeFetcher) FetchRatingHistory(ctx context.Context, handle string) ([]model.Contest, error) {
	f.calls = append(f.calls, "rating:"+handle)
	p := f.profiles[handle]
	if p.ratingErr != nil {
		return nil, p.ratingErr
	}
	out := make([]model.Contest, len(p.contests))
	copy(out, p.contests)
	return out, nil
}

func (f *fakeFetcher) FetchSubmissions(ctx context.Context, handle string, from, count int) ([]model.Submission, error) {
	f.calls = append(f.calls, fmt.Sprintf("status:%s:%d:%d", handle, from, count))
	p := f.profiles[handle]
	if p.subsErr != nil {
		return nil, p.subsErr
	}
	return p.submissions, nil
}

func (f *fakeFetcher) FetchContestStandings(ctx context.Context, contestID int, handle string) model.Standings {
	f.calls = append(f.calls, fmt.Sprintf("standings:%d", contestID))
	return f.profiles[handle].standings[contestID]
}

type fakeSink struct {
	results   []*model.SyncResult
	reminders map[string]int
	failFor   string
}

func (s *fakeSink) SaveSyncResult(ctx context.Context, r *model.SyncResult) error {
	if r.Student.ID == s.failFor {
		return fmt.Errorf("db down")
	}
	s.results = append(s.results, r)
	return nil
}

func (s *fakeSink) SaveReminderCount(ctx context.Context, id string, count int) error {
	if s.reminders == nil {
		s.reminders = map[string]int{}
	}
	s.reminders[id] = count
	return nil
}

func newTestService(t *testing.T, f *fakeFetcher, d *reminder.Dispatcher) (*Service, *clock.Mock) {
	t.Helper()
	cfg, err := config.Parse([]byte("scheduler:\n  timezone: UTC\n"))
	require.NoError(t, err)
	spy := clock.NewMock(now)
	return NewService(cfg, f, d, spy), spy
}

func aliceProfile() *profile {
	return &profile{
		info: &model.UserInfo{Handle: "alice", Rating: intPtr(1620), MaxRating: intPtr(1700)},
		contests: []model.Contest{
			{ID: "100-0", ContestID: 100, Rank: 50, OldRating: 1500, NewRating: 1580, RatingChange: 80},
			{ID: "200-1", ContestID: 200, Rank: 75, OldRating: 1580, NewRating: 1620, RatingChange: 40},
			{ID: "300-2", ContestID: 300, Rank: 90, OldRating: 1620, NewRating: 1600, RatingChange: -20},
		},
		submissions: []model.Submission{
			{CreationTimeSeconds: now.Add(-2 * time.Hour).Unix(), Problem: model.Problem{ContestID: 300, Index: "A", Rating: intPtr(1200)}, Verdict: "OK"},
			{CreationTimeSeconds: now.Add(-3 * time.Hour).Unix(), Problem: model.Problem{ContestID: 300, Index: "B"}, Verdict: "WRONG_ANSWER"},
			{CreationTimeSeconds: now.AddDate(0, 0, -3).Unix(), Problem: model.Problem{ContestID: 300, Index: "A", Rating: intPtr(1200)}, Verdict: "OK"},
		},
		standings: map[int]model.Standings{
			100: {Rank: 48, ProblemsSolved: 3, TotalProblems: 6},
			// 200 missing: the client degraded it to zero standings
			300: {Rank: 91, ProblemsSolved: 2, TotalProblems: 5},
		},
	}
}

func TestSyncStudentMergesProfile(t *testing.T) {
	f := &fakeFetcher{profiles: map[string]*profile{"alice": aliceProfile()}}
	svc, _ := newTestService(t, f, nil)

	input := model.Student{ID: "s1", Handle: "alice", CurrentRating: 1500, MaxRating: 1550, IsActive: true}
	result, err := svc.SyncStudent(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"info:alice", "rating:alice", "status:alice:1:10000",
		"standings:100", "standings:200", "standings:300",
	}, f.calls)

	st := result.Student
	assert.Equal(t, 1620, st.CurrentRating)
	assert.Equal(t, 1700, st.MaxRating)
	assert.Equal(t, now, st.LastUpdated)
	require.NotNil(t, st.LastSubmissionDate)
	assert.Equal(t, now.Add(-2*time.Hour).Unix(), st.LastSubmissionDate.Unix())
	assert.Equal(t, 3+0+3, st.TotalUnsolvedProblems)

	require.Len(t, result.Contests, 3)
	assert.Equal(t, 48, result.Contests[0].Rank)
	assert.Equal(t, 3, result.Contests[0].UnsolvedProblems)
	assert.Equal(t, 75, result.Contests[1].Rank)
	assert.Equal(t, 0, result.Contests[1].UnsolvedProblems)
	assert.Equal(t, 40, result.Contests[1].RatingChange)
	assert.Equal(t, 3, result.Contests[2].UnsolvedProblems)

	assert.Equal(t, 1, result.ProblemStats.TotalSolved)
	assert.Len(t, result.ProblemStats.DailyActivity, 365)
}

func TestSyncStudentKeepsRatingsWhenUnrated(t *testing.T) {
	p := aliceProfile()
	p.info = &model.UserInfo{Handle: "alice"}
	p.submissions = nil
	f := &fakeFetcher{profiles: map[string]*profile{"alice": p}}
	svc, _ := newTestService(t, f, nil)

	last := now.AddDate(0, 0, -20)
	input := model.Student{ID: "s1", Handle: "alice", CurrentRating: 1400, MaxRating: 1450, LastSubmissionDate: &last}
	result, err := svc.SyncStudent(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, 1400, result.Student.CurrentRating)
	assert.Equal(t, 1450, result.Student.MaxRating)
	require.NotNil(t, result.Student.LastSubmissionDate)
	assert.Equal(t, last, *result.Student.LastSubmissionDate)
}

func TestSyncStudentWithoutSubmissionsLeavesDateUnset(t *testing.T) {
	p := aliceProfile()
	p.submissions = nil
	f := &fakeFetcher{profiles: map[string]*profile{"alice": p}}
	svc, _ := newTestService(t, f, nil)

	result, err := svc.SyncStudent(context.Background(), model.Student{ID: "s1", Handle: "alice"})
	require.NoError(t, err)
	assert.Nil(t, result.Student.LastSubmissionDate)
}

func TestMandatoryFailureAbortsWithoutMutation(t *testing.T) {
	cases := map[string]func(p *profile){
		"user info":      func(p *profile) { p.infoErr = fmt.Errorf("%w: alice", errors.ErrInvalidHandle) },
		"rating history": func(p *profile) { p.ratingErr = errors.NewRetryableError(errors.ErrUpstreamUnavailable, "down") },
		"submissions":    func(p *profile) { p.subsErr = errors.UpstreamRejectedError{Message: "Call limit exceeded"} },
	}

	for name, breakIt := range cases {
		t.Run(name, func(t *testing.T) {
			p := aliceProfile()
			breakIt(p)
			f := &fakeFetcher{profiles: map[string]*profile{"alice": p}}
			svc, _ := newTestService(t, f, nil)

			last := now.AddDate(0, 0, -2)
			input := model.Student{ID: "s1", Handle: "alice", CurrentRating: 1500, LastSubmissionDate: &last, TotalUnsolvedProblems: 4}
			snapshot := input
			snapshotLast := *input.LastSubmissionDate

			result, err := svc.SyncStudent(context.Background(), input)
			assert.Nil(t, result)

			var failure errors.SyncFailure
			require.True(t, stderrors.As(err, &failure))
			assert.Equal(t, "s1", failure.StudentID)
			assert.Equal(t, snapshot, input)
			assert.Equal(t, snapshotLast, *input.LastSubmissionDate)
		})
	}
}

func TestInvalidHandleSurfacesThroughSyncFailure(t *testing.T) {
	p := aliceProfile()
	p.infoErr = errors.ErrInvalidHandle
	f := &fakeFetcher{profiles: map[string]*profile{"alice": p}}
	svc, _ := newTestService(t, f, nil)

	_, err := svc.SyncStudent(context.Background(), model.Student{ID: "s1", Handle: "alice"})
	assert.True(t, stderrors.Is(err, errors.ErrInvalidHandle))
	assert.Equal(t, []string{"info:alice"}, f.calls)
}

func TestBulkSyncContinuesPastFailures(t *testing.T) {
	broken := aliceProfile()
	broken.infoErr = errors.ErrInvalidHandle
	stale := aliceProfile()
	stale.submissions = []model.Submission{
		{CreationTimeSeconds: now.AddDate(0, 0, -10).Unix(), Problem: model.Problem{ContestID: 1, Index: "A"}, Verdict: "OK"},
	}

	f := &fakeFetcher{profiles: map[string]*profile{
		"alice": aliceProfile(),
		"bob":   broken,
		"carol": stale,
	}}
	dispatcher := reminder.NewDispatcher(reminder.NewPolicy(7), reminder.NewLogNotifier(1000), clock.NewMock(now))
	svc, spy := newTestService(t, f, dispatcher)

	students := []model.Student{
		{ID: "a", Handle: "alice", Email: "a@x.io", IsActive: true, ReminderEnabled: true},
		{ID: "b", Handle: "bob", IsActive: true},
		{ID: "i", Handle: "idle", IsActive: false},
		{ID: "c", Handle: "carol", Email: "c@x.io", IsActive: true, ReminderEnabled: true, ReminderCount: 1},
	}
	sink := &fakeSink{}

	report := svc.BulkSync(context.Background(), students, sink)

	assert.Equal(t, 3, report.Requested)
	assert.Equal(t, 2, report.Synced)
	assert.Equal(t, []string{"b"}, report.Failed)
	require.Len(t, sink.results, 2)
	assert.Equal(t, "a", sink.results[0].Student.ID)
	assert.Equal(t, "c", sink.results[1].Student.ID)

	// one pause between each pair of active students
	delays := 0
	for _, d := range spy.Sleeps() {
		if d == time.Second {
			delays++
		}
	}
	assert.Equal(t, 2, delays)

	assert.Equal(t, 1, report.RemindersSent)
	assert.Equal(t, map[string]int{"c": 2}, sink.reminders)
	assert.Nil(t, students[0].LastSubmissionDate)
}

func TestBulkSyncCountsPersistenceFailure(t *testing.T) {
	f := &fakeFetcher{profiles: map[string]*profile{"alice": aliceProfile()}}
	svc, _ := newTestService(t, f, nil)

	report := svc.BulkSync(context.Background(),
		[]model.Student{{ID: "a", Handle: "alice", IsActive: true}},
		&fakeSink{failFor: "a"})

	assert.Equal(t, 0, report.Synced)
	assert.Equal(t, []string{"a"}, report.Failed)
}
