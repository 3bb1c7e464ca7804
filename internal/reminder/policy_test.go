package reminder

import (
	"context"
	"fmt"
	"testing"
	"time"

	"student-progress-sync/internal/clock"
	"student-progress-sync/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

func at(t time.Time) *time.Time { return &t }

func student(id string, enabled bool, last *time.Time) model.Student {
	return model.Student{ID: id, Name: id, Email: id + "@example.com", ReminderEnabled: enabled, LastSubmissionDate: last}
}

func TestFindCandidatesBoundary(t *testing.T) {
	p := NewPolicy(7)

	exactly := student("exact", true, at(now.Add(-7*24*time.Hour)))
	almost := student("almost", true, at(now.Add(-(6*24+23)*time.Hour)))

	got := p.FindCandidates([]model.Student{exactly, almost}, now)
	require.Len(t, got, 1)
	assert.Equal(t, "exact", got[0].ID)
}

func TestFindCandidatesRequiresReminderAndHistory(t *testing.T) {
	p := NewPolicy(7)
	old := at(now.AddDate(0, 0, -30))

	students := []model.Student{
		student("disabled", false, old),
		student("never-synced", true, nil),
		student("eligible", true, old),
		student("recent", true, at(now.Add(-time.Hour))),
	}

	got := p.FindCandidates(students, now)
	require.Len(t, got, 1)
	assert.Equal(t, "eligible", got[0].ID)
}

func TestFindCandidatesDoesNotMutateInput(t *testing.T) {
	p := NewPolicy(7)
	students := []model.Student{student("a", true, at(now.AddDate(0, 0, -10)))}
	before := students[0]

	got := p.FindCandidates(students, now)
	got[0].ReminderCount = 99

	assert.Equal(t, before, students[0])
}

func TestIsInactiveAgreesWithCandidates(t *testing.T) {
	p := NewPolicy(7)
	offsets := []time.Duration{
		0,
		6 * 24 * time.Hour,
		(6*24 + 23) * time.Hour,
		7*24*time.Hour - time.Second,
		7 * 24 * time.Hour,
		7*24*time.Hour + time.Second,
		8 * 24 * time.Hour,
		90 * 24 * time.Hour,
	}

	for _, off := range offsets {
		s := student("s", true, at(now.Add(-off)))
		inactive := p.IsInactive(s, now)
		candidate := len(p.FindCandidates([]model.Student{s}, now)) == 1
		assert.Equal(t, inactive, candidate, "offset %v", off)
		assert.Equal(t, off >= 7*24*time.Hour, inactive, "offset %v", off)
	}
}

func TestIsInactiveIgnoresReminderSetting(t *testing.T) {
	p := NewPolicy(7)
	s := student("s", false, at(now.AddDate(0, 0, -8)))

	assert.True(t, p.IsInactive(s, now))
	assert.Empty(t, p.FindCandidates([]model.Student{s}, now))
	assert.False(t, p.IsInactive(student("n", true, nil), now))
}

type fakeNotifier struct {
	fail map[string]bool
	sent []string
}

func (f *fakeNotifier) Send(ctx context.Context, s model.Student) error {
	if f.fail[s.ID] {
		return fmt.Errorf("smtp down")
	}
	f.sent = append(f.sent, s.ID)
	return nil
}

func TestDispatcherCountsOnlySuccessfulSends(t *testing.T) {
	old := at(now.AddDate(0, 0, -14))
	students := []model.Student{
		student("ok", true, old),
		student("broken", true, old),
		student("active", true, at(now)),
	}
	students[0].ReminderCount = 2
	students[1].ReminderCount = 5

	notifier := &fakeNotifier{fail: map[string]bool{"broken": true}}
	d := NewDispatcher(NewPolicy(7), notifier, clock.NewMock(now))

	result := d.Run(context.Background(), students)

	require.Len(t, result.Sent, 1)
	assert.Equal(t, "ok", result.Sent[0].ID)
	assert.Equal(t, 3, result.Sent[0].ReminderCount)
	assert.Equal(t, []string{"broken"}, result.Failed)
	assert.Equal(t, 2, students[0].ReminderCount)
	assert.Equal(t, 5, students[1].ReminderCount)
}

func TestLogNotifierRejectsMissingEmail(t *testing.T) {
	n := NewLogNotifier(1000)

	assert.NoError(t, n.Send(context.Background(), student("a", true, nil)))
	assert.Error(t, n.Send(context.Background(), model.Student{ID: "b"}))
}
