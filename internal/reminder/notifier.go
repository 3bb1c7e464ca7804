package reminder

import (
	"context"
	"fmt"
	"time"

	"student-progress-sync/internal/clock"
	"student-progress-sync/internal/logger"
	"student-progress-sync/internal/model"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type Notifier interface {
	Send(ctx context.Context, student model.Student) error
}

// LogNotifier stands in for an email provider: it only logs the reminder.
type LogNotifier struct {
	limiter *rate.Limiter
	log     zerolog.Logger
}

func NewLogNotifier(sendsPerSecond float64) *LogNotifier {
	return &LogNotifier{
		limiter: rate.NewLimiter(rate.Limit(sendsPerSecond), 1),
		log:     logger.Get().With().Str("component", "reminder").Logger(),
	}
}

func (n *LogNotifier) Send(ctx context.Context, student model.Student) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}
	if student.Email == "" {
		return fmt.Errorf("student %s has no email address", student.ID)
	}

	n.log.Info().
		Str("student_id", student.ID).
		Str("email", student.Email).
		Str("name", student.Name).
		Msg("Reminder email sent")
	return nil
}

type Dispatcher struct {
	policy   Policy
	notifier Notifier
	clock    clock.Clock
	log      zerolog.Logger
}

type DispatchResult struct {
	// Sent holds the reminded students with ReminderCount already incremented.
	Sent   []model.Student
	Failed []string
}

func NewDispatcher(policy Policy, notifier Notifier, clk clock.Clock) *Dispatcher {
	return &Dispatcher{
		policy:   policy,
		notifier: notifier,
		clock:    clk,
		log:      logger.Get().With().Str("component", "reminder").Logger(),
	}
}

// Run reminds every candidate in students. A failed send is logged and
// leaves that student untouched.
func (d *Dispatcher) Run(ctx context.Context, students []model.Student) DispatchResult {
	now := d.clock.Now()
	candidates := d.policy.FindCandidates(students, now)

	var result DispatchResult
	if len(candidates) == 0 {
		return result
	}

	start := time.Now()
	d.log.Info().Int("candidates", len(candidates)).Msg("Sending reminders to inactive students")

	for _, s := range candidates {
		if err := d.notifier.Send(ctx, s); err != nil {
			d.log.Warn().Err(err).Str("student_id", s.ID).Msg("Failed to send reminder")
			result.Failed = append(result.Failed, s.ID)
			continue
		}
		s.ReminderCount++
		result.Sent = append(result.Sent, s)
	}

	d.log.Info().
		Int("sent", len(result.Sent)).
		Int("failed", len(result.Failed)).
		Dur("duration", time.Since(start)).
		Msg("Reminder pass completed")
	return result
}
