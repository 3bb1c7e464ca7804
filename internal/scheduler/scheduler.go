// Package scheduler arms a single timer for the next bulk sync and emits a
// sync-requested event each time it fires.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"student-progress-sync/internal/clock"
	"student-progress-sync/internal/config"
	"student-progress-sync/internal/logger"
	"student-progress-sync/internal/model"
	"student-progress-sync/pkg/errors"

	"github.com/rs/zerolog"
)

type State int

const (
	Stopped State = iota
	Armed
	Firing
)

func (s State) String() string {
	switch s {
	case Armed:
		return "armed"
	case Firing:
		return "firing"
	default:
		return "stopped"
	}
}

const timeLayout = "15:04"

type SettingsStore interface {
	SaveSyncSettings(ctx context.Context, settings model.SyncSettings) error
}

// Emitter receives the scheduler's only outbound notification.
type Emitter interface {
	PublishSyncRequested(ctx context.Context, event model.SyncRequestedEvent) error
}

type Scheduler struct {
	mu       sync.Mutex
	settings model.SyncSettings
	state    State
	timer    clock.Timer
	// gen invalidates timer callbacks and in-flight firings that a
	// reconfiguration has superseded.
	gen uint64
	ctx context.Context

	store   SettingsStore
	emitter Emitter
	clock   clock.Clock
	loc     *time.Location
	log     zerolog.Logger
}

func New(settings model.SyncSettings, store SettingsStore, emitter Emitter, clk clock.Clock, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		settings: settings,
		state:    Stopped,
		ctx:      context.Background(),
		store:    store,
		emitter:  emitter,
		clock:    clk,
		loc:      loc,
		log:      logger.Get().With().Str("component", "scheduler").Logger(),
	}
}

// DefaultSettings builds the settings used when none have been persisted.
func DefaultSettings(cfg *config.Config) model.SyncSettings {
	freq, err := ParseFrequency(cfg.Scheduler.Frequency)
	if err != nil {
		freq = model.FrequencyDaily
	}
	return model.SyncSettings{
		Enabled:   cfg.Scheduler.Enabled,
		Time:      cfg.Scheduler.Time,
		Frequency: freq,
	}
}

// Start recomputes the next run from the current settings and arms the timer
// when enabled. ctx bounds the persistence and emit calls made by firings.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.teardownLocked()
	s.settings.NextRun = s.computeNextRunLocked()
	if s.settings.Enabled {
		s.armLocked()
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.log.Info().
		Bool("enabled", snapshot.Enabled).
		Str("time", snapshot.Time).
		Str("frequency", string(snapshot.Frequency)).
		Interface("next_run", snapshot.NextRun).
		Msg("Scheduler started")

	return s.persist(ctx, snapshot)
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
	s.log.Info().Msg("Scheduler stopped")
}

// UpdateSettings merges the provided fields, tears down any pending timer and
// re-arms only if the result is enabled.
func (s *Scheduler) UpdateSettings(ctx context.Context, req model.UpdateSettingsRequest) (model.SyncSettings, error) {
	var freq model.Frequency
	if req.Frequency != nil {
		f, err := ParseFrequency(*req.Frequency)
		if err != nil {
			return model.SyncSettings{}, err
		}
		freq = f
	}
	if req.Time != nil {
		if _, err := time.Parse(timeLayout, *req.Time); err != nil {
			return model.SyncSettings{}, errors.ValidationError{
				Field:   "time",
				Value:   *req.Time,
				Message: "must be HH:MM",
			}
		}
	}

	s.mu.Lock()
	s.teardownLocked()
	if req.Enabled != nil {
		s.settings.Enabled = *req.Enabled
	}
	if req.Time != nil {
		s.settings.Time = *req.Time
	}
	if req.Frequency != nil {
		s.settings.Frequency = freq
	}
	s.settings.NextRun = s.computeNextRunLocked()
	if s.settings.Enabled {
		s.armLocked()
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.log.Info().
		Bool("enabled", snapshot.Enabled).
		Str("time", snapshot.Time).
		Str("frequency", string(snapshot.Frequency)).
		Interface("next_run", snapshot.NextRun).
		Msg("Sync settings updated")

	if err := s.persist(ctx, snapshot); err != nil {
		return snapshot, err
	}
	return snapshot, nil
}

// TriggerNow fires immediately and reschedules afterwards, as if the timer
// had expired.
func (s *Scheduler) TriggerNow(ctx context.Context) error {
	s.mu.Lock()
	s.teardownLocked()
	return s.fireLocked(ctx, s.gen, true)
}

func (s *Scheduler) Settings() model.SyncSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// TimeUntilNextRun renders the countdown shown next to the settings.
func (s *Scheduler) TimeUntilNextRun() string {
	s.mu.Lock()
	enabled, next := s.settings.Enabled, s.settings.NextRun
	s.mu.Unlock()

	if !enabled || next == nil {
		return "Disabled"
	}
	return FormatCountdown(next.Sub(s.clock.Now()))
}

func FormatCountdown(diff time.Duration) string {
	if diff <= 0 {
		return "Running soon..."
	}
	hours := int(diff / time.Hour)
	minutes := int((diff % time.Hour) / time.Minute)
	if hours > 24 {
		return fmt.Sprintf("%dd %dh", hours/24, hours%24)
	}
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

// NextRun returns today's hh:mm in loc, rolled forward by one frequency step
// when that moment is not after now.
func NextRun(now time.Time, hhmm string, freq model.Frequency, loc *time.Location) (time.Time, error) {
	at, err := time.Parse(timeLayout, hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", hhmm, err)
	}
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), at.Hour(), at.Minute(), 0, 0, loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, stepDays(freq))
	}
	return next, nil
}

func stepDays(freq model.Frequency) int {
	switch freq {
	case model.FrequencyEvery2Days:
		return 2
	case model.FrequencyWeekly:
		return 7
	default:
		return 1
	}
}

// ParseFrequency accepts the canonical names plus the hyphenated every-2-days.
func ParseFrequency(v string) (model.Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "daily":
		return model.FrequencyDaily, nil
	case "every2days", "every-2-days":
		return model.FrequencyEvery2Days, nil
	case "weekly":
		return model.FrequencyWeekly, nil
	}
	return "", errors.ValidationError{
		Field:   "frequency",
		Value:   v,
		Message: "must be daily, every2days or weekly",
	}
}

func (s *Scheduler) computeNextRunLocked() *time.Time {
	if !s.settings.Enabled {
		return nil
	}
	next, err := NextRun(s.clock.Now(), s.settings.Time, s.settings.Frequency, s.loc)
	if err != nil {
		s.log.Error().Err(err).Msg("Cannot compute next run, scheduler stays stopped")
		s.settings.Enabled = false
		return nil
	}
	return &next
}

// teardownLocked cancels the pending timer and supersedes any firing that is
// still emitting.
func (s *Scheduler) teardownLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	s.state = Stopped
}

func (s *Scheduler) armLocked() {
	if s.settings.NextRun == nil {
		s.state = Stopped
		return
	}
	delay := s.settings.NextRun.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}
	gen := s.gen
	s.timer = s.clock.AfterFunc(delay, func() { s.onTimer(gen) })
	s.state = Armed

	s.log.Info().Time("next_run", *s.settings.NextRun).Dur("in", delay).Msg("Sync scheduled")
}

func (s *Scheduler) onTimer(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.state != Armed {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	_ = s.fireLocked(s.ctx, gen, false)
}

// fireLocked runs with s.mu held and releases it before persisting and
// emitting, then re-arms unless a reconfiguration happened meanwhile.
func (s *Scheduler) fireLocked(ctx context.Context, gen uint64, manual bool) error {
	s.state = Firing
	now := s.clock.Now()
	s.settings.LastRun = &now
	s.settings.NextRun = s.computeNextRunLocked()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.log.Info().Bool("manual", manual).Msg("Executing scheduled data sync")

	if err := s.persist(ctx, snapshot); err != nil {
		s.log.Error().Err(err).Msg("Failed to persist sync settings")
	}

	var emitErr error
	if s.emitter != nil {
		emitErr = s.emitter.PublishSyncRequested(ctx, model.SyncRequestedEvent{Timestamp: now, Manual: manual})
		if emitErr != nil {
			s.log.Error().Err(emitErr).Msg("Failed to emit sync request")
		}
	}

	s.mu.Lock()
	if s.gen == gen && s.state == Firing {
		if s.settings.Enabled {
			s.armLocked()
		} else {
			s.state = Stopped
		}
	}
	s.mu.Unlock()

	return emitErr
}

func (s *Scheduler) snapshotLocked() model.SyncSettings {
	out := s.settings
	if s.settings.LastRun != nil {
		t := *s.settings.LastRun
		out.LastRun = &t
	}
	if s.settings.NextRun != nil {
		t := *s.settings.NextRun
		out.NextRun = &t
	}
	return out
}

func (s *Scheduler) persist(ctx context.Context, settings model.SyncSettings) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.SaveSyncSettings(ctx, settings); err != nil {
		return fmt.Errorf("failed to save sync settings: %w", err)
	}
	return nil
}
