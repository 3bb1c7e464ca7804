package api

import (
	"context"
	stderrors "errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"student-progress-sync/internal/clock"
	"student-progress-sync/internal/config"
	"student-progress-sync/internal/excel"
	"student-progress-sync/internal/logger"
	"student-progress-sync/internal/model"
	"student-progress-sync/internal/reminder"
	"student-progress-sync/internal/scheduler"
	"student-progress-sync/internal/storage"
	"student-progress-sync/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxRosterSize = 10 << 20

// Store is the part of db.Repository the API reads and writes.
type Store interface {
	ListStudents(ctx context.Context) ([]model.Student, error)
	GetStudent(ctx context.Context, id string) (*model.Student, error)
	CreateStudent(ctx context.Context, student *model.Student) error
	DeleteStudent(ctx context.Context, id string) error
	GetContests(ctx context.Context, studentID string) ([]model.Contest, error)
	GetProblemStats(ctx context.Context, studentID string) (*model.ProblemStats, error)
}

type JobQueue interface {
	RequestStudentSync(ctx context.Context, studentID string) (string, error)
	EnqueueIngestionJob(ctx context.Context, job model.IngestionJob) error
}

type Handler struct {
	repo      Store
	jobs      JobQueue
	scheduler *scheduler.Scheduler
	storage   storage.Storage
	policy    reminder.Policy
	validator *excel.Validator
	clock     clock.Clock
	cfg       *config.Config
	log       zerolog.Logger
}

func NewHandler(
	repo Store,
	jobs JobQueue,
	sched *scheduler.Scheduler,
	store storage.Storage,
	clk clock.Clock,
	cfg *config.Config,
) *Handler {
	return &Handler{
		repo:      repo,
		jobs:      jobs,
		scheduler: sched,
		storage:   store,
		policy:    reminder.NewPolicy(cfg.Reminders.InactivityDays),
		validator: excel.NewValidator(),
		clock:     clk,
		cfg:       cfg,
		log:       logger.Get(),
	}
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   h.cfg.App.Name,
		"version":   h.cfg.App.Version,
		"scheduler": h.scheduler.State().String(),
	})
}

func (h *Handler) ListStudents(c *gin.Context) {
	students, err := h.repo.ListStudents(c.Request.Context())
	if err != nil {
		h.fail(c, err, "Failed to list students")
		return
	}

	now := h.clock.Now()
	views := make([]model.StudentView, 0, len(students))
	for _, s := range students {
		views = append(views, model.StudentView{Student: s, Inactive: h.policy.IsInactive(s, now)})
	}
	c.JSON(http.StatusOK, views)
}

func (h *Handler) GetStudent(c *gin.Context) {
	s, err := h.repo.GetStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "Failed to get student")
		return
	}
	c.JSON(http.StatusOK, model.StudentView{Student: *s, Inactive: h.policy.IsInactive(*s, h.clock.Now())})
}

// AddStudent creates the student with zeroed derived fields and queues its
// first sync.
func (h *Handler) AddStudent(c *gin.Context) {
	var req model.AddStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	row := model.RosterRow{
		Name:   strings.TrimSpace(req.Name),
		Email:  strings.TrimSpace(req.Email),
		Phone:  strings.TrimSpace(req.Phone),
		Handle: strings.TrimSpace(req.Handle),
	}
	if err := h.validator.ValidateRow(row); err != nil {
		h.fail(c, err, "Invalid student")
		return
	}

	student := model.NewStudent(uuid.NewString(), row, h.clock.Now())
	if req.ReminderEnabled != nil {
		student.ReminderEnabled = *req.ReminderEnabled
	}

	if err := h.repo.CreateStudent(c.Request.Context(), &student); err != nil {
		h.fail(c, err, "Failed to create student")
		return
	}

	traceID, err := h.jobs.RequestStudentSync(c.Request.Context(), student.ID)
	if err != nil {
		h.log.Warn().Err(err).Str("student_id", student.ID).Msg("Failed to enqueue initial sync")
	}

	h.log.Info().Str("student_id", student.ID).Str("handle", student.Handle).Msg("Student added")
	c.JSON(http.StatusCreated, gin.H{
		"student":  student,
		"trace_id": traceID,
	})
}

func (h *Handler) DeleteStudent(c *gin.Context) {
	if err := h.repo.DeleteStudent(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err, "Failed to delete student")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) SyncStudent(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.repo.GetStudent(c.Request.Context(), id); err != nil {
		h.fail(c, err, "Failed to get student")
		return
	}

	traceID, err := h.jobs.RequestStudentSync(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "Failed to enqueue sync job")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message":  "Sync job queued successfully",
		"trace_id": traceID,
	})
}

// GetContests accepts an optional days filter over the rating update time.
func (h *Handler) GetContests(c *gin.Context) {
	var since time.Time
	if v := c.Query("days"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
			return
		}
		since = h.clock.Now().AddDate(0, 0, -days)
	}

	contests, err := h.repo.GetContests(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "Failed to get contests")
		return
	}

	out := make([]model.Contest, 0, len(contests))
	for _, ct := range contests {
		if !since.IsZero() && time.Unix(ct.RatingUpdateTimeSeconds, 0).Before(since) {
			continue
		}
		out = append(out, ct)
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) GetProblemStats(c *gin.Context) {
	ps, err := h.repo.GetProblemStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "Failed to get problem stats")
		return
	}
	if ps == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Student has not been synced yet"})
		return
	}
	c.JSON(http.StatusOK, ps)
}

func (h *Handler) GetSyncSettings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"settings":         h.scheduler.Settings(),
		"state":            h.scheduler.State().String(),
		"timeUntilNextRun": h.scheduler.TimeUntilNextRun(),
	})
}

func (h *Handler) UpdateSyncSettings(c *gin.Context) {
	var req model.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	settings, err := h.scheduler.UpdateSettings(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err, "Failed to update sync settings")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"settings":         settings,
		"timeUntilNextRun": h.scheduler.TimeUntilNextRun(),
	})
}

// TriggerSync fires the scheduler by hand; it reschedules afterwards.
func (h *Handler) TriggerSync(c *gin.Context) {
	if err := h.scheduler.TriggerNow(c.Request.Context()); err != nil {
		h.fail(c, err, "Failed to trigger sync")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message":  "Bulk sync queued successfully",
		"settings": h.scheduler.Settings(),
	})
}

func (h *Handler) ReminderCandidates(c *gin.Context) {
	students, err := h.repo.ListStudents(c.Request.Context())
	if err != nil {
		h.fail(c, err, "Failed to list students")
		return
	}

	candidates := h.policy.FindCandidates(students, h.clock.Now())
	if candidates == nil {
		candidates = []model.Student{}
	}
	c.JSON(http.StatusOK, candidates)
}

// UploadRoster stores the workbook and hands it to the ingestion worker.
func (h *Handler) UploadRoster(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing file"})
		return
	}
	if !strings.EqualFold(filepath.Ext(file.Filename), ".xlsx") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Roster must be an .xlsx workbook"})
		return
	}
	if file.Size > maxRosterSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Roster file too large"})
		return
	}

	src, err := file.Open()
	if err != nil {
		h.fail(c, err, "Failed to open upload")
		return
	}
	defer src.Close()

	now := h.clock.Now()
	key := storage.RosterKey(now, file.Filename)
	if err := h.storage.Upload(c.Request.Context(), key, src); err != nil {
		h.fail(c, err, "Failed to store roster")
		return
	}

	if err := h.jobs.EnqueueIngestionJob(c.Request.Context(), model.IngestionJob{Key: key, UploadedAt: now}); err != nil {
		h.fail(c, err, "Failed to queue roster ingestion")
		return
	}

	h.log.Info().Str("key", key).Int64("size", file.Size).Msg("Roster uploaded")
	c.JSON(http.StatusAccepted, gin.H{
		"message": "Roster queued for ingestion",
		"key":     key,
	})
}

func (h *Handler) fail(c *gin.Context, err error, msg string) {
	var verr errors.ValidationError
	switch {
	case stderrors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
	case stderrors.Is(err, errors.ErrStudentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Student not found"})
	case stderrors.Is(err, errors.ErrDuplicateStudent):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg(msg)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
