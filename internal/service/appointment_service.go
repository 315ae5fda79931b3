package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tutorconnect/tutorconnect-api/internal/dto"
	"github.com/tutorconnect/tutorconnect-api/internal/models"
	"github.com/tutorconnect/tutorconnect-api/internal/repository"
	appErrors "github.com/tutorconnect/tutorconnect-api/pkg/errors"
	"github.com/tutorconnect/tutorconnect-api/pkg/events"
	"github.com/tutorconnect/tutorconnect-api/pkg/jobs"
)

// ReminderJobType identifies completion reminder jobs.
const ReminderJobType = "appointment.reminder"

type appointmentRepository interface {
	Create(ctx context.Context, appt *models.Appointment) error
	FindByID(ctx context.Context, id string) (*models.Appointment, error)
	List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error)
	Accept(ctx context.Context, id string, now time.Time) (*models.Appointment, error)
	Cancel(ctx context.Context, id, reason string, now time.Time) (*models.Appointment, error)
	SweepExpired(ctx context.Context, chatID string, now time.Time) ([]models.Appointment, error)
	ClaimReminder(ctx context.Context, id string, now time.Time) (bool, error)
	ReminderTargets(ctx context.Context, id string) ([]models.ReminderTarget, error)
	SetReady(ctx context.Context, id, userID string, ready bool, now time.Time) (*models.ReadinessResult, error)
}

type appointmentChatReader interface {
	participantChecker
	FindByID(ctx context.Context, id string) (*models.Chat, error)
	Participants(ctx context.Context, chatID string) ([]models.ChatParticipant, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// AppointmentService drives the appointment lifecycle.
type AppointmentService struct {
	repo      appointmentRepository
	chats     appointmentChatReader
	posts     postReader
	reminders jobEnqueuer
	publisher events.Publisher
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// AppointmentServiceDeps groups the collaborators of AppointmentService.
type AppointmentServiceDeps struct {
	Repo      appointmentRepository
	Chats     appointmentChatReader
	Posts     postReader
	Reminders jobEnqueuer
	Publisher events.Publisher
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
}

// NewAppointmentService constructs the service.
func NewAppointmentService(deps AppointmentServiceDeps) *AppointmentService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NopPublisher{}
	}
	return &AppointmentService{
		repo:      deps.Repo,
		chats:     deps.Chats,
		posts:     deps.Posts,
		reminders: deps.Reminders,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		validator: deps.Validator,
		logger:    deps.Logger,
		now:       time.Now,
	}
}

// Create proposes an appointment in a chat. Roles come from the chat's post unless teacher_id
// names one of the participants explicitly.
func (s *AppointmentService) Create(ctx context.Context, userID, chatID string, req dto.CreateAppointmentRequest) (*models.Appointment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid appointment payload")
	}
	if err := ensureParticipant(ctx, s.chats, chatID, userID); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if !req.DateTime.After(now) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "appointment must be scheduled in the future")
	}

	teacherID, studentID, err := s.resolveRoles(ctx, chatID, req.TeacherID)
	if err != nil {
		return nil, err
	}

	appt := &models.Appointment{
		ChatID:     chatID,
		ProposedBy: userID,
		TeacherID:  teacherID,
		StudentID:  studentID,
		DateTime:   req.DateTime.UTC(),
		Duration:   req.Duration,
		Location:   strings.TrimSpace(req.Location),
		Notes:      req.Notes,
		Status:     models.AppointmentPending,
	}
	if err := s.repo.Create(ctx, appt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create appointment")
	}
	s.transitioned(ctx, events.AppointmentCreated, appt)
	return appt, nil
}

// Accept confirms a pending appointment. Only the participant who did not propose it may accept.
func (s *AppointmentService) Accept(ctx context.Context, userID, id string) (*models.Appointment, error) {
	appt, err := s.participantAppointment(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if appt.Counterpart(appt.ProposedBy) != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "the proposer cannot accept their own appointment")
	}
	if appt.Status != models.AppointmentPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "only pending appointments can be accepted")
	}

	updated, err := s.repo.Accept(ctx, id, s.now().UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "only pending appointments can be accepted")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to accept appointment")
	}
	s.transitioned(ctx, events.AppointmentConfirmed, updated)
	return updated, nil
}

// Cancel cancels a pending or confirmed appointment.
func (s *AppointmentService) Cancel(ctx context.Context, userID, id string, req dto.CancelAppointmentRequest) (*models.Appointment, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "a cancellation reason is required")
	}
	appt, err := s.participantAppointment(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != models.AppointmentPending && appt.Status != models.AppointmentConfirmed {
		return nil, appErrors.Clone(appErrors.ErrConflict, "appointment can no longer be cancelled")
	}

	updated, err := s.repo.Cancel(ctx, id, req.Reason, s.now().UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "appointment can no longer be cancelled")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel appointment")
	}
	s.transitioned(ctx, events.AppointmentCancelled, updated)
	return updated, nil
}

// ListForChat lists the appointments of a chat.
func (s *AppointmentService) ListForChat(ctx context.Context, userID, chatID string, query dto.AppointmentListQuery) ([]models.Appointment, *models.Pagination, error) {
	if err := ensureParticipant(ctx, s.chats, chatID, userID); err != nil {
		return nil, nil, err
	}
	return s.list(ctx, models.AppointmentFilter{ChatID: chatID, Status: query.Status, Page: query.Page, PageSize: query.PageSize})
}

// ListForUser lists the caller's appointments across chats.
func (s *AppointmentService) ListForUser(ctx context.Context, userID string, query dto.AppointmentListQuery) ([]models.Appointment, *models.Pagination, error) {
	return s.list(ctx, models.AppointmentFilter{UserID: userID, Status: query.Status, Page: query.Page, PageSize: query.PageSize})
}

// SetReady records the caller's readiness. The appointment completes once both sides are ready.
// A change on an ended CONFIRMED appointment moves it to WAITING_TO_COMPLETE the same way a sweep does.
func (s *AppointmentService) SetReady(ctx context.Context, userID, id string, req dto.ReadyRequest) (*models.ReadinessResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "ready flag is required")
	}
	result, err := s.repo.SetReady(ctx, id, userID, *req.Ready, s.now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
		case errors.Is(err, repository.ErrNotAppointmentParticipant):
			return nil, appErrors.Clone(appErrors.ErrForbidden, "not a participant of this appointment")
		case errors.Is(err, repository.ErrAppointmentState):
			return nil, appErrors.Clone(appErrors.ErrConflict, "appointment is not awaiting completion")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update readiness")
		}
	}
	if result.EnteredWaiting {
		s.transitioned(ctx, events.AppointmentWaiting, result.Appointment)
		s.queueReminders(ctx, result.Appointment, s.now().UTC())
	}
	if result.Completed {
		s.transitioned(ctx, events.AppointmentCompleted, result.Appointment)
	}
	return result, nil
}

// Sweep moves every confirmed appointment whose end has passed to WAITING_TO_COMPLETE and
// queues completion reminders. An empty chatID sweeps all chats.
func (s *AppointmentService) Sweep(ctx context.Context, chatID string) (*dto.SweepResponse, error) {
	now := s.now().UTC()
	start := time.Now()
	swept, err := s.repo.SweepExpired(ctx, chatID, now)
	s.metrics.ObserveDBQuery("appointment_sweep", time.Since(start))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sweep appointments")
	}
	s.metrics.AddSwept(len(swept))

	resp := &dto.SweepResponse{Transitioned: len(swept)}
	for i := range swept {
		appt := &swept[i]
		s.transitioned(ctx, events.AppointmentWaiting, appt)
		resp.RemindersQueued += s.queueReminders(ctx, appt, now)
	}
	if len(swept) > 0 {
		s.logger.Info("appointments swept",
			zap.Int("transitioned", resp.Transitioned),
			zap.Int("reminders_queued", resp.RemindersQueued),
			zap.String("chat_id", chatID),
		)
	}
	return resp, nil
}

func (s *AppointmentService) queueReminders(ctx context.Context, appt *models.Appointment, now time.Time) int {
	if s.reminders == nil {
		return 0
	}
	targets, err := s.repo.ReminderTargets(ctx, appt.ID)
	if err != nil {
		s.logger.Warn("resolve reminder targets failed", zap.String("appointment_id", appt.ID), zap.Error(err))
		return 0
	}
	claimed, err := s.repo.ClaimReminder(ctx, appt.ID, now)
	if err != nil {
		s.logger.Warn("claim reminder failed", zap.String("appointment_id", appt.ID), zap.Error(err))
		return 0
	}
	if !claimed {
		return 0
	}

	queued := 0
	for _, target := range targets {
		if !target.Notify {
			continue
		}
		job := jobs.Job{
			ID:       appt.ID + ":" + target.RecipientID,
			Type:     ReminderJobType,
			Payload:  target,
			Enqueued: now,
		}
		if err := s.reminders.Enqueue(job); err != nil {
			s.logger.Warn("enqueue reminder failed", zap.String("appointment_id", appt.ID), zap.Error(err))
			continue
		}
		queued++
	}
	return queued
}

func (s *AppointmentService) resolveRoles(ctx context.Context, chatID string, teacherID *string) (string, string, error) {
	participants, err := s.chats.Participants(ctx, chatID)
	if err != nil {
		return "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load participants")
	}
	if len(participants) != 2 {
		return "", "", appErrors.Clone(appErrors.ErrPreconditionFailed, "appointments need exactly two chat participants")
	}
	a, b := participants[0].UserID, participants[1].UserID
	other := func(id string) string {
		if id == a {
			return b
		}
		return a
	}

	if teacherID != nil && *teacherID != "" {
		if *teacherID != a && *teacherID != b {
			return "", "", appErrors.Clone(appErrors.ErrValidation, "teacher_id must be a chat participant")
		}
		return *teacherID, other(*teacherID), nil
	}

	chat, err := s.chats.FindByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", appErrors.Clone(appErrors.ErrNotFound, "chat not found")
		}
		return "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load chat")
	}
	if chat.PostID == nil {
		return "", "", appErrors.Clone(appErrors.ErrValidation, "teacher_id is required for chats without a post")
	}
	post, err := s.posts.FindByID(ctx, *chat.PostID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", appErrors.Clone(appErrors.ErrValidation, "teacher_id is required for chats without a post")
		}
		return "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load post")
	}
	if post.AuthorID != a && post.AuthorID != b {
		return "", "", appErrors.Clone(appErrors.ErrValidation, "teacher_id is required for this chat")
	}
	if post.Type == models.PostTypeTeacher {
		return post.AuthorID, other(post.AuthorID), nil
	}
	return other(post.AuthorID), post.AuthorID, nil
}

func (s *AppointmentService) participantAppointment(ctx context.Context, userID, id string) (*models.Appointment, error) {
	appt, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointment")
	}
	if !appt.IsParticipant(userID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not a participant of this appointment")
	}
	return appt, nil
}

func (s *AppointmentService) list(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, *models.Pagination, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown appointment status")
	}
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)
	appts, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list appointments")
	}
	if appts == nil {
		appts = []models.Appointment{}
	}
	return appts, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

func (s *AppointmentService) transitioned(ctx context.Context, eventType string, appt *models.Appointment) {
	if s.metrics != nil {
		s.metrics.ObserveTransition(appt.Status)
	}
	evt := events.Event{ID: uuid.NewString(), Type: eventType, OccurredAt: s.now().UTC(), Data: appt}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn("publish appointment event failed", zap.String("event", eventType), zap.String("appointment_id", appt.ID), zap.Error(err))
	}
}
