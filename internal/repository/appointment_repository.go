package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tutorconnect/tutorconnect-api/internal/models"
)

const appointmentColumns = `id, chat_id, proposed_by, teacher_id, student_id, date_time, duration, location, status, teacher_ready, student_ready, both_completed, cancellation_reason, notes, reminder_sent_at, completed_at, created_at, updated_at`

var (
	// ErrNotAppointmentParticipant is returned when the caller is neither teacher nor student.
	ErrNotAppointmentParticipant = errors.New("user is not a participant of the appointment")
	// ErrAppointmentState is returned when the current status does not allow the change.
	ErrAppointmentState = errors.New("appointment status does not allow this change")
)

// AppointmentRepository persists appointments and drives their lifecycle transitions.
type AppointmentRepository struct {
	db *sqlx.DB
}

// NewAppointmentRepository constructs the repository.
func NewAppointmentRepository(db *sqlx.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

// Create inserts a new appointment.
func (r *AppointmentRepository) Create(ctx context.Context, appt *models.Appointment) error {
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	if appt.Status == "" {
		appt.Status = models.AppointmentPending
	}
	now := time.Now().UTC()
	appt.CreatedAt = now
	appt.UpdatedAt = now

	const query = `INSERT INTO appointments (id, chat_id, proposed_by, teacher_id, student_id, date_time, duration, location, status, teacher_ready, student_ready, both_completed, notes, created_at, updated_at)
VALUES (:id, :chat_id, :proposed_by, :teacher_id, :student_id, :date_time, :duration, :location, :status, :teacher_ready, :student_ready, :both_completed, :notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, appt); err != nil {
		return fmt.Errorf("create appointment: %w", err)
	}
	return nil
}

// FindByID returns an appointment.
func (r *AppointmentRepository) FindByID(ctx context.Context, id string) (*models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	var appt models.Appointment
	if err := r.db.GetContext(ctx, &appt, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find appointment: %w", err)
	}
	return &appt, nil
}

// List returns appointments of a chat or of a user, soonest first.
func (r *AppointmentRepository) List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error) {
	var conditions []string
	var args []interface{}
	if filter.ChatID != "" {
		args = append(args, filter.ChatID)
		conditions = append(conditions, fmt.Sprintf("chat_id = $%d", len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("(teacher_id = $%d OR student_id = $%d)", len(args), len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	page, pageSize := models.NormalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s FROM appointments%s ORDER BY date_time ASC, id LIMIT %d OFFSET %d", appointmentColumns, where, pageSize, offset)
	var appts []models.Appointment
	if err := r.db.SelectContext(ctx, &appts, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM appointments"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}
	return appts, total, nil
}

// ListAllForUser returns every appointment the user takes part in.
func (r *AppointmentRepository) ListAllForUser(ctx context.Context, userID string) ([]models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE teacher_id = $1 OR student_id = $1 ORDER BY date_time`
	var appts []models.Appointment
	if err := r.db.SelectContext(ctx, &appts, query, userID); err != nil {
		return nil, fmt.Errorf("list all appointments: %w", err)
	}
	return appts, nil
}

// Accept moves a PENDING appointment to CONFIRMED. It returns sql.ErrNoRows when the
// appointment is not pending anymore.
func (r *AppointmentRepository) Accept(ctx context.Context, id string, now time.Time) (*models.Appointment, error) {
	query := `UPDATE appointments SET status = 'CONFIRMED', updated_at = $2 WHERE id = $1 AND status = 'PENDING' RETURNING ` + appointmentColumns
	var appt models.Appointment
	if err := r.db.GetContext(ctx, &appt, query, id, now); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("accept appointment: %w", err)
	}
	return &appt, nil
}

// Cancel moves a PENDING or CONFIRMED appointment to CANCELLED. It returns sql.ErrNoRows when
// the appointment is in any other state.
func (r *AppointmentRepository) Cancel(ctx context.Context, id, reason string, now time.Time) (*models.Appointment, error) {
	query := `UPDATE appointments SET status = 'CANCELLED', cancellation_reason = $2, updated_at = $3
WHERE id = $1 AND status IN ('PENDING', 'CONFIRMED') RETURNING ` + appointmentColumns
	var appt models.Appointment
	if err := r.db.GetContext(ctx, &appt, query, id, reason, now); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}
	return &appt, nil
}

// SweepExpired moves every CONFIRMED appointment whose end is at or before now to
// WAITING_TO_COMPLETE in a single statement and returns the transitioned rows.
// A non-empty chatID restricts the sweep to that chat.
func (r *AppointmentRepository) SweepExpired(ctx context.Context, chatID string, now time.Time) ([]models.Appointment, error) {
	args := []interface{}{now}
	query := `UPDATE appointments SET status = 'WAITING_TO_COMPLETE', teacher_ready = FALSE, student_ready = FALSE, both_completed = FALSE, updated_at = $1
WHERE status = 'CONFIRMED' AND date_time + (duration * INTERVAL '1 minute') <= $1`
	if chatID != "" {
		args = append(args, chatID)
		query += ` AND chat_id = $2`
	}
	query += ` RETURNING ` + appointmentColumns

	var appts []models.Appointment
	if err := r.db.SelectContext(ctx, &appts, query, args...); err != nil {
		return nil, fmt.Errorf("sweep expired appointments: %w", err)
	}
	return appts, nil
}

// ClaimReminder sets the reminder guard. Only the first caller for an appointment gets true.
func (r *AppointmentRepository) ClaimReminder(ctx context.Context, id string, now time.Time) (bool, error) {
	const query = `UPDATE appointments SET reminder_sent_at = $2 WHERE id = $1 AND reminder_sent_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("claim appointment reminder: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim appointment reminder: %w", err)
	}
	return affected == 1, nil
}

// ReminderTargets resolves both participants of an appointment with their reminder preference.
func (r *AppointmentRepository) ReminderTargets(ctx context.Context, id string) ([]models.ReminderTarget, error) {
	const query = `SELECT a.id AS appointment_id, a.chat_id, a.date_time, a.duration,
u.id AS recipient_id, u.email AS recipient_email, u.full_name AS recipient_name,
c.full_name AS counterpart_name, u.notify_appointment_reminders AS notify
FROM appointments a
JOIN users u ON u.id IN (a.teacher_id, a.student_id)
JOIN users c ON c.id = CASE WHEN u.id = a.teacher_id THEN a.student_id ELSE a.teacher_id END
WHERE a.id = $1 AND u.deleted_at IS NULL`
	var targets []models.ReminderTarget
	if err := r.db.SelectContext(ctx, &targets, query, id); err != nil {
		return nil, fmt.Errorf("resolve reminder targets: %w", err)
	}
	return targets, nil
}

// SetReady records the readiness of userID under a row lock. When both sides are ready the
// appointment is completed and the statistics of both users are rolled up in the same
// transaction.
func (r *AppointmentRepository) SetReady(ctx context.Context, id, userID string, ready bool, now time.Time) (result *models.ReadinessResult, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin readiness transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var appt models.Appointment
	lockQuery := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &appt, lockQuery, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock appointment: %w", err)
	}

	if !appt.IsParticipant(userID) {
		err = ErrNotAppointmentParticipant
		return nil, err
	}

	enteredWaiting := false
	switch appt.Status {
	case models.AppointmentWaitingToComplete:
	case models.AppointmentConfirmed:
		if !appt.Ended(now) {
			err = ErrAppointmentState
			return nil, err
		}
		enteredWaiting = true
		appt.Status = models.AppointmentWaitingToComplete
		appt.TeacherReady = false
		appt.StudentReady = false
		appt.BothCompleted = false
	default:
		err = ErrAppointmentState
		return nil, err
	}

	if userID == appt.TeacherID {
		appt.TeacherReady = ready
	} else {
		appt.StudentReady = ready
	}

	completed := appt.TeacherReady && appt.StudentReady
	if completed {
		appt.Status = models.AppointmentCompleted
		appt.BothCompleted = true
		appt.CompletedAt = &now
	}
	appt.UpdatedAt = now

	const updateQuery = `UPDATE appointments SET status = $2, teacher_ready = $3, student_ready = $4, both_completed = $5, completed_at = $6, updated_at = $7 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, updateQuery, appt.ID, appt.Status, appt.TeacherReady, appt.StudentReady, appt.BothCompleted, appt.CompletedAt, now); err != nil {
		return nil, fmt.Errorf("update readiness: %w", err)
	}

	if completed {
		if err = rollupStats(ctx, tx, &appt, now); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit readiness: %w", err)
	}
	return &models.ReadinessResult{Appointment: &appt, Completed: completed, EnteredWaiting: enteredWaiting}, nil
}

// rollupStats bumps session counters and, for a first completed session of the pair, the
// distinct student/teacher counters. The pair lock serializes completions of the same pair so
// the prior-session check sees every committed completion.
func rollupStats(ctx context.Context, tx *sqlx.Tx, appt *models.Appointment, now time.Time) error {
	const pairLockQuery = `SELECT pg_advisory_xact_lock(hashtext($1 || ':' || $2))`
	if _, err := tx.ExecContext(ctx, pairLockQuery, appt.TeacherID, appt.StudentID); err != nil {
		return fmt.Errorf("lock session pair: %w", err)
	}

	const priorQuery = `SELECT EXISTS(SELECT 1 FROM appointments WHERE teacher_id = $1 AND student_id = $2 AND status = 'COMPLETED' AND id <> $3)`
	var seenBefore bool
	if err := tx.GetContext(ctx, &seenBefore, priorQuery, appt.TeacherID, appt.StudentID, appt.ID); err != nil {
		return fmt.Errorf("check prior sessions: %w", err)
	}
	newPair := 0
	if !seenBefore {
		newPair = 1
	}

	const teacherQuery = `UPDATE users SET teacher_sessions = teacher_sessions + 1, teacher_students = teacher_students + $2, updated_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, teacherQuery, appt.TeacherID, newPair, now); err != nil {
		return fmt.Errorf("update teacher stats: %w", err)
	}
	const studentQuery = `UPDATE users SET student_sessions = student_sessions + 1, student_teachers = student_teachers + $2, updated_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, studentQuery, appt.StudentID, newPair, now); err != nil {
		return fmt.Errorf("update student stats: %w", err)
	}
	return nil
}
