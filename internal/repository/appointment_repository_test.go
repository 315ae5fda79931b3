package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorconnect/tutorconnect-api/internal/models"
)

var appointmentColumnNames = []string{"id", "chat_id", "proposed_by", "teacher_id", "student_id", "date_time", "duration", "location", "status", "teacher_ready", "student_ready", "both_completed", "cancellation_reason", "notes", "reminder_sent_at", "completed_at", "created_at", "updated_at"}

func appointmentRows(status models.AppointmentStatus, start time.Time, teacherReady, studentReady bool) *sqlmock.Rows {
	return sqlmock.NewRows(appointmentColumnNames).
		AddRow("a1", "c1", "t1", "t1", "s1", start, 60, "Deichman Grünerløkka", string(status), teacherReady, studentReady, false, nil, nil, nil, nil, start.Add(-48*time.Hour), start.Add(-48*time.Hour))
}

func TestSweepExpiredUsesEndTime(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	now := time.Date(2025, 3, 10, 11, 1, 0, 0, time.UTC)
	start := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = 'CONFIRMED' AND date_time + (duration * INTERVAL '1 minute') <= $1 RETURNING")).
		WithArgs(now).
		WillReturnRows(appointmentRows(models.AppointmentWaitingToComplete, start, false, false))

	swept, err := repo.SweepExpired(context.Background(), "", now)
	require.NoError(t, err)
	require.Len(t, swept, 1)
	assert.Equal(t, models.AppointmentWaitingToComplete, swept[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepExpiredScopedToChat(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("<= $1 AND chat_id = $2 RETURNING")).
		WithArgs(now, "c1").
		WillReturnRows(sqlmock.NewRows(appointmentColumnNames))

	swept, err := repo.SweepExpired(context.Background(), "c1", now)
	require.NoError(t, err)
	assert.Empty(t, swept)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimReminderOnlyOnce(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	now := time.Now().UTC()
	query := regexp.QuoteMeta("UPDATE appointments SET reminder_sent_at = $2 WHERE id = $1 AND reminder_sent_at IS NULL")
	mock.ExpectExec(query).WithArgs("a1", now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs("a1", now).WillReturnResult(sqlmock.NewResult(0, 0))

	first, err := repo.ClaimReminder(context.Background(), "a1", now)
	require.NoError(t, err)
	second, err := repo.ClaimReminder(context.Background(), "a1", now)
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcceptNotPending(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE appointments SET status = 'CONFIRMED'")).
		WillReturnRows(sqlmock.NewRows(appointmentColumnNames))

	_, err := repo.Accept(context.Background(), "a1", time.Now())
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetReadyFirstFlagDoesNotComplete(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	start := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	now := start.Add(2 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM appointments WHERE id = $1 FOR UPDATE")).WithArgs("a1").
		WillReturnRows(appointmentRows(models.AppointmentWaitingToComplete, start, false, false))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE appointments SET status = $2, teacher_ready = $3, student_ready = $4")).
		WithArgs("a1", models.AppointmentWaitingToComplete, true, false, false, nil, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.SetReady(context.Background(), "a1", "t1", true, now)
	require.NoError(t, err)
	assert.False(t, result.Completed)
	assert.True(t, result.Appointment.TeacherReady)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetReadyCompletesAndRollsUpFirstSession(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	start := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	now := start.Add(2 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WithArgs("a1").
		WillReturnRows(appointmentRows(models.AppointmentWaitingToComplete, start, true, false))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE appointments SET status = $2")).
		WithArgs("a1", models.AppointmentCompleted, true, true, true, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1 || ':' || $2))")).
		WithArgs("t1", "s1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM appointments WHERE teacher_id = $1 AND student_id = $2 AND status = 'COMPLETED' AND id <> $3)")).
		WithArgs("t1", "s1", "a1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET teacher_sessions = teacher_sessions + 1, teacher_students = teacher_students + $2")).
		WithArgs("t1", 1, now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET student_sessions = student_sessions + 1, student_teachers = student_teachers + $2")).
		WithArgs("s1", 1, now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.SetReady(context.Background(), "a1", "s1", true, now)
	require.NoError(t, err)
	assert.True(t, result.Completed)
	assert.Equal(t, models.AppointmentCompleted, result.Appointment.Status)
	assert.True(t, result.Appointment.BothCompleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetReadyRepeatPairOnlyBumpsSessions(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	start := time.Date(2025, 3, 17, 10, 0, 0, 0, time.UTC)
	now := start.Add(2 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WithArgs("a1").
		WillReturnRows(appointmentRows(models.AppointmentWaitingToComplete, start, false, true))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE appointments SET status = $2")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("pg_advisory_xact_lock")).WithArgs("t1", "s1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(regexp.QuoteMeta("teacher_students = teacher_students + $2")).WithArgs("t1", 0, now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("student_teachers = student_teachers + $2")).WithArgs("s1", 0, now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.SetReady(context.Background(), "a1", "t1", true, now)
	require.NoError(t, err)
	assert.True(t, result.Completed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetReadyRejectsOutsider(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	start := time.Now().Add(-3 * time.Hour)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WillReturnRows(appointmentRows(models.AppointmentWaitingToComplete, start, false, false))
	mock.ExpectRollback()

	_, err := repo.SetReady(context.Background(), "a1", "stranger", true, time.Now())
	assert.ErrorIs(t, err, ErrNotAppointmentParticipant)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetReadyOnConfirmedBeforeEndIsRejected(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	start := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WillReturnRows(appointmentRows(models.AppointmentConfirmed, start, false, false))
	mock.ExpectRollback()

	_, err := repo.SetReady(context.Background(), "a1", "t1", true, start.Add(59*time.Minute))
	assert.ErrorIs(t, err, ErrAppointmentState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetReadyOnEndedConfirmedMovesToWaiting(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	start := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	now := start.Add(61 * time.Minute)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WillReturnRows(appointmentRows(models.AppointmentConfirmed, start, false, false))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE appointments SET status = $2")).
		WithArgs("a1", models.AppointmentWaitingToComplete, false, true, false, nil, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.SetReady(context.Background(), "a1", "s1", true, now)
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentWaitingToComplete, result.Appointment.Status)
	assert.True(t, result.EnteredWaiting)
	assert.False(t, result.Completed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetReadyOnCompletedIsRejected(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	start := time.Now().Add(-3 * time.Hour)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WillReturnRows(appointmentRows(models.AppointmentCompleted, start, true, true))
	mock.ExpectRollback()

	_, err := repo.SetReady(context.Background(), "a1", "t1", false, time.Now())
	assert.ErrorIs(t, err, ErrAppointmentState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetReadyPairLockFailureRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	start := time.Date(2025, 3, 24, 10, 0, 0, 0, time.UTC)
	now := start.Add(2 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WithArgs("a1").
		WillReturnRows(appointmentRows(models.AppointmentWaitingToComplete, start, true, false))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE appointments SET status = $2")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("pg_advisory_xact_lock")).WithArgs("t1", "s1").
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, err := repo.SetReady(context.Background(), "a1", "s1", true, now)
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}
