package models

import "time"

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

const (
	AppointmentPending           AppointmentStatus = "PENDING"
	AppointmentConfirmed         AppointmentStatus = "CONFIRMED"
	AppointmentWaitingToComplete AppointmentStatus = "WAITING_TO_COMPLETE"
	AppointmentCompleted         AppointmentStatus = "COMPLETED"
	AppointmentCancelled         AppointmentStatus = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentPending, AppointmentConfirmed, AppointmentWaitingToComplete, AppointmentCompleted, AppointmentCancelled:
		return true
	}
	return false
}

// Duration bounds in minutes.
const (
	MinAppointmentDuration = 15
	MaxAppointmentDuration = 480
)

// Appointment is a scheduled session agreed in a chat.
type Appointment struct {
	ID                 string            `db:"id" json:"id"`
	ChatID             string            `db:"chat_id" json:"chat_id"`
	ProposedBy         string            `db:"proposed_by" json:"proposed_by"`
	TeacherID          string            `db:"teacher_id" json:"teacher_id"`
	StudentID          string            `db:"student_id" json:"student_id"`
	DateTime           time.Time         `db:"date_time" json:"date_time"`
	Duration           int               `db:"duration" json:"duration"`
	Location           string            `db:"location" json:"location"`
	Status             AppointmentStatus `db:"status" json:"status"`
	TeacherReady       bool              `db:"teacher_ready" json:"teacher_ready"`
	StudentReady       bool              `db:"student_ready" json:"student_ready"`
	BothCompleted      bool              `db:"both_completed" json:"both_completed"`
	CancellationReason *string           `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	Notes              *string           `db:"notes" json:"notes,omitempty"`
	ReminderSentAt     *time.Time        `db:"reminder_sent_at" json:"-"`
	CompletedAt        *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt          time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time         `db:"updated_at" json:"updated_at"`
}

// EndsAt returns the scheduled end of the session.
func (a *Appointment) EndsAt() time.Time {
	return a.DateTime.Add(time.Duration(a.Duration) * time.Minute)
}

// Ended reports whether the scheduled end is at or before now.
func (a *Appointment) Ended(now time.Time) bool {
	return !a.EndsAt().After(now)
}

// IsParticipant reports whether userID is the teacher or the student.
func (a *Appointment) IsParticipant(userID string) bool {
	return userID != "" && (a.TeacherID == userID || a.StudentID == userID)
}

// Counterpart returns the other side of the appointment.
func (a *Appointment) Counterpart(userID string) string {
	if a.TeacherID == userID {
		return a.StudentID
	}
	return a.TeacherID
}

// AppointmentFilter scopes appointment listings.
type AppointmentFilter struct {
	ChatID   string
	UserID   string
	Status   *AppointmentStatus
	Page     int
	PageSize int
}

// ReadinessResult reports the outcome of a readiness change.
type ReadinessResult struct {
	Appointment *Appointment `json:"appointment"`
	Completed   bool         `json:"completed"`
	// EnteredWaiting is set when the change itself moved an ended CONFIRMED appointment to
	// WAITING_TO_COMPLETE.
	EnteredWaiting bool `json:"-"`
}

// ReminderTarget is one participant to notify after an appointment ended.
type ReminderTarget struct {
	AppointmentID   string    `db:"appointment_id"`
	ChatID          string    `db:"chat_id"`
	DateTime        time.Time `db:"date_time"`
	Duration        int       `db:"duration"`
	RecipientID     string    `db:"recipient_id"`
	RecipientEmail  string    `db:"recipient_email"`
	RecipientName   string    `db:"recipient_name"`
	CounterpartName string    `db:"counterpart_name"`
	Notify          bool      `db:"notify"`
}
