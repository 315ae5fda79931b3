package dto

import (
	"time"

	"github.com/tutorconnect/tutorconnect-api/internal/models"
)

// CreateAppointmentRequest captures POST /chats/:id/appointments.
type CreateAppointmentRequest struct {
	DateTime  time.Time `json:"date_time" validate:"required"`
	Duration  int       `json:"duration" validate:"required,min=15,max=480"`
	Location  string    `json:"location" validate:"max=200"`
	Notes     *string   `json:"notes" validate:"omitempty,max=1000"`
	TeacherID *string   `json:"teacher_id" validate:"omitempty,uuid"`
}

// CancelAppointmentRequest captures POST /appointments/:id/cancel.
type CancelAppointmentRequest struct {
	Reason string `json:"reason" validate:"required,min=1,max=500"`
}

// ReadyRequest captures POST /appointments/:id/ready.
type ReadyRequest struct {
	Ready *bool `json:"ready" validate:"required"`
}

// SweepResponse reports the outcome of an expiry sweep.
type SweepResponse struct {
	Transitioned    int `json:"transitioned"`
	RemindersQueued int `json:"reminders_queued"`
}

// AppointmentListQuery binds list filters from the query string.
type AppointmentListQuery struct {
	Status   *models.AppointmentStatus
	Page     int
	PageSize int
}
