package dto

import (
	"time"

	"github.com/tutorconnect/tutorconnect-api/internal/models"
)

// UpdateProfileRequest captures PATCH /profile. Omitted fields are left unchanged.
type UpdateProfileRequest struct {
	FullName                   *string  `json:"full_name" validate:"omitempty,min=2,max=120"`
	Phone                      *string  `json:"phone" validate:"omitempty,max=32"`
	Bio                        *string  `json:"bio" validate:"omitempty,max=2000"`
	Location                   *string  `json:"location" validate:"omitempty,max=120"`
	Subjects                   []string `json:"subjects" validate:"omitempty,max=20,dive,min=1,max=60"`
	ShowEmail                  *bool    `json:"show_email"`
	ShowPhone                  *bool    `json:"show_phone"`
	ShowLocation               *bool    `json:"show_location"`
	NotifyAppointmentReminders *bool    `json:"notify_appointment_reminders"`
}

// ProfileResponse is the owner's full view of their profile.
type ProfileResponse struct {
	ID                         string          `json:"id"`
	Email                      string          `json:"email"`
	FullName                   string          `json:"full_name"`
	Role                       models.UserRole `json:"role"`
	Phone                      *string         `json:"phone,omitempty"`
	Bio                        *string         `json:"bio,omitempty"`
	Location                   *string         `json:"location,omitempty"`
	Subjects                   []string        `json:"subjects"`
	HasAvatar                  bool            `json:"has_avatar"`
	ShowEmail                  bool            `json:"show_email"`
	ShowPhone                  bool            `json:"show_phone"`
	ShowLocation               bool            `json:"show_location"`
	NotifyAppointmentReminders bool            `json:"notify_appointment_reminders"`
	CreatedAt                  time.Time       `json:"created_at"`
}

// PublicProfileResponse is what other users see. Private fields are omitted.
type PublicProfileResponse struct {
	ID          string    `json:"id"`
	FullName    string    `json:"full_name"`
	Email       *string   `json:"email,omitempty"`
	Phone       *string   `json:"phone,omitempty"`
	Location    *string   `json:"location,omitempty"`
	Bio         *string   `json:"bio,omitempty"`
	Subjects    []string  `json:"subjects"`
	HasAvatar   bool      `json:"has_avatar"`
	MemberSince time.Time `json:"member_since"`
}

// Badge is an achievement tier earned from completed sessions.
type Badge struct {
	Kind string `json:"kind"`
	Tier string `json:"tier"`
}

// UserStatsResponse exposes counters and derived badges.
type UserStatsResponse struct {
	UserID          string  `json:"user_id"`
	TeacherSessions int     `json:"teacher_sessions"`
	TeacherStudents int     `json:"teacher_students"`
	StudentSessions int     `json:"student_sessions"`
	StudentTeachers int     `json:"student_teachers"`
	Badges          []Badge `json:"badges"`
}
