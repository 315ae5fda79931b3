package models

import (
	"time"

	"github.com/lib/pq"
)

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleUser  UserRole = "USER"
	RoleAdmin UserRole = "ADMIN"
)

// User represents an application user stored in the users table.
type User struct {
	ID                         string         `db:"id" json:"id"`
	Email                      string         `db:"email" json:"email"`
	PasswordHash               string         `db:"password_hash" json:"-"`
	FullName                   string         `db:"full_name" json:"full_name"`
	Role                       UserRole       `db:"role" json:"role"`
	Phone                      *string        `db:"phone" json:"phone,omitempty"`
	Bio                        *string        `db:"bio" json:"bio,omitempty"`
	Location                   *string        `db:"location" json:"location,omitempty"`
	Subjects                   pq.StringArray `db:"subjects" json:"subjects"`
	AvatarKey                  *string        `db:"avatar_key" json:"-"`
	ShowEmail                  bool           `db:"show_email" json:"show_email"`
	ShowPhone                  bool           `db:"show_phone" json:"show_phone"`
	ShowLocation               bool           `db:"show_location" json:"show_location"`
	NotifyAppointmentReminders bool           `db:"notify_appointment_reminders" json:"notify_appointment_reminders"`
	TeacherSessions            int            `db:"teacher_sessions" json:"teacher_sessions"`
	TeacherStudents            int            `db:"teacher_students" json:"teacher_students"`
	StudentSessions            int            `db:"student_sessions" json:"student_sessions"`
	StudentTeachers            int            `db:"student_teachers" json:"student_teachers"`
	Active                     bool           `db:"active" json:"active"`
	DeletedAt                  *time.Time     `db:"deleted_at" json:"deleted_at,omitempty"`
	LastLogin                  *time.Time     `db:"last_login" json:"last_login,omitempty"`
	CreatedAt                  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt                  time.Time      `db:"updated_at" json:"updated_at"`
}

// Erased reports whether the account was anonymised by an erasure request.
func (u *User) Erased() bool {
	return u != nil && u.DeletedAt != nil
}

// UserStats holds the teaching and learning counters of a user.
type UserStats struct {
	UserID          string `db:"id" json:"user_id"`
	TeacherSessions int    `db:"teacher_sessions" json:"teacher_sessions"`
	TeacherStudents int    `db:"teacher_students" json:"teacher_students"`
	StudentSessions int    `db:"student_sessions" json:"student_sessions"`
	StudentTeachers int    `db:"student_teachers" json:"student_teachers"`
}

// ProfileUpdate carries the mutable profile columns. Nil fields are left unchanged.
type ProfileUpdate struct {
	FullName                   *string
	Phone                      *string
	Bio                        *string
	Location                   *string
	Subjects                   []string
	ShowEmail                  *bool
	ShowPhone                  *bool
	ShowLocation               *bool
	NotifyAppointmentReminders *bool
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// NormalizePage clamps page and size to sane bounds.
func NormalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
