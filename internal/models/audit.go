package models

import "time"

// Audit actions recorded by the audit middleware and services.
const (
	AuditActionRegister          = "REGISTER"
	AuditActionLogin             = "LOGIN"
	AuditActionLogout            = "LOGOUT"
	AuditActionPasswordChange    = "PASSWORD_CHANGE"
	AuditActionProfileUpdate     = "PROFILE_UPDATE"
	AuditActionAvatarUpload      = "AVATAR_UPLOAD"
	AuditActionPostCreate        = "POST_CREATE"
	AuditActionPostUpdate        = "POST_UPDATE"
	AuditActionPostDelete        = "POST_DELETE"
	AuditActionAppointmentCreate = "APPOINTMENT_CREATE"
	AuditActionAppointmentAccept = "APPOINTMENT_ACCEPT"
	AuditActionAppointmentCancel = "APPOINTMENT_CANCEL"
	AuditActionAppointmentReady  = "APPOINTMENT_READY"
	AuditActionAppointmentSweep  = "APPOINTMENT_SWEEP"
	AuditActionDataRequest       = "DATA_REQUEST"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
