package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/tutorconnect/tutorconnect-api/internal/models"
)

const userColumns = `id, email, password_hash, full_name, role, phone, bio, location, subjects, avatar_key, show_email, show_phone, show_location, notify_appointment_reminders, teacher_sessions, teacher_students, student_sessions, student_teachers, active, deleted_at, last_login, created_at, updated_at`

// ErasedFullName replaces the display name of anonymised accounts.
const ErasedFullName = "Slettet bruker"

// UserRepository provides database access for accounts, sessions and audit records.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail returns a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1) LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// EmailExists reports whether an account already uses email.
func (r *UserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(email) = LOWER($1))`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, email); err != nil {
		return false, fmt.Errorf("check email exists: %w", err)
	}
	return exists, nil
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	if user.Subjects == nil {
		user.Subjects = pq.StringArray{}
	}

	const query = `INSERT INTO users (id, email, password_hash, full_name, role, subjects, show_email, show_phone, show_location, notify_appointment_reminders, active, created_at, updated_at)
VALUES (:id, :email, :password_hash, :full_name, :role, :subjects, :show_email, :show_phone, :show_location, :notify_appointment_reminders, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UpdateLastLogin updates the last_login timestamp for a user.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE users SET last_login = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// UpdatePassword updates the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, passwordHash, updatedAt); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// UpdateProfile applies the non-nil fields of params.
func (r *UserRepository) UpdateProfile(ctx context.Context, id string, params models.ProfileUpdate) error {
	set := make([]string, 0, 10)
	args := make([]interface{}, 0, 11)
	add := func(column string, value interface{}) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if params.FullName != nil {
		add("full_name", *params.FullName)
	}
	if params.Phone != nil {
		add("phone", nullIfEmpty(*params.Phone))
	}
	if params.Bio != nil {
		add("bio", nullIfEmpty(*params.Bio))
	}
	if params.Location != nil {
		add("location", nullIfEmpty(*params.Location))
	}
	if params.Subjects != nil {
		add("subjects", pq.StringArray(params.Subjects))
	}
	if params.ShowEmail != nil {
		add("show_email", *params.ShowEmail)
	}
	if params.ShowPhone != nil {
		add("show_phone", *params.ShowPhone)
	}
	if params.ShowLocation != nil {
		add("show_location", *params.ShowLocation)
	}
	if params.NotifyAppointmentReminders != nil {
		add("notify_appointment_reminders", *params.NotifyAppointmentReminders)
	}
	if len(set) == 0 {
		return nil
	}
	add("updated_at", time.Now().UTC())

	args = append(args, id)
	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d AND deleted_at IS NULL", strings.Join(set, ", "), len(args))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// SetAvatarKey stores the object key of the uploaded avatar.
func (r *UserRepository) SetAvatarKey(ctx context.Context, id, key string) error {
	const query = `UPDATE users SET avatar_key = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, key, time.Now().UTC()); err != nil {
		return fmt.Errorf("set avatar key: %w", err)
	}
	return nil
}

// GetStats returns the statistics counters for a user.
func (r *UserRepository) GetStats(ctx context.Context, id string) (*models.UserStats, error) {
	const query = `SELECT id, teacher_sessions, teacher_students, student_sessions, student_teachers FROM users WHERE id = $1 AND deleted_at IS NULL`
	var stats models.UserStats
	if err := r.db.GetContext(ctx, &stats, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get user stats: %w", err)
	}
	return &stats, nil
}

// Anonymize erases personal data of a user, deactivates their posts and revokes every session.
// Chats and appointments are kept for the counterpart but point at the anonymised account.
func (r *UserRepository) Anonymize(ctx context.Context, id string, now time.Time) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin anonymize transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const userQuery = `UPDATE users SET email = $2, password_hash = '', full_name = $3, phone = NULL, bio = NULL, location = NULL,
subjects = '{}', avatar_key = NULL, show_email = FALSE, show_phone = FALSE, show_location = FALSE,
notify_appointment_reminders = FALSE, active = FALSE, deleted_at = $4, updated_at = $4 WHERE id = $1`
	res, err := tx.ExecContext(ctx, userQuery, id, fmt.Sprintf("deleted+%s@tutorconnect.invalid", id), ErasedFullName, now)
	if err != nil {
		return fmt.Errorf("anonymize user: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		err = sql.ErrNoRows
		return err
	}

	const postsQuery = `UPDATE posts SET active = FALSE, updated_at = $2 WHERE author_id = $1`
	if _, err = tx.ExecContext(ctx, postsQuery, id, now); err != nil {
		return fmt.Errorf("deactivate posts: %w", err)
	}

	const tokensQuery = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE user_id = $1 AND revoked = FALSE`
	if _, err = tx.ExecContext(ctx, tokensQuery, id, now); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit anonymize: %w", err)
	}
	return nil
}

// CreateRefreshToken persists a refresh token entry.
func (r *UserRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO refresh_tokens (id, user_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent) VALUES (:id, :user_id, :token, :expires_at, :created_at, :revoked, :revoked_at, :ip_address, :user_agent)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindRefreshToken returns a refresh token by token string.
func (r *UserRepository) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	const query = `SELECT id, user_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent FROM refresh_tokens WHERE token = $1 LIMIT 1`
	var rt models.RefreshToken
	if err := r.db.GetContext(ctx, &rt, query, token); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &rt, nil
}

// RevokeRefreshToken marks a token as revoked.
func (r *UserRepository) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, revokedAt); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeUserRefreshTokens revokes all refresh tokens for a user.
func (r *UserRepository) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE user_id = $1 AND revoked = FALSE`
	if _, err := r.db.ExecContext(ctx, query, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}

// CreateAuditLog stores an audit log entry.
func (r *UserRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, user_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, created_at) VALUES (:id, :user_id, :action, :resource, :resource_id, :old_values, :new_values, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

func nullIfEmpty(value string) interface{} {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return value
}
