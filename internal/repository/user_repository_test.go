package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorconnect/tutorconnect-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

var userColumnNames = []string{"id", "email", "password_hash", "full_name", "role", "phone", "bio", "location", "subjects", "avatar_key", "show_email", "show_phone", "show_location", "notify_appointment_reminders", "teacher_sessions", "teacher_students", "student_sessions", "student_teachers", "active", "deleted_at", "last_login", "created_at", "updated_at"}

func userRow(rows *sqlmock.Rows, id, email string, now time.Time) *sqlmock.Rows {
	return rows.AddRow(id, email, "hash", "Kari Nordmann", string(models.RoleUser), "+4712345678", nil, "Oslo", "{matte,fysikk}", nil, false, true, true, true, 3, 2, 1, 1, true, nil, now, now, now)
}

func TestFindByEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := userRow(sqlmock.NewRows(userColumnNames), "1", "kari@example.com", now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE LOWER(email) = LOWER($1) LIMIT 1")).
		WithArgs("kari@example.com").
		WillReturnRows(rows)

	user, err := repo.FindByEmail(context.Background(), "kari@example.com")
	require.NoError(t, err)
	assert.Equal(t, "kari@example.com", user.Email)
	assert.Equal(t, []string{"matte", "fysikk"}, []string(user.Subjects))
	require.NotNil(t, user.Phone)
	assert.Nil(t, user.Bio)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserDefaultsSubjects(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(1, 1))

	user := &models.User{Email: "ola@example.com", PasswordHash: "hash", FullName: "Ola", Role: models.RoleUser, Active: true}
	require.NoError(t, repo.Create(context.Background(), user))
	assert.NotEmpty(t, user.ID)
	assert.NotNil(t, user.Subjects)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRefreshToken(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO refresh_tokens").WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.CreateRefreshToken(context.Background(), &models.RefreshToken{ID: "1", UserID: "u1", Token: "token", ExpiresAt: time.Now(), CreatedAt: time.Now()})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProfileOnlyTouchesProvidedFields(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	bio := "Lektor i matematikk"
	showPhone := false
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET bio = $1, show_phone = $2, updated_at = $3 WHERE id = $4 AND deleted_at IS NULL")).
		WithArgs(bio, false, sqlmock.AnyArg(), "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateProfile(context.Background(), "u1", models.ProfileUpdate{Bio: &bio, ShowPhone: &showPhone})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProfileNoChanges(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	require.NoError(t, repo.UpdateProfile(context.Background(), "u1", models.ProfileUpdate{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetStats(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	rows := sqlmock.NewRows([]string{"id", "teacher_sessions", "teacher_students", "student_sessions", "student_teachers"}).AddRow("u1", 12, 4, 0, 0)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, teacher_sessions, teacher_students, student_sessions, student_teachers FROM users WHERE id = $1")).
		WithArgs("u1").
		WillReturnRows(rows)

	stats, err := repo.GetStats(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 12, stats.TeacherSessions)
	assert.Equal(t, 4, stats.TeacherStudents)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnonymizeRevokesSessions(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users SET email = \\$2, password_hash = ''").
		WithArgs("u1", "deleted+u1@tutorconnect.invalid", ErasedFullName, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE posts SET active = FALSE")).WithArgs("u1", now).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked = TRUE")).WithArgs("u1", now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Anonymize(context.Background(), "u1", now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnonymizeUnknownUserRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users SET email").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Anonymize(context.Background(), "missing", time.Now())
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
