package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorconnect/tutorconnect-api/internal/models"
)

var postColumnNames = []string{"id", "author_id", "author_name", "type", "title", "description", "subject", "location", "hourly_rate", "online", "active", "created_at", "updated_at"}

func TestPostListAppliesFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPostRepository(db)

	now := time.Now()
	postType := models.PostTypeTeacher
	maxRate := 500
	rows := sqlmock.NewRows(postColumnNames).
		AddRow("p1", "u1", "Kari", "TEACHER", "Matte R1", "Hjelp med R1", "Matematikk", "Oslo", 450, true, true, now, now)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE p.active = TRUE AND u.deleted_at IS NULL AND p.type = $1 AND LOWER(p.subject) = LOWER($2) AND p.hourly_rate <= $3 ORDER BY p.hourly_rate ASC NULLS LAST, p.id LIMIT 10 OFFSET 10")).
		WithArgs(postType, "matematikk", 500).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM posts p JOIN users u ON u.id = p.author_id WHERE p.active = TRUE")).
		WithArgs(postType, "matematikk", 500).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	posts, total, err := repo.List(context.Background(), models.PostFilter{
		Type:      &postType,
		Subject:   "matematikk",
		MaxRate:   &maxRate,
		Page:      2,
		PageSize:  10,
		SortBy:    "hourly_rate",
		SortOrder: "asc",
	})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "Kari", posts[0].AuthorName)
	assert.Equal(t, 11, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostListRejectsUnknownSortColumn(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPostRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY p.created_at DESC NULLS LAST, p.id LIMIT 20 OFFSET 0")).
		WillReturnRows(sqlmock.NewRows(postColumnNames))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, _, err := repo.List(context.Background(), models.PostFilter{SortBy: "password_hash; DROP TABLE users"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPostRepository(db)

	mock.ExpectExec("INSERT INTO posts").WillReturnResult(sqlmock.NewResult(1, 1))

	post := &models.Post{AuthorID: "u1", Type: models.PostTypeStudent, Title: "Trenger hjelp", Description: "Kjemi 1", Subject: "Kjemi", Active: true}
	require.NoError(t, repo.Create(context.Background(), post))
	assert.NotEmpty(t, post.ID)
	assert.False(t, post.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
