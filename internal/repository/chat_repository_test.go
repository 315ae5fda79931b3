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

func TestChatCreateAddsParticipants(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewChatRepository(db)

	postID := "p1"
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO chats").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO chat_participants").WithArgs(sqlmock.AnyArg(), "author", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO chat_participants").WithArgs(sqlmock.AnyArg(), "requester", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	chat := &models.Chat{PostID: &postID, CreatedBy: "requester"}
	require.NoError(t, repo.Create(context.Background(), chat, []string{"author", "requester"}))
	assert.NotEmpty(t, chat.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChatCreateRollsBackOnParticipantFailure(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewChatRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO chats").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO chat_participants").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Chat{CreatedBy: "u1"}, []string{"u1", "u2"})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChatIsParticipant(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewChatRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM chat_participants WHERE chat_id = $1 AND user_id = $2)")).
		WithArgs("c1", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.IsParticipant(context.Background(), "c1", "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChatListForUserIncludesUnread(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewChatRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "post_id", "created_by", "last_message_at", "created_at", "updated_at", "post_title", "last_read_at", "last_message", "unread_count"}).
		AddRow("c1", "p1", "u2", now, now, now, "Matte R1", nil, "Hei!", 2)
	mock.ExpectQuery("FROM chats c\\s+JOIN chat_participants cp").WithArgs("u1").WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM chat_participants WHERE user_id = $1")).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	chats, total, err := repo.ListForUser(context.Background(), "u1", 1, 20)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, 2, chats[0].UnreadCount)
	require.NotNil(t, chats[0].LastMessage)
	assert.Equal(t, "Hei!", *chats[0].LastMessage)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageCreateTouchesChat(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMessageRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO messages").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE chats SET last_message_at = $2")).WithArgs("c1", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE chat_participants SET last_read_at = $3")).WithArgs("c1", "u1", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	msg := &models.Message{ChatID: "c1", SenderID: "u1", Content: "Passer tirsdag?"}
	require.NoError(t, repo.Create(context.Background(), msg))
	assert.NotEmpty(t, msg.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageListBefore(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMessageRepository(db)

	before := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE chat_id = $1 AND created_at < $2 ORDER BY created_at DESC LIMIT 50")).
		WithArgs("c1", before).
		WillReturnRows(sqlmock.NewRows([]string{"id", "chat_id", "sender_id", "content", "created_at"}).AddRow("m1", "c1", "u1", "Hei", before.Add(-time.Minute)))

	msgs, err := repo.List(context.Background(), "c1", models.MessageFilter{Before: &before, PageSize: 50})
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
