package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorconnect/tutorconnect-api/internal/dto"
	"github.com/tutorconnect/tutorconnect-api/internal/models"
	appErrors "github.com/tutorconnect/tutorconnect-api/pkg/errors"
)

const testPostID = "5b0a3f6e-0a7d-4a57-9d0c-3f4c1b2a9e10"

type stubChatRepo struct {
	chats        map[string]*models.Chat
	participants map[string][]string
	reads        map[string]time.Time
	created      int
}

func newStubChatRepo() *stubChatRepo {
	return &stubChatRepo{chats: map[string]*models.Chat{}, participants: map[string][]string{}, reads: map[string]time.Time{}}
}

func (s *stubChatRepo) addChat(id, postID string, members ...string) {
	pid := postID
	chat := &models.Chat{ID: id, CreatedBy: members[0]}
	if postID != "" {
		chat.PostID = &pid
	}
	s.chats[id] = chat
	s.participants[id] = members
}

func (s *stubChatRepo) IsParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	for _, id := range s.participants[chatID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubChatRepo) FindByPostAndCreator(ctx context.Context, postID, userID string) (*models.Chat, error) {
	for _, c := range s.chats {
		if c.PostID != nil && *c.PostID == postID && c.CreatedBy == userID {
			return c, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubChatRepo) Create(ctx context.Context, chat *models.Chat, participantIDs []string) error {
	s.created++
	chat.ID = "chat-new"
	s.chats[chat.ID] = chat
	s.participants[chat.ID] = participantIDs
	return nil
}

func (s *stubChatRepo) FindByID(ctx context.Context, id string) (*models.Chat, error) {
	c, ok := s.chats[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return c, nil
}

func (s *stubChatRepo) Participants(ctx context.Context, chatID string) ([]models.ChatParticipant, error) {
	var out []models.ChatParticipant
	for _, id := range s.participants[chatID] {
		out = append(out, models.ChatParticipant{ChatID: chatID, UserID: id})
	}
	return out, nil
}

func (s *stubChatRepo) ListForUser(ctx context.Context, userID string, page, pageSize int) ([]models.ChatSummary, int, error) {
	var out []models.ChatSummary
	for id, chat := range s.chats {
		if ok, _ := s.IsParticipant(ctx, id, userID); ok {
			out = append(out, models.ChatSummary{Chat: *chat})
		}
	}
	return out, len(out), nil
}

func (s *stubChatRepo) MarkRead(ctx context.Context, chatID, userID string, ts time.Time) error {
	s.reads[chatID+"/"+userID] = ts
	return nil
}

type stubMessageRepo struct {
	messages []models.Message
}

func (s *stubMessageRepo) Create(ctx context.Context, msg *models.Message) error {
	msg.ID = "m1"
	s.messages = append(s.messages, *msg)
	return nil
}

func (s *stubMessageRepo) List(ctx context.Context, chatID string, filter models.MessageFilter) ([]models.Message, error) {
	return s.messages, nil
}

func newTestChatService(chats *stubChatRepo, posts *stubPostRepo) (*ChatService, *stubMessageRepo) {
	messages := &stubMessageRepo{}
	return NewChatService(chats, messages, posts, nil, nil), messages
}

func TestChatServiceOpenCreatesAndReuses(t *testing.T) {
	chats := newStubChatRepo()
	posts := newStubPostRepo(models.Post{ID: testPostID, AuthorID: "teacher", Type: models.PostTypeTeacher, Active: true})
	svc, _ := newTestChatService(chats, posts)

	first, created, err := svc.Open(context.Background(), "student", dto.CreateChatRequest{PostID: testPostID})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, first.Participants, 2)

	again, created, err := svc.Open(context.Background(), "student", dto.CreateChatRequest{PostID: testPostID})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 1, chats.created)
}

func TestChatServiceOpenOwnPost(t *testing.T) {
	posts := newStubPostRepo(models.Post{ID: testPostID, AuthorID: "teacher", Active: true})
	svc, _ := newTestChatService(newStubChatRepo(), posts)

	_, _, err := svc.Open(context.Background(), "teacher", dto.CreateChatRequest{PostID: testPostID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestChatServiceOpenInactivePost(t *testing.T) {
	posts := newStubPostRepo(models.Post{ID: testPostID, AuthorID: "teacher", Active: false})
	svc, _ := newTestChatService(newStubChatRepo(), posts)

	_, _, err := svc.Open(context.Background(), "student", dto.CreateChatRequest{PostID: testPostID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestChatServiceNonParticipantForbidden(t *testing.T) {
	chats := newStubChatRepo()
	chats.addChat("c1", testPostID, "student", "teacher")
	svc, messages := newTestChatService(chats, newStubPostRepo())

	_, err := svc.Send(context.Background(), "stranger", "c1", dto.SendMessageRequest{Content: "hi"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, messages.messages)

	_, err = svc.Get(context.Background(), "stranger", "c1")
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestChatServiceSendAndRead(t *testing.T) {
	chats := newStubChatRepo()
	chats.addChat("c1", testPostID, "student", "teacher")
	svc, messages := newTestChatService(chats, newStubPostRepo())

	msg, err := svc.Send(context.Background(), "student", "c1", dto.SendMessageRequest{Content: "  hello there  "})
	require.NoError(t, err)
	assert.Equal(t, "hello there", msg.Content)
	assert.Len(t, messages.messages, 1)

	_, err = svc.Send(context.Background(), "student", "c1", dto.SendMessageRequest{Content: "   "})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.MarkRead(context.Background(), "teacher", "c1"))
	assert.Contains(t, chats.reads, "c1/teacher")

	list, page, err := svc.List(context.Background(), "teacher", 0, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 1, page.Page)
}
