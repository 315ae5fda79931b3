package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/tutorconnect/tutorconnect-api/internal/dto"
	"github.com/tutorconnect/tutorconnect-api/internal/models"
	appErrors "github.com/tutorconnect/tutorconnect-api/pkg/errors"
)

type participantChecker interface {
	IsParticipant(ctx context.Context, chatID, userID string) (bool, error)
}

type chatRepository interface {
	participantChecker
	FindByPostAndCreator(ctx context.Context, postID, userID string) (*models.Chat, error)
	Create(ctx context.Context, chat *models.Chat, participantIDs []string) error
	FindByID(ctx context.Context, id string) (*models.Chat, error)
	Participants(ctx context.Context, chatID string) ([]models.ChatParticipant, error)
	ListForUser(ctx context.Context, userID string, page, pageSize int) ([]models.ChatSummary, int, error)
	MarkRead(ctx context.Context, chatID, userID string, ts time.Time) error
}

type messageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	List(ctx context.Context, chatID string, filter models.MessageFilter) ([]models.Message, error)
}

type postReader interface {
	FindByID(ctx context.Context, id string) (*models.Post, error)
}

// ChatService manages conversations between a post author and interested users.
type ChatService struct {
	chats     chatRepository
	messages  messageRepository
	posts     postReader
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewChatService constructs the service.
func NewChatService(chats chatRepository, messages messageRepository, posts postReader, validate *validator.Validate, logger *zap.Logger) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ChatService{chats: chats, messages: messages, posts: posts, validator: validate, logger: logger, now: time.Now}
}

// Open returns the caller's chat for a post, creating it with the post author on first contact.
func (s *ChatService) Open(ctx context.Context, userID string, req dto.CreateChatRequest) (*dto.ChatDetailResponse, bool, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid chat payload")
	}

	post, err := s.posts.FindByID(ctx, req.PostID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "post not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load post")
	}
	if post.AuthorID == userID {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "cannot open a chat on your own post")
	}

	existing, err := s.chats.FindByPostAndCreator(ctx, post.ID, userID)
	switch {
	case err == nil:
		detail, derr := s.detail(ctx, existing)
		return detail, false, derr
	case !errors.Is(err, sql.ErrNoRows):
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up chat")
	}

	if !post.Active {
		return nil, false, appErrors.Clone(appErrors.ErrNotFound, "post not found")
	}

	postID := post.ID
	chat := &models.Chat{PostID: &postID, CreatedBy: userID}
	if err := s.chats.Create(ctx, chat, []string{userID, post.AuthorID}); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create chat")
	}
	s.logger.Info("chat opened", zap.String("chat_id", chat.ID), zap.String("post_id", post.ID))

	detail, err := s.detail(ctx, chat)
	return detail, true, err
}

// List returns the caller's chats with last message and unread count.
func (s *ChatService) List(ctx context.Context, userID string, page, pageSize int) ([]models.ChatSummary, *models.Pagination, error) {
	page, pageSize = models.NormalizePage(page, pageSize)
	chats, total, err := s.chats.ListForUser(ctx, userID, page, pageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list chats")
	}
	if chats == nil {
		chats = []models.ChatSummary{}
	}
	return chats, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns a chat with its participants.
func (s *ChatService) Get(ctx context.Context, userID, chatID string) (*dto.ChatDetailResponse, error) {
	if err := s.EnsureParticipant(ctx, chatID, userID); err != nil {
		return nil, err
	}
	chat, err := s.chats.FindByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "chat not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load chat")
	}
	return s.detail(ctx, chat)
}

// Messages returns a page of messages, newest first.
func (s *ChatService) Messages(ctx context.Context, userID, chatID string, filter models.MessageFilter) ([]models.Message, error) {
	if err := s.EnsureParticipant(ctx, chatID, userID); err != nil {
		return nil, err
	}
	msgs, err := s.messages.List(ctx, chatID, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list messages")
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, nil
}

// Send posts a message to the chat.
func (s *ChatService) Send(ctx context.Context, userID, chatID string, req dto.SendMessageRequest) (*models.Message, error) {
	req.Content = strings.TrimSpace(req.Content)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid message payload")
	}
	if err := s.EnsureParticipant(ctx, chatID, userID); err != nil {
		return nil, err
	}
	msg := &models.Message{ChatID: chatID, SenderID: userID, Content: req.Content, CreatedAt: s.now().UTC()}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to send message")
	}
	return msg, nil
}

// MarkRead advances the caller's read marker to now.
func (s *ChatService) MarkRead(ctx context.Context, userID, chatID string) error {
	if err := s.EnsureParticipant(ctx, chatID, userID); err != nil {
		return err
	}
	if err := s.chats.MarkRead(ctx, chatID, userID, s.now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark chat read")
	}
	return nil
}

// EnsureParticipant returns FORBIDDEN unless userID takes part in chatID.
func (s *ChatService) EnsureParticipant(ctx context.Context, chatID, userID string) error {
	return ensureParticipant(ctx, s.chats, chatID, userID)
}

func ensureParticipant(ctx context.Context, checker participantChecker, chatID, userID string) error {
	ok, err := checker.IsParticipant(ctx, chatID, userID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check chat membership")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrForbidden, "not a participant of this chat")
	}
	return nil
}

func (s *ChatService) detail(ctx context.Context, chat *models.Chat) (*dto.ChatDetailResponse, error) {
	participants, err := s.chats.Participants(ctx, chat.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load participants")
	}
	return &dto.ChatDetailResponse{Chat: *chat, Participants: participants}, nil
}
