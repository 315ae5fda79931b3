package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tutorconnect/tutorconnect-api/internal/models"
)

const chatColumns = `c.id, c.post_id, c.created_by, c.last_message_at, c.created_at, c.updated_at`

// ChatRepository persists chats, their participants and messages.
type ChatRepository struct {
	db *sqlx.DB
}

// NewChatRepository constructs the repository.
func NewChatRepository(db *sqlx.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// FindByPostAndCreator returns the chat a requester already opened for a post.
func (r *ChatRepository) FindByPostAndCreator(ctx context.Context, postID, userID string) (*models.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats c WHERE c.post_id = $1 AND c.created_by = $2 LIMIT 1`
	var chat models.Chat
	if err := r.db.GetContext(ctx, &chat, query, postID, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find chat by post: %w", err)
	}
	return &chat, nil
}

// Create inserts a chat together with its participants.
func (r *ChatRepository) Create(ctx context.Context, chat *models.Chat, participantIDs []string) (err error) {
	if chat.ID == "" {
		chat.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	chat.CreatedAt = now
	chat.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chat transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const chatQuery = `INSERT INTO chats (id, post_id, created_by, last_message_at, created_at, updated_at) VALUES (:id, :post_id, :created_by, :last_message_at, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, chatQuery, chat); err != nil {
		return fmt.Errorf("create chat: %w", err)
	}

	const participantQuery = `INSERT INTO chat_participants (chat_id, user_id, joined_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
	for _, userID := range participantIDs {
		if _, err = tx.ExecContext(ctx, participantQuery, chat.ID, userID, now); err != nil {
			return fmt.Errorf("add chat participant: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit chat: %w", err)
	}
	return nil
}

// FindByID returns a chat.
func (r *ChatRepository) FindByID(ctx context.Context, id string) (*models.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats c WHERE c.id = $1`
	var chat models.Chat
	if err := r.db.GetContext(ctx, &chat, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find chat: %w", err)
	}
	return &chat, nil
}

// IsParticipant reports whether userID belongs to chatID.
func (r *ChatRepository) IsParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM chat_participants WHERE chat_id = $1 AND user_id = $2)`
	var ok bool
	if err := r.db.GetContext(ctx, &ok, query, chatID, userID); err != nil {
		return false, fmt.Errorf("check chat participant: %w", err)
	}
	return ok, nil
}

// Participants lists the members of a chat.
func (r *ChatRepository) Participants(ctx context.Context, chatID string) ([]models.ChatParticipant, error) {
	const query = `SELECT cp.chat_id, cp.user_id, u.full_name, cp.last_read_at, cp.joined_at
FROM chat_participants cp JOIN users u ON u.id = cp.user_id WHERE cp.chat_id = $1 ORDER BY cp.joined_at`
	var participants []models.ChatParticipant
	if err := r.db.SelectContext(ctx, &participants, query, chatID); err != nil {
		return nil, fmt.Errorf("list chat participants: %w", err)
	}
	return participants, nil
}

// ListForUser returns the caller's chats, most recently active first, with unread counts.
func (r *ChatRepository) ListForUser(ctx context.Context, userID string, page, pageSize int) ([]models.ChatSummary, int, error) {
	page, pageSize = models.NormalizePage(page, pageSize)
	offset := (page - 1) * pageSize

	query := fmt.Sprintf(`SELECT %s, p.title AS post_title, cp.last_read_at,
(SELECT m.content FROM messages m WHERE m.chat_id = c.id ORDER BY m.created_at DESC LIMIT 1) AS last_message,
(SELECT COUNT(*) FROM messages m WHERE m.chat_id = c.id AND m.sender_id <> $1 AND (cp.last_read_at IS NULL OR m.created_at > cp.last_read_at)) AS unread_count
FROM chats c
JOIN chat_participants cp ON cp.chat_id = c.id AND cp.user_id = $1
LEFT JOIN posts p ON p.id = c.post_id
ORDER BY COALESCE(c.last_message_at, c.created_at) DESC LIMIT %d OFFSET %d`, chatColumns, pageSize, offset)

	var chats []models.ChatSummary
	if err := r.db.SelectContext(ctx, &chats, query, userID); err != nil {
		return nil, 0, fmt.Errorf("list chats: %w", err)
	}

	const countQuery = `SELECT COUNT(*) FROM chat_participants WHERE user_id = $1`
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, userID); err != nil {
		return nil, 0, fmt.Errorf("count chats: %w", err)
	}
	return chats, total, nil
}

// ListAllForUser returns every chat the user takes part in.
func (r *ChatRepository) ListAllForUser(ctx context.Context, userID string) ([]models.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats c JOIN chat_participants cp ON cp.chat_id = c.id WHERE cp.user_id = $1 ORDER BY c.created_at`
	var chats []models.Chat
	if err := r.db.SelectContext(ctx, &chats, query, userID); err != nil {
		return nil, fmt.Errorf("list all chats: %w", err)
	}
	return chats, nil
}

// MarkRead moves the caller's read marker to ts.
func (r *ChatRepository) MarkRead(ctx context.Context, chatID, userID string, ts time.Time) error {
	const query = `UPDATE chat_participants SET last_read_at = GREATEST(COALESCE(last_read_at, $3), $3) WHERE chat_id = $1 AND user_id = $2`
	if _, err := r.db.ExecContext(ctx, query, chatID, userID, ts); err != nil {
		return fmt.Errorf("mark chat read: %w", err)
	}
	return nil
}
