package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tutorconnect/tutorconnect-api/internal/models"
)

// MessageRepository persists chat messages.
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository constructs the repository.
func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create stores a message and bumps the chat activity timestamp.
func (r *MessageRepository) Create(ctx context.Context, msg *models.Message) (err error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin message transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertQuery = `INSERT INTO messages (id, chat_id, sender_id, content, created_at) VALUES (:id, :chat_id, :sender_id, :content, :created_at)`
	if _, err = tx.NamedExecContext(ctx, insertQuery, msg); err != nil {
		return fmt.Errorf("create message: %w", err)
	}

	const chatQuery = `UPDATE chats SET last_message_at = $2, updated_at = $2 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, chatQuery, msg.ChatID, msg.CreatedAt); err != nil {
		return fmt.Errorf("touch chat: %w", err)
	}

	// The sender has read everything up to their own message.
	const readQuery = `UPDATE chat_participants SET last_read_at = $3 WHERE chat_id = $1 AND user_id = $2`
	if _, err = tx.ExecContext(ctx, readQuery, msg.ChatID, msg.SenderID, msg.CreatedAt); err != nil {
		return fmt.Errorf("advance sender read marker: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit message: %w", err)
	}
	return nil
}

// List returns a page of messages, newest first.
func (r *MessageRepository) List(ctx context.Context, chatID string, filter models.MessageFilter) ([]models.Message, error) {
	_, pageSize := models.NormalizePage(1, filter.PageSize)
	args := []interface{}{chatID}
	query := `SELECT id, chat_id, sender_id, content, created_at FROM messages WHERE chat_id = $1`
	if filter.Before != nil {
		args = append(args, *filter.Before)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d", pageSize)

	var messages []models.Message
	if err := r.db.SelectContext(ctx, &messages, query, args...); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// ListBySender returns every message a user wrote.
func (r *MessageRepository) ListBySender(ctx context.Context, userID string) ([]models.Message, error) {
	const query = `SELECT id, chat_id, sender_id, content, created_at FROM messages WHERE sender_id = $1 ORDER BY created_at`
	var messages []models.Message
	if err := r.db.SelectContext(ctx, &messages, query, userID); err != nil {
		return nil, fmt.Errorf("list messages by sender: %w", err)
	}
	return messages, nil
}
