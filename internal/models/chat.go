package models

import "time"

// Chat is a conversation between users, usually opened from a post.
type Chat struct {
	ID            string     `db:"id" json:"id"`
	PostID        *string    `db:"post_id" json:"post_id,omitempty"`
	CreatedBy     string     `db:"created_by" json:"created_by"`
	LastMessageAt *time.Time `db:"last_message_at" json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// ChatParticipant links a user to a chat and tracks their read position.
type ChatParticipant struct {
	ChatID     string     `db:"chat_id" json:"chat_id"`
	UserID     string     `db:"user_id" json:"user_id"`
	FullName   string     `db:"full_name" json:"full_name"`
	LastReadAt *time.Time `db:"last_read_at" json:"last_read_at,omitempty"`
	JoinedAt   time.Time  `db:"joined_at" json:"joined_at"`
}

// ChatSummary is a chat row enriched for the caller's inbox.
type ChatSummary struct {
	Chat
	PostTitle   *string    `db:"post_title" json:"post_title,omitempty"`
	LastMessage *string    `db:"last_message" json:"last_message,omitempty"`
	UnreadCount int        `db:"unread_count" json:"unread_count"`
	LastReadAt  *time.Time `db:"last_read_at" json:"last_read_at,omitempty"`
}

// Message is a single chat message.
type Message struct {
	ID        string    `db:"id" json:"id"`
	ChatID    string    `db:"chat_id" json:"chat_id"`
	SenderID  string    `db:"sender_id" json:"sender_id"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// MessageFilter pages through a chat's history, newest first.
type MessageFilter struct {
	Before   *time.Time
	PageSize int
}

// TypingUser is a participant currently typing in a chat.
type TypingUser struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TypingEvent is published whenever a typing entry changes.
type TypingEvent struct {
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id"`
	Typing bool   `json:"typing"`
}
