package dto

import "github.com/tutorconnect/tutorconnect-api/internal/models"

// CreateChatRequest captures POST /chats.
type CreateChatRequest struct {
	PostID string `json:"post_id" validate:"required,uuid"`
}

// SendMessageRequest captures POST /chats/:id/messages.
type SendMessageRequest struct {
	Content string `json:"content" validate:"required,min=1,max=4000"`
}

// TypingRequest captures POST /chats/:id/typing.
type TypingRequest struct {
	Typing bool `json:"typing"`
}

// ChatDetailResponse is a chat with its participants.
type ChatDetailResponse struct {
	models.Chat
	Participants []models.ChatParticipant `json:"participants"`
}
