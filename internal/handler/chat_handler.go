package handler

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tutorconnect/tutorconnect-api/internal/dto"
	"github.com/tutorconnect/tutorconnect-api/internal/models"
	"github.com/tutorconnect/tutorconnect-api/pkg/response"
)

const typingStreamKeepAlive = 15 * time.Second

type chatService interface {
	Open(ctx context.Context, userID string, req dto.CreateChatRequest) (*dto.ChatDetailResponse, bool, error)
	List(ctx context.Context, userID string, page, pageSize int) ([]models.ChatSummary, *models.Pagination, error)
	Get(ctx context.Context, userID, chatID string) (*dto.ChatDetailResponse, error)
	Messages(ctx context.Context, userID, chatID string, filter models.MessageFilter) ([]models.Message, error)
	Send(ctx context.Context, userID, chatID string, req dto.SendMessageRequest) (*models.Message, error)
	MarkRead(ctx context.Context, userID, chatID string) error
}

type typingService interface {
	Set(ctx context.Context, userID, chatID string, typing bool) error
	List(ctx context.Context, userID, chatID string) ([]models.TypingUser, error)
	Subscribe(ctx context.Context, userID, chatID string) (<-chan models.TypingEvent, error)
}

// ChatHandler exposes chat, message and typing endpoints.
type ChatHandler struct {
	chats  chatService
	typing typingService
}

// NewChatHandler builds a new handler.
func NewChatHandler(chats chatService, typing typingService) *ChatHandler {
	return &ChatHandler{chats: chats, typing: typing}
}

// Open godoc
// @Summary Open a chat about a post
// @Description Returns the existing chat when the caller already has one for the post
// @Tags Chats
// @Accept json
// @Produce json
// @Param payload body dto.CreateChatRequest true "Post reference"
// @Success 200 {object} response.Envelope
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /chats [post]
func (h *ChatHandler) Open(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.CreateChatRequest
	if !bindJSON(c, &req, "invalid chat payload") {
		return
	}
	chat, created, err := h.chats.Open(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if created {
		response.Created(c, chat)
		return
	}
	response.OK(c, chat)
}

// List godoc
// @Summary List own chats
// @Tags Chats
// @Produce json
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /chats [get]
func (h *ChatHandler) List(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	chats, pagination, err := h.chats.List(c.Request.Context(), userID, queryInt(c, "page"), queryInt(c, "limit"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, chats, pagination)
}

// Get godoc
// @Summary Get chat detail
// @Tags Chats
// @Produce json
// @Param id path string true "Chat ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /chats/{id} [get]
func (h *ChatHandler) Get(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	chat, err := h.chats.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, chat)
}

// Messages godoc
// @Summary List messages, newest first
// @Tags Chats
// @Produce json
// @Param id path string true "Chat ID"
// @Param before query string false "RFC3339 cursor"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /chats/{id}/messages [get]
func (h *ChatHandler) Messages(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	before, err := queryTimePtr(c, "before")
	if err != nil {
		response.Error(c, err)
		return
	}
	filter := models.MessageFilter{Before: before, PageSize: queryInt(c, "limit")}
	messages, err := h.chats.Messages(c.Request.Context(), userID, c.Param("id"), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, messages)
}

// Send godoc
// @Summary Send a message
// @Tags Chats
// @Accept json
// @Produce json
// @Param id path string true "Chat ID"
// @Param payload body dto.SendMessageRequest true "Message"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /chats/{id}/messages [post]
func (h *ChatHandler) Send(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.SendMessageRequest
	if !bindJSON(c, &req, "invalid message payload") {
		return
	}
	msg, err := h.chats.Send(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, msg)
}

// MarkRead godoc
// @Summary Mark chat as read
// @Tags Chats
// @Param id path string true "Chat ID"
// @Success 204
// @Security BearerAuth
// @Router /chats/{id}/read [post]
func (h *ChatHandler) MarkRead(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	if err := h.chats.MarkRead(c.Request.Context(), userID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SetTyping godoc
// @Summary Set typing state
// @Tags Chats
// @Accept json
// @Param id path string true "Chat ID"
// @Param payload body dto.TypingRequest true "Typing flag"
// @Success 204
// @Security BearerAuth
// @Router /chats/{id}/typing [post]
func (h *ChatHandler) SetTyping(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.TypingRequest
	if !bindJSON(c, &req, "invalid typing payload") {
		return
	}
	if err := h.typing.Set(c.Request.Context(), userID, c.Param("id"), req.Typing); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Typing godoc
// @Summary List users currently typing
// @Tags Chats
// @Produce json
// @Param id path string true "Chat ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /chats/{id}/typing [get]
func (h *ChatHandler) Typing(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	users, err := h.typing.List(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, users)
}

// TypingStream godoc
// @Summary Stream typing changes
// @Description Server-sent events named "typing" carrying models.TypingEvent
// @Tags Chats
// @Produce text/event-stream
// @Param id path string true "Chat ID"
// @Success 200
// @Security BearerAuth
// @Router /chats/{id}/typing/stream [get]
func (h *ChatHandler) TypingStream(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	events, err := h.typing.Subscribe(ctx, userID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(typingStreamKeepAlive)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, open := <-events:
			if !open {
				return false
			}
			c.SSEvent("typing", ev)
			return true
		case <-ticker.C:
			c.SSEvent("ping", time.Now().UTC().Unix())
			return true
		}
	})
}
