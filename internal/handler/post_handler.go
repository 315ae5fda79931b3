package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tutorconnect/tutorconnect-api/internal/dto"
	"github.com/tutorconnect/tutorconnect-api/internal/middleware"
	"github.com/tutorconnect/tutorconnect-api/internal/models"
	appErrors "github.com/tutorconnect/tutorconnect-api/pkg/errors"
	"github.com/tutorconnect/tutorconnect-api/pkg/response"
)

type postService interface {
	List(ctx context.Context, filter models.PostFilter) (*dto.PostListResponse, bool, error)
	Get(ctx context.Context, id string) (*models.Post, error)
	Create(ctx context.Context, authorID string, req dto.CreatePostRequest) (*models.Post, error)
	Update(ctx context.Context, userID, id string, req dto.UpdatePostRequest) (*models.Post, error)
	Delete(ctx context.Context, userID, id string) error
}

// PostHandler exposes tutoring post endpoints.
type PostHandler struct {
	service postService
}

// NewPostHandler builds a new handler.
func NewPostHandler(service postService) *PostHandler {
	return &PostHandler{service: service}
}

// List godoc
// @Summary Search posts
// @Tags Posts
// @Produce json
// @Param type query string false "TEACHER or STUDENT"
// @Param subject query string false "Subject"
// @Param location query string false "Location"
// @Param online query bool false "Online only"
// @Param minRate query int false "Minimum hourly rate"
// @Param maxRate query int false "Maximum hourly rate"
// @Param authorId query string false "Author ID"
// @Param search query string false "Free text search"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param sort query string false "created_at, hourly_rate or title"
// @Param order query string false "asc or desc"
// @Success 200 {object} response.Envelope
// @Router /posts [get]
func (h *PostHandler) List(c *gin.Context) {
	filter, err := postFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	res, hit, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	pagination := res.Pagination
	response.JSON(c, http.StatusOK, res.Items, &pagination, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get post
// @Tags Posts
// @Produce json
// @Param id path string true "Post ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /posts/{id} [get]
func (h *PostHandler) Get(c *gin.Context) {
	post, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, post)
}

// Create godoc
// @Summary Create post
// @Tags Posts
// @Accept json
// @Produce json
// @Param payload body dto.CreatePostRequest true "Post payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /posts [post]
func (h *PostHandler) Create(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.CreatePostRequest
	if !bindJSON(c, &req, "invalid post payload") {
		return
	}
	post, err := h.service.Create(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, post)
}

// Update godoc
// @Summary Update post
// @Tags Posts
// @Accept json
// @Produce json
// @Param id path string true "Post ID"
// @Param payload body dto.UpdatePostRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /posts/{id} [patch]
func (h *PostHandler) Update(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.UpdatePostRequest
	if !bindJSON(c, &req, "invalid post payload") {
		return
	}
	post, err := h.service.Update(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, post)
}

// Delete godoc
// @Summary Deactivate post
// @Tags Posts
// @Param id path string true "Post ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /posts/{id} [delete]
func (h *PostHandler) Delete(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func postFilterFromQuery(c *gin.Context) (models.PostFilter, error) {
	filter := models.PostFilter{
		Subject:   strings.TrimSpace(c.Query("subject")),
		Location:  strings.TrimSpace(c.Query("location")),
		AuthorID:  strings.TrimSpace(c.Query("authorId")),
		Search:    strings.TrimSpace(c.Query("search")),
		Page:      queryInt(c, "page"),
		PageSize:  queryInt(c, "limit"),
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}
	if raw := strings.ToUpper(strings.TrimSpace(c.Query("type"))); raw != "" {
		postType := models.PostType(raw)
		if postType != models.PostTypeTeacher && postType != models.PostTypeStudent {
			return filter, appErrors.Clone(appErrors.ErrValidation, "type must be TEACHER or STUDENT")
		}
		filter.Type = &postType
	}
	var err error
	if filter.Online, err = queryBoolPtr(c, "online"); err != nil {
		return filter, err
	}
	if filter.MinRate, err = queryIntPtr(c, "minRate"); err != nil {
		return filter, err
	}
	if filter.MaxRate, err = queryIntPtr(c, "maxRate"); err != nil {
		return filter, err
	}
	return filter, nil
}
