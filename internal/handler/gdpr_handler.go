package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tutorconnect/tutorconnect-api/internal/dto"
	"github.com/tutorconnect/tutorconnect-api/internal/models"
	appErrors "github.com/tutorconnect/tutorconnect-api/pkg/errors"
	"github.com/tutorconnect/tutorconnect-api/pkg/response"
)

type gdprService interface {
	Create(ctx context.Context, userID string, req dto.CreateDataRequest) (*dto.DataRequestResponse, error)
	ListOwn(ctx context.Context, userID string, page, pageSize int) ([]dto.DataRequestResponse, *models.Pagination, error)
	ListAll(ctx context.Context, filter models.DataRequestFilter) ([]dto.DataRequestResponse, *models.Pagination, error)
	Download(ctx context.Context, token string) (io.ReadCloser, string, string, error)
}

// GDPRHandler exposes data-subject request endpoints.
type GDPRHandler struct {
	service gdprService
}

// NewGDPRHandler builds a new handler.
func NewGDPRHandler(service gdprService) *GDPRHandler {
	return &GDPRHandler{service: service}
}

// Create godoc
// @Summary Request a data export or erasure
// @Description The request is processed in the background
// @Tags GDPR
// @Accept json
// @Produce json
// @Param payload body dto.CreateDataRequest true "Request type"
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /gdpr/requests [post]
func (h *GDPRHandler) Create(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.CreateDataRequest
	if !bindJSON(c, &req, "invalid data request payload") {
		return
	}
	req.Type = models.DataRequestType(strings.ToUpper(string(req.Type)))
	req.Format = models.ExportFormat(strings.ToUpper(string(req.Format)))

	res, err := h.service.Create(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, res)
}

// ListOwn godoc
// @Summary List own data requests
// @Tags GDPR
// @Produce json
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /gdpr/requests [get]
func (h *GDPRHandler) ListOwn(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	items, pagination, err := h.service.ListOwn(c.Request.Context(), userID, queryInt(c, "page"), queryInt(c, "limit"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// ListAll godoc
// @Summary List all data requests
// @Tags Admin
// @Produce json
// @Param userId query string false "User ID"
// @Param status query string false "PENDING, PROCESSING, COMPLETED or FAILED"
// @Param type query string false "EXPORT or ERASURE"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/gdpr/requests [get]
func (h *GDPRHandler) ListAll(c *gin.Context) {
	filter := models.DataRequestFilter{
		UserID:   strings.TrimSpace(c.Query("userId")),
		Page:     queryInt(c, "page"),
		PageSize: queryInt(c, "limit"),
	}
	if raw := strings.ToUpper(strings.TrimSpace(c.Query("status"))); raw != "" {
		status := models.DataRequestStatus(raw)
		filter.Status = &status
	}
	if raw := strings.ToUpper(strings.TrimSpace(c.Query("type"))); raw != "" {
		reqType := models.DataRequestType(raw)
		filter.Type = &reqType
	}
	items, pagination, err := h.service.ListAll(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Download godoc
// @Summary Download an export via signed token
// @Tags GDPR
// @Produce application/octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /gdpr/exports/download [get]
func (h *GDPRHandler) Download(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	rc, contentType, filename, err := h.service.Download(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer rc.Close()
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, -1, contentType, rc, nil)
}
