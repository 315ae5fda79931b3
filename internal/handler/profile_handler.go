package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tutorconnect/tutorconnect-api/internal/dto"
	appErrors "github.com/tutorconnect/tutorconnect-api/pkg/errors"
	"github.com/tutorconnect/tutorconnect-api/pkg/response"
)

type profileService interface {
	Get(ctx context.Context, userID string) (*dto.ProfileResponse, error)
	Update(ctx context.Context, userID string, req dto.UpdateProfileRequest) (*dto.ProfileResponse, error)
	UploadAvatar(ctx context.Context, userID, contentType string, size int64, r io.Reader) (*dto.ProfileResponse, error)
	Avatar(ctx context.Context, userID string) (io.ReadCloser, string, error)
	GetPublic(ctx context.Context, viewerID, userID string) (*dto.PublicProfileResponse, error)
	Stats(ctx context.Context, userID string) (*dto.UserStatsResponse, error)
}

// ProfileHandler exposes profile endpoints.
type ProfileHandler struct {
	service profileService
}

// NewProfileHandler builds a new handler.
func NewProfileHandler(service profileService) *ProfileHandler {
	return &ProfileHandler{service: service}
}

// Get godoc
// @Summary Get own profile
// @Tags Profile
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /profile [get]
func (h *ProfileHandler) Get(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	profile, err := h.service.Get(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, profile)
}

// Update godoc
// @Summary Update own profile
// @Tags Profile
// @Accept json
// @Produce json
// @Param payload body dto.UpdateProfileRequest true "Profile fields"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /profile [patch]
func (h *ProfileHandler) Update(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.UpdateProfileRequest
	if !bindJSON(c, &req, "invalid profile payload") {
		return
	}
	profile, err := h.service.Update(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, profile)
}

// UploadAvatar godoc
// @Summary Upload avatar
// @Tags Profile
// @Accept multipart/form-data
// @Produce json
// @Param avatar formData file true "JPEG, PNG or WebP image"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Security BearerAuth
// @Router /profile/avatar [put]
func (h *ProfileHandler) UploadAvatar(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	header, err := c.FormFile("avatar")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "avatar file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "cannot read avatar file"))
		return
	}
	defer file.Close()

	profile, err := h.service.UploadAvatar(c.Request.Context(), userID, header.Header.Get("Content-Type"), header.Size, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, profile)
}

// Avatar godoc
// @Summary Fetch a user's avatar image
// @Tags Profile
// @Produce image/jpeg,image/png,image/webp
// @Param id path string true "User ID"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /users/{id}/avatar [get]
func (h *ProfileHandler) Avatar(c *gin.Context) {
	rc, contentType, err := h.service.Avatar(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer rc.Close()
	c.Header("Cache-Control", "private, max-age=300")
	c.DataFromReader(http.StatusOK, -1, contentType, rc, nil)
}

// GetPublic godoc
// @Summary Get public profile
// @Description Private fields are hidden unless the owner enabled them
// @Tags Profile
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{id} [get]
func (h *ProfileHandler) GetPublic(c *gin.Context) {
	viewerID := ""
	if claims := claimsFromContext(c); claims != nil {
		viewerID = claims.UserID
	}
	profile, err := h.service.GetPublic(c.Request.Context(), viewerID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, profile)
}

// Stats godoc
// @Summary Get session statistics and badges
// @Tags Profile
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Router /users/{id}/stats [get]
func (h *ProfileHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, stats)
}
