package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tutorconnect/tutorconnect-api/internal/dto"
	"github.com/tutorconnect/tutorconnect-api/internal/models"
	appErrors "github.com/tutorconnect/tutorconnect-api/pkg/errors"
	"github.com/tutorconnect/tutorconnect-api/pkg/response"
)

type appointmentService interface {
	Create(ctx context.Context, userID, chatID string, req dto.CreateAppointmentRequest) (*models.Appointment, error)
	Accept(ctx context.Context, userID, id string) (*models.Appointment, error)
	Cancel(ctx context.Context, userID, id string, req dto.CancelAppointmentRequest) (*models.Appointment, error)
	ListForChat(ctx context.Context, userID, chatID string, query dto.AppointmentListQuery) ([]models.Appointment, *models.Pagination, error)
	ListForUser(ctx context.Context, userID string, query dto.AppointmentListQuery) ([]models.Appointment, *models.Pagination, error)
	SetReady(ctx context.Context, userID, id string, req dto.ReadyRequest) (*models.ReadinessResult, error)
	Sweep(ctx context.Context, chatID string) (*dto.SweepResponse, error)
}

// AppointmentHandler exposes appointment lifecycle endpoints.
type AppointmentHandler struct {
	service appointmentService
}

// NewAppointmentHandler builds a new handler.
func NewAppointmentHandler(service appointmentService) *AppointmentHandler {
	return &AppointmentHandler{service: service}
}

// Create godoc
// @Summary Propose an appointment
// @Tags Appointments
// @Accept json
// @Produce json
// @Param id path string true "Chat ID"
// @Param payload body dto.CreateAppointmentRequest true "Appointment proposal"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /chats/{id}/appointments [post]
func (h *AppointmentHandler) Create(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.CreateAppointmentRequest
	if !bindJSON(c, &req, "invalid appointment payload") {
		return
	}
	appt, err := h.service.Create(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, appt)
}

// ListForChat godoc
// @Summary List a chat's appointments
// @Tags Appointments
// @Produce json
// @Param id path string true "Chat ID"
// @Param status query string false "Status filter"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /chats/{id}/appointments [get]
func (h *AppointmentHandler) ListForChat(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	items, pagination, err := h.service.ListForChat(c.Request.Context(), userID, c.Param("id"), appointmentQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// ListOwn godoc
// @Summary List own appointments
// @Tags Appointments
// @Produce json
// @Param status query string false "Status filter"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /appointments [get]
func (h *AppointmentHandler) ListOwn(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	items, pagination, err := h.service.ListForUser(c.Request.Context(), userID, appointmentQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Accept godoc
// @Summary Accept a proposed appointment
// @Tags Appointments
// @Produce json
// @Param id path string true "Appointment ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /appointments/{id}/accept [post]
func (h *AppointmentHandler) Accept(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	appt, err := h.service.Accept(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, appt)
}

// Cancel godoc
// @Summary Cancel an appointment
// @Tags Appointments
// @Accept json
// @Produce json
// @Param id path string true "Appointment ID"
// @Param payload body dto.CancelAppointmentRequest true "Reason"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /appointments/{id}/cancel [post]
func (h *AppointmentHandler) Cancel(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.CancelAppointmentRequest
	if !bindJSON(c, &req, "cancellation reason required") {
		return
	}
	appt, err := h.service.Cancel(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, appt)
}

// Ready godoc
// @Summary Mark the session as completed from the caller's side
// @Tags Appointments
// @Accept json
// @Produce json
// @Param id path string true "Appointment ID"
// @Param payload body dto.ReadyRequest true "Ready flag"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /appointments/{id}/ready [post]
func (h *AppointmentHandler) Ready(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.ReadyRequest
	if !bindJSON(c, &req, "invalid readiness payload") {
		return
	}
	if req.Ready == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "ready is required"))
		return
	}
	res, err := h.service.SetReady(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// Sweep godoc
// @Summary Run the expiry sweep now
// @Tags Admin
// @Produce json
// @Param chatId query string false "Restrict to one chat"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/appointments/sweep [post]
func (h *AppointmentHandler) Sweep(c *gin.Context) {
	res, err := h.service.Sweep(c.Request.Context(), strings.TrimSpace(c.Query("chatId")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

func appointmentQuery(c *gin.Context) dto.AppointmentListQuery {
	query := dto.AppointmentListQuery{Page: queryInt(c, "page"), PageSize: queryInt(c, "limit")}
	if raw := strings.ToUpper(strings.TrimSpace(c.Query("status"))); raw != "" {
		status := models.AppointmentStatus(raw)
		query.Status = &status
	}
	return query
}
