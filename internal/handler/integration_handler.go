package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studycal-api/internal/models"
	"github.com/noah-isme/studycal-api/internal/service"
	appErrors "github.com/noah-isme/studycal-api/pkg/errors"
	"github.com/noah-isme/studycal-api/pkg/response"
)

type integrationService interface {
	List(ctx context.Context, userID string) ([]models.IntegrationStatus, error)
	Connect(ctx context.Context, userID, provider string, req service.ConnectRequest) (*models.IntegrationStatus, error)
	Disconnect(ctx context.Context, userID, provider string) (*models.IntegrationStatus, error)
}

// IntegrationHandler manages provider connections.
type IntegrationHandler struct {
	service integrationService
}

// NewIntegrationHandler constructs the handler.
func NewIntegrationHandler(svc integrationService) *IntegrationHandler {
	return &IntegrationHandler{service: svc}
}

// List godoc
// @Summary List integrations
// @Tags Integrations
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /integrations [get]
func (h *IntegrationHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	statuses, err := h.service.List(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, statuses, nil)
}

// Connect godoc
// @Summary Connect a provider
// @Tags Integrations
// @Accept json
// @Produce json
// @Param provider path string true "lms or external_calendar"
// @Param payload body service.ConnectRequest true "Access token"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /integrations/{provider} [put]
func (h *IntegrationHandler) Connect(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid integration payload"))
		return
	}
	status, err := h.service.Connect(c.Request.Context(), userID, c.Param("provider"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Disconnect godoc
// @Summary Disconnect a provider
// @Tags Integrations
// @Produce json
// @Param provider path string true "lms or external_calendar"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /integrations/{provider} [delete]
func (h *IntegrationHandler) Disconnect(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	status, err := h.service.Disconnect(c.Request.Context(), userID, c.Param("provider"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}
