package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studycal-api/internal/dto"
	"github.com/noah-isme/studycal-api/internal/models"
	"github.com/noah-isme/studycal-api/internal/service"
	appErrors "github.com/noah-isme/studycal-api/pkg/errors"
	"github.com/noah-isme/studycal-api/pkg/response"
)

const defaultStudyDuration = time.Hour

type eventService interface {
	CreateEvent(ctx context.Context, userID string, req service.EventRequest) (*models.Event, error)
	UpdateEvent(ctx context.Context, userID, id string, req service.EventRequest) (*models.Event, error)
	DeleteEvent(ctx context.Context, userID, id string) error
	FreeSlots(ctx context.Context, userID string, day time.Time, duration time.Duration) ([]models.TimeSlot, error)
	ScheduleStudySession(ctx context.Context, userID, eventID string, duration time.Duration) (*models.Event, error)
}

// EventHandler manages the user's local events.
type EventHandler struct {
	service eventService
}

// NewEventHandler constructs the handler.
func NewEventHandler(svc eventService) *EventHandler {
	return &EventHandler{service: svc}
}

// Create godoc
// @Summary Create local event
// @Tags Events
// @Accept json
// @Produce json
// @Param payload body service.EventRequest true "Event"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /events [post]
func (h *EventHandler) Create(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid event payload"))
		return
	}
	event, err := h.service.CreateEvent(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}

// Update godoc
// @Summary Update local event
// @Tags Events
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param payload body service.EventRequest true "Event"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /events/{id} [put]
func (h *EventHandler) Update(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid event payload"))
		return
	}
	event, err := h.service.UpdateEvent(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Delete godoc
// @Summary Delete local event
// @Tags Events
// @Param id path string true "Event ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /events/{id} [delete]
func (h *EventHandler) Delete(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.service.DeleteEvent(c.Request.Context(), userID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// FreeSlots godoc
// @Summary Free study slots on a day
// @Tags Events
// @Produce json
// @Param date query string true "Day (YYYY-MM-DD)"
// @Param duration query string false "Minutes or Go duration, default 60"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /events/free-slots [get]
func (h *EventHandler) FreeSlots(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	day, err := time.Parse(dateLayout, c.Query("date"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date is required as YYYY-MM-DD"))
		return
	}
	duration, err := parseDuration(c.Query("duration"))
	if err != nil {
		response.Error(c, err)
		return
	}
	slots, err := h.service.FreeSlots(c.Request.Context(), userID, day, duration)
	if err != nil {
		response.Error(c, err)
		return
	}
	if slots == nil {
		slots = []models.TimeSlot{}
	}
	response.JSON(c, http.StatusOK, dto.FreeSlotsResponse{Date: day.Format(dateLayout), Duration: duration.String(), Slots: slots}, nil)
}

type studySessionRequest struct {
	DurationMinutes int `json:"duration_minutes"`
}

// StudySession godoc
// @Summary Schedule a study session before a deadline
// @Tags Events
// @Accept json
// @Produce json
// @Param id path string true "Event ID or origin ref"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /events/{id}/study-session [post]
func (h *EventHandler) StudySession(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req studySessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid study session payload"))
			return
		}
	}
	duration := defaultStudyDuration
	if req.DurationMinutes > 0 {
		duration = time.Duration(req.DurationMinutes) * time.Minute
	}
	event, err := h.service.ScheduleStudySession(c.Request.Context(), userID, c.Param("id"), duration)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}

func parseDuration(raw string) (time.Duration, error) {
	if raw == "" {
		return defaultStudyDuration, nil
	}
	if minutes, err := strconv.Atoi(raw); err == nil {
		return time.Duration(minutes) * time.Minute, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, "duration must be minutes or a duration like 1h30m")
	}
	return d, nil
}
