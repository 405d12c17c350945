package handler

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studycal-api/internal/dto"
	"github.com/noah-isme/studycal-api/internal/models"
	"github.com/noah-isme/studycal-api/internal/service"
	"github.com/noah-isme/studycal-api/pkg/response"
)

type calendarService interface {
	Window(ctx context.Context, userID string, start, end time.Time) (*models.AggregatedWindow, error)
	Upcoming(ctx context.Context, userID string) (*models.AggregatedWindow, error)
	Export(ctx context.Context, userID string, start, end time.Time, format service.ExportFormat) (*service.ExportFile, error)
	FeedLink(userID string) (*service.FeedLink, error)
	OpenFeed(token string) (*os.File, error)
}

// CalendarHandler serves the aggregated calendar.
type CalendarHandler struct {
	service calendarService
}

// NewCalendarHandler constructs the handler.
func NewCalendarHandler(svc calendarService) *CalendarHandler {
	return &CalendarHandler{service: svc}
}

// Window godoc
// @Summary Aggregated calendar window
// @Description Merges local, LMS and syllabus events. A failing source marks the window partial instead of failing the request.
// @Description A window overtaken by a newer request is returned with superseded set.
// @Tags Calendar
// @Produce json
// @Param start query string true "Start (RFC 3339 or YYYY-MM-DD)"
// @Param end query string true "End (RFC 3339 or YYYY-MM-DD, inclusive)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /calendar/window [get]
func (h *CalendarHandler) Window(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	start, end, err := parseRange(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	window, err := h.service.Window(c.Request.Context(), userID, start, end)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, window, nil)
}

// Upcoming godoc
// @Summary Upcoming assignments
// @Tags Calendar
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /calendar/upcoming [get]
func (h *CalendarHandler) Upcoming(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	window, err := h.service.Upcoming(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.UpcomingResponse{
		Items:         window.Upcoming,
		Partial:       window.Partial,
		FailedSources: window.FailedSources,
		Superseded:    window.Superseded,
	}, nil)
}

// Export godoc
// @Summary Export calendar window
// @Tags Calendar
// @Produce octet-stream
// @Param start query string true "Start"
// @Param end query string true "End"
// @Param format query string false "csv, pdf or ics"
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Router /calendar/export [get]
func (h *CalendarHandler) Export(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	start, end, err := parseRange(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	format, err := service.ParseExportFormat(c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.service.Export(c.Request.Context(), userID, start, end, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

// FeedLink godoc
// @Summary Signed ICS subscription link
// @Tags Calendar
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /calendar/feed-link [get]
func (h *CalendarHandler) FeedLink(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	link, err := h.service.FeedLink(userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.FeedLinkResponse{URL: link.URL, ExpiresAt: link.ExpiresAt}, nil)
}

// Feed godoc
// @Summary Published ICS feed
// @Description Public endpoint authenticated by the signed token in the path.
// @Tags Calendar
// @Produce text/calendar
// @Param token path string true "Signed feed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /feeds/{token} [get]
func (h *CalendarHandler) Feed(c *gin.Context) {
	file, err := h.service.OpenFeed(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	modTime := time.Time{}
	if info, err := file.Stat(); err == nil {
		modTime = info.ModTime()
	}
	c.Header("Content-Type", "text/calendar; charset=utf-8")
	http.ServeContent(c.Writer, c.Request, "studycal.ics", modTime, file)
}
