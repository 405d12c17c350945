package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studycal-api/internal/dto"
	"github.com/noah-isme/studycal-api/internal/models"
	"github.com/noah-isme/studycal-api/internal/service"
	appErrors "github.com/noah-isme/studycal-api/pkg/errors"
	"github.com/noah-isme/studycal-api/pkg/jobs"
	"github.com/noah-isme/studycal-api/pkg/response"
)

type syncRunner interface {
	Sync(ctx context.Context, userID string, retry bool) (*models.SyncOutcome, error)
}

type syncQueue interface {
	Enqueue(userID, jobType string) (string, error)
	Status(userID, id string) (jobs.Status, error)
}

// SyncHandler pushes the calendar to the connected external calendar.
type SyncHandler struct {
	runner    syncRunner
	queue     syncQueue
	apiPrefix string
}

// NewSyncHandler constructs the handler. apiPrefix is used to build job status links.
func NewSyncHandler(runner syncRunner, queue syncQueue, apiPrefix string) *SyncHandler {
	return &SyncHandler{runner: runner, queue: queue, apiPrefix: apiPrefix}
}

// Sync godoc
// @Summary Push the calendar to the external calendar
// @Description With async=true the push is queued and 202 is returned with a job link. A partially rejected push answers 207 with the outcome in data.
// @Tags Sync
// @Produce json
// @Param async query bool false "Queue the push"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 207 {object} response.Envelope
// @Failure 409 {object} response.Envelope "calendar not connected"
// @Router /sync [post]
func (h *SyncHandler) Sync(c *gin.Context) {
	h.run(c, false)
}

// Retry godoc
// @Summary Retry only the events rejected by the previous push
// @Tags Sync
// @Produce json
// @Param async query bool false "Queue the push"
// @Success 200 {object} response.Envelope
// @Router /sync/retry [post]
func (h *SyncHandler) Retry(c *gin.Context) {
	h.run(c, true)
}

// Job godoc
// @Summary Sync job status
// @Tags Sync
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sync/jobs/{id} [get]
func (h *SyncHandler) Job(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	status, err := h.queue.Status(userID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

func (h *SyncHandler) run(c *gin.Context, retry bool) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	async, _ := strconv.ParseBool(c.Query("async"))
	if async {
		jobType := service.JobSyncAll
		if retry {
			jobType = service.JobSyncRetry
		}
		id, err := h.queue.Enqueue(userID, jobType)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Accepted(c, dto.SyncJobAccepted{JobID: id, StatusURL: h.apiPrefix + "/sync/jobs/" + id})
		return
	}

	outcome, err := h.runner.Sync(c.Request.Context(), userID, retry)
	var syncErr *appErrors.SyncError
	switch {
	case err == nil:
		response.JSON(c, http.StatusOK, outcome, nil)
	case errors.As(err, &syncErr):
		response.ErrorWithData(c, err, outcome)
	default:
		response.Error(c, err)
	}
}
