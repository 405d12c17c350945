package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studycal-api/internal/dto"
	"github.com/noah-isme/studycal-api/internal/models"
	"github.com/noah-isme/studycal-api/internal/service"
	appErrors "github.com/noah-isme/studycal-api/pkg/errors"
	"github.com/noah-isme/studycal-api/pkg/response"
)

type courseService interface {
	List(ctx context.Context, userID string) ([]service.CourseSummary, error)
	Analysis(ctx context.Context, userID, courseID string) (*models.AnalysisResult, error)
	Analyze(ctx context.Context, userID, courseID string) (*models.AnalysisResult, error)
	Invalidate(ctx context.Context, userID, courseID string) (*models.AnalysisResult, error)
	UploadSyllabus(ctx context.Context, userID, courseID, filename, contentType string, body io.Reader) (*models.AnalysisResult, error)
}

// CourseHandler exposes LMS courses and syllabus analysis.
type CourseHandler struct {
	service courseService
}

// NewCourseHandler constructs the handler.
func NewCourseHandler(svc courseService) *CourseHandler {
	return &CourseHandler{service: svc}
}

// List godoc
// @Summary List LMS courses
// @Tags Courses
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope "LMS not connected"
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	courses, err := h.service.List(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// Analysis godoc
// @Summary Get syllabus analysis
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/analysis [get]
func (h *CourseHandler) Analysis(c *gin.Context) {
	h.respond(c, http.StatusOK, h.service.Analysis)
}

// Analyze godoc
// @Summary Analyze the course syllabus
// @Description Returns the cached result when already analyzed. Concurrent requests share one analysis.
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope "LMS not connected"
// @Failure 502 {object} response.Envelope
// @Router /courses/{id}/analysis [post]
func (h *CourseHandler) Analyze(c *gin.Context) {
	h.respond(c, http.StatusOK, h.service.Analyze)
}

// Invalidate godoc
// @Summary Invalidate syllabus analysis
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope "analysis in progress"
// @Router /courses/{id}/analysis [delete]
func (h *CourseHandler) Invalidate(c *gin.Context) {
	h.respond(c, http.StatusOK, h.service.Invalidate)
}

// UploadSyllabus godoc
// @Summary Upload a syllabus document
// @Tags Courses
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Course ID"
// @Param file formData file true "Syllabus document"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /courses/{id}/syllabus [post]
func (h *CourseHandler) UploadSyllabus(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "multipart field \"file\" is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	res, err := h.service.UploadSyllabus(c.Request.Context(), userID, c.Param("id"), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewAnalysisResponse(res), nil)
}

func (h *CourseHandler) respond(c *gin.Context, status int, fn func(ctx context.Context, userID, courseID string) (*models.AnalysisResult, error)) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	res, err := fn(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, status, dto.NewAnalysisResponse(res), nil)
}
