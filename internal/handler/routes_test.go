package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studycal-api/internal/middleware"
	"github.com/noah-isme/studycal-api/internal/models"
	"github.com/noah-isme/studycal-api/internal/service"
	appErrors "github.com/noah-isme/studycal-api/pkg/errors"
	"github.com/noah-isme/studycal-api/pkg/jobs"
)

type fakeIntegrations struct {
	connected []string
}

func (f *fakeIntegrations) List(context.Context, string) ([]models.IntegrationStatus, error) {
	return []models.IntegrationStatus{{Provider: models.ProviderLMS}, {Provider: models.ProviderExternalCalendar}}, nil
}

func (f *fakeIntegrations) Connect(_ context.Context, _ string, provider string, req service.ConnectRequest) (*models.IntegrationStatus, error) {
	if provider != "lms" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown provider")
	}
	f.connected = append(f.connected, req.AccessToken)
	return &models.IntegrationStatus{Provider: models.ProviderLMS, Connected: true}, nil
}

func (f *fakeIntegrations) Disconnect(context.Context, string, string) (*models.IntegrationStatus, error) {
	return &models.IntegrationStatus{Provider: models.ProviderLMS}, nil
}

type fakeCalendar struct {
	start, end time.Time
	format     service.ExportFormat
	feedPath   string
	syncErr    error
	retried    bool
	day        time.Time
	duration   time.Duration
}

func (f *fakeCalendar) Window(_ context.Context, _ string, start, end time.Time) (*models.AggregatedWindow, error) {
	f.start, f.end = start, end
	return &models.AggregatedWindow{RangeStart: start, RangeEnd: end, Events: []models.Event{}, Partial: true, FailedSources: []models.SourceKind{models.SourceLMS}}, nil
}

func (f *fakeCalendar) Upcoming(context.Context, string) (*models.AggregatedWindow, error) {
	return &models.AggregatedWindow{Upcoming: []models.Event{{ID: "lms-1", Title: "Essay"}}, FailedSources: []models.SourceKind{}}, nil
}

func (f *fakeCalendar) Export(_ context.Context, _ string, _, _ time.Time, format service.ExportFormat) (*service.ExportFile, error) {
	f.format = format
	return &service.ExportFile{Filename: "studycal.ics", ContentType: "text/calendar; charset=utf-8", Data: []byte("BEGIN:VCALENDAR")}, nil
}

func (f *fakeCalendar) FeedLink(string) (*service.FeedLink, error) {
	return &service.FeedLink{Token: "tok", URL: "/api/v1/feeds/tok"}, nil
}

func (f *fakeCalendar) OpenFeed(token string) (*os.File, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "feed link expired")
	}
	return os.Open(f.feedPath)
}

func (f *fakeCalendar) CreateEvent(_ context.Context, userID string, req service.EventRequest) (*models.Event, error) {
	return &models.Event{ID: "1", UserID: userID, Title: req.Title}, nil
}

func (f *fakeCalendar) UpdateEvent(context.Context, string, string, service.EventRequest) (*models.Event, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
}

func (f *fakeCalendar) DeleteEvent(context.Context, string, string) error { return nil }

func (f *fakeCalendar) FreeSlots(_ context.Context, _ string, day time.Time, duration time.Duration) ([]models.TimeSlot, error) {
	f.day, f.duration = day, duration
	return nil, nil
}

func (f *fakeCalendar) ScheduleStudySession(context.Context, string, string, time.Duration) (*models.Event, error) {
	return nil, appErrors.Clone(appErrors.ErrConflict, "no free slot before the deadline")
}

func (f *fakeCalendar) Sync(_ context.Context, _ string, retry bool) (*models.SyncOutcome, error) {
	f.retried = retry
	outcome := &models.SyncOutcome{Pushed: 2, Failures: []models.SyncFailure{{OriginRef: "lms:1", Reason: "rejected"}}}
	return outcome, f.syncErr
}

type fakeCourses struct {
	uploaded []byte
	mime     string
}

func (f *fakeCourses) List(context.Context, string) ([]service.CourseSummary, error) {
	return nil, &appErrors.NotConnectedError{Provider: string(models.ProviderLMS)}
}

func (f *fakeCourses) Analysis(_ context.Context, _ string, courseID string) (*models.AnalysisResult, error) {
	return &models.AnalysisResult{CourseID: courseID, Status: models.AnalysisAnalyzed, Insights: models.AnalysisInsights{Summary: "**Bring** a laptop"}}, nil
}

func (f *fakeCourses) Analyze(_ context.Context, _ string, courseID string) (*models.AnalysisResult, error) {
	return nil, &appErrors.AnalysisError{CourseID: courseID, Reason: "timed out"}
}

func (f *fakeCourses) Invalidate(_ context.Context, _ string, courseID string) (*models.AnalysisResult, error) {
	return &models.AnalysisResult{CourseID: courseID, Status: models.AnalysisUnanalyzed}, nil
}

func (f *fakeCourses) UploadSyllabus(_ context.Context, _ string, courseID, _ string, contentType string, body io.Reader) (*models.AnalysisResult, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	f.uploaded, f.mime = data, contentType
	ref := "doc"
	return &models.AnalysisResult{CourseID: courseID, Status: models.AnalysisUnanalyzed, DocumentRef: &ref}, nil
}

type fakeQueue struct {
	enqueued []string
}

func (f *fakeQueue) Enqueue(_ string, jobType string) (string, error) {
	f.enqueued = append(f.enqueued, jobType)
	return "job-1", nil
}

func (f *fakeQueue) Status(userID, id string) (jobs.Status, error) {
	if id != "job-1" {
		return jobs.Status{}, appErrors.Clone(appErrors.ErrNotFound, "sync job not found")
	}
	return jobs.Status{ID: id, Owner: userID, State: jobs.StateSucceeded}, nil
}

type testAPI struct {
	router       *gin.Engine
	integrations *fakeIntegrations
	calendar     *fakeCalendar
	courses      *fakeCourses
	queue        *fakeQueue
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	feed := filepath.Join(t.TempDir(), "feed.ics")
	require.NoError(t, os.WriteFile(feed, []byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"), 0o600))

	api := &testAPI{
		integrations: &fakeIntegrations{},
		calendar:     &fakeCalendar{feedPath: feed},
		courses:      &fakeCourses{},
		queue:        &fakeQueue{},
	}
	auth := func(c *gin.Context) {
		userID := c.GetHeader("X-Test-User")
		if userID == "" {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: userID})
		c.Next()
	}
	api.router = gin.New()
	Handlers{
		Integrations: NewIntegrationHandler(api.integrations),
		Calendar:     NewCalendarHandler(api.calendar),
		Events:       NewEventHandler(api.calendar),
		Courses:      NewCourseHandler(api.courses),
		Sync:         NewSyncHandler(api.calendar, api.queue, "/api/v1"),
		Metrics:      NewMetricsHandler(nil, nil),
	}.Register(api.router, "/api/v1", auth, auth)
	return api
}

func (a *testAPI) do(method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("X-Test-User", "user-1")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestPrivateRoutesRequireAuth(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/integrations", nil)
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	w = httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIntegrationRoutes(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodGet, "/api/v1/integrations", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeEnvelope(t, w)["data"], 2)

	w = api.do(http.MethodPut, "/api/v1/integrations/lms", bytes.NewBufferString(`{"access_token":"token-12345"}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"token-12345"}, api.integrations.connected)

	w = api.do(http.MethodPut, "/api/v1/integrations/dropbox", bytes.NewBufferString(`{"access_token":"token-12345"}`), "application/json")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(http.MethodPut, "/api/v1/integrations/lms", bytes.NewBufferString(`{`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodDelete, "/api/v1/integrations/lms", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCalendarWindowRoute(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodGet, "/api/v1/calendar/window?start=2026-03-01&end=2026-03-31", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC), api.calendar.end)
	data := decodeEnvelope(t, w)["data"].(map[string]any)
	assert.Equal(t, true, data["partial"])
	assert.Equal(t, []any{"lms"}, data["failed_sources"])

	w = api.do(http.MethodGet, "/api/v1/calendar/window?start=2026-03-01T08:00:00Z&end=soon", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodGet, "/api/v1/calendar/upcoming", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeEnvelope(t, w)["data"].(map[string]any)["items"], 1)
}

func TestCalendarExportAndFeed(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodGet, "/api/v1/calendar/export?start=2026-03-01&end=2026-03-31&format=ics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.ExportICS, api.calendar.format)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "studycal.ics")
	assert.Equal(t, "BEGIN:VCALENDAR", w.Body.String())

	w = api.do(http.MethodGet, "/api/v1/calendar/export?start=2026-03-01&end=2026-03-31&format=xlsx", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/feeds/good", nil)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/calendar")
	assert.Contains(t, rec.Body.String(), "BEGIN:VCALENDAR")

	req = httptest.NewRequest(http.MethodGet, "/api/v1/feeds/stale", nil)
	rec = httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCourseRoutesMapDomainErrors(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodGet, "/api/v1/courses", nil, "")
	require.Equal(t, http.StatusConflict, w.Code)
	errBody := decodeEnvelope(t, w)["error"].(map[string]any)
	assert.Equal(t, "NOT_CONNECTED", errBody["code"])
	assert.Equal(t, "LMS", errBody["details"].(map[string]any)["provider"])

	w = api.do(http.MethodPost, "/api/v1/courses/7/analysis", nil, "")
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = api.do(http.MethodGet, "/api/v1/courses/7/analysis", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	insights := decodeEnvelope(t, w)["data"].(map[string]any)["insights"].(map[string]any)
	assert.Contains(t, insights["summary_html"], "<strong>Bring</strong>")

	w = api.do(http.MethodDelete, "/api/v1/courses/7/analysis", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSyllabusUpload(t *testing.T) {
	api := newTestAPI(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "syllabus.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w := api.do(http.MethodPost, "/api/v1/courses/7/syllabus", &body, mw.FormDataContentType())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []byte("%PDF-1.4"), api.courses.uploaded)
	assert.Equal(t, true, decodeEnvelope(t, w)["data"].(map[string]any)["has_document"])

	w = api.do(http.MethodPost, "/api/v1/courses/7/syllabus", bytes.NewBufferString("{}"), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEventRoutes(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodPost, "/api/v1/events", bytes.NewBufferString(`{"title":"Lab","start_time":"2026-03-02T09:00:00Z","end_time":"2026-03-02T10:00:00Z"}`), "application/json")
	require.Equal(t, http.StatusCreated, w.Code)

	w = api.do(http.MethodPut, "/api/v1/events/404", bytes.NewBufferString(`{"title":"Lab"}`), "application/json")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(http.MethodDelete, "/api/v1/events/1", nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = api.do(http.MethodGet, "/api/v1/events/free-slots?date=2026-03-02&duration=90", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 90*time.Minute, api.calendar.duration)
	assert.Equal(t, []any{}, decodeEnvelope(t, w)["data"].(map[string]any)["slots"])

	w = api.do(http.MethodGet, "/api/v1/events/free-slots?date=tomorrow", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodPost, "/api/v1/events/lms-1/study-session", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSyncRoutes(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodPost, "/api/v1/sync", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, api.calendar.retried)

	api.calendar.syncErr = &appErrors.SyncError{Pushed: 2, Failed: []string{"lms:1"}}
	w = api.do(http.MethodPost, "/api/v1/sync/retry", nil, "")
	require.Equal(t, http.StatusMultiStatus, w.Code)
	assert.True(t, api.calendar.retried)
	env := decodeEnvelope(t, w)
	assert.Equal(t, float64(2), env["data"].(map[string]any)["pushed"])
	assert.Equal(t, "SYNC_PARTIAL", env["error"].(map[string]any)["code"])

	w = api.do(http.MethodPost, "/api/v1/sync?async=true", nil, "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{service.JobSyncAll}, api.queue.enqueued)
	assert.Equal(t, "/api/v1/sync/jobs/job-1", decodeEnvelope(t, w)["data"].(map[string]any)["status_url"])

	w = api.do(http.MethodGet, "/api/v1/sync/jobs/job-1", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = api.do(http.MethodGet, "/api/v1/sync/jobs/job-2", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
