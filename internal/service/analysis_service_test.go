package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studycal-api/internal/models"
	appErrors "github.com/noah-isme/studycal-api/pkg/errors"
	"github.com/noah-isme/studycal-api/pkg/storage"
	"github.com/noah-isme/studycal-api/pkg/syllabus"
)

type stubAnalyzer struct {
	calls   atomic.Int32
	resp    *syllabus.AnalyzeResponse
	err     error
	started chan struct{}
	release chan struct{}
	lastReq syllabus.AnalyzeRequest
}

func (a *stubAnalyzer) Analyze(_ context.Context, req syllabus.AnalyzeRequest) (*syllabus.AnalyzeResponse, error) {
	if a.calls.Add(1) == 1 && a.started != nil {
		close(a.started)
	}
	if a.release != nil {
		<-a.release
	}
	a.lastReq = req
	if a.err != nil {
		return nil, a.err
	}
	return a.resp, nil
}

type stubCourses struct {
	courses []models.Course
	err     error
}

func (c stubCourses) FetchCourses(context.Context) ([]models.Course, error) { return c.courses, c.err }

type memoryDocStore struct {
	mu      sync.Mutex
	files   map[string][]byte
	deleted []string
}

func (m *memoryDocStore) SaveStream(name string, r io.Reader, limit int64) (int64, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return 0, err
	}
	if int64(len(data)) > limit {
		return 0, storage.ErrTooLarge
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files == nil {
		m.files = make(map[string][]byte)
	}
	m.files[name] = data
	return int64(len(data)), nil
}

func (m *memoryDocStore) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, name)
	m.deleted = append(m.deleted, name)
	return nil
}

func sampleAnalysis() *syllabus.AnalyzeResponse {
	room := "Hall B"
	return &syllabus.AnalyzeResponse{
		Insights: syllabus.Insights{Summary: "**Intro** course", Policies: []string{"No late work"}},
		RawText:  "syllabus text",
		Events: []syllabus.GeneratedEvent{
			{Title: "Midterm Exam", StartTime: at("2026-03-12T09:00:00Z"), EndTime: at("2026-03-12T11:00:00Z"), Location: &room, Category: "exam"},
			{Title: "Field trip", StartTime: at("2026-04-02T08:00:00Z"), Category: "excursion"},
			{Title: "  midterm   exam ", StartTime: at("2026-03-12T13:00:00Z"), Category: "exam"},
			{Title: "Undated"},
		},
	}
}

func newTestOrchestrator(analyzer *stubAnalyzer, opts ...func(*SyllabusAnalysisOrchestrator)) *SyllabusAnalysisOrchestrator {
	courses := stubCourses{courses: []models.Course{{ID: "7", Name: "Writing", SyllabusText: "Week 1 ..."}}}
	o := NewSyllabusAnalysisOrchestrator("user-1", analyzer, courses, connectedRegistry(models.ProviderLMS), &memoryDocStore{}, nil, nil, AnalysisOptions{Timeout: time.Second, MaxUploadBytes: 64, AllowedMIMETypes: []string{"application/pdf"}}, nil)
	for _, fn := range opts {
		fn(o)
	}
	return o
}

func TestTriggerIsSingleFlightPerCourse(t *testing.T) {
	analyzer := &stubAnalyzer{resp: sampleAnalysis(), started: make(chan struct{}), release: make(chan struct{})}
	o := newTestOrchestrator(analyzer)

	results := make([]*models.AnalysisResult, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = o.Trigger(context.Background(), "7")
	}()
	<-analyzer.started
	assert.Equal(t, models.AnalysisAnalyzing, o.GetResult(context.Background(), "7").Status)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], errs[1] = o.Trigger(context.Background(), "7")
	}()
	time.Sleep(20 * time.Millisecond)
	close(analyzer.release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int32(1), analyzer.calls.Load())
	assert.Equal(t, results[0].GeneratedEvents, results[1].GeneratedEvents)
	assert.Equal(t, models.AnalysisAnalyzed, results[1].Status)
}

func TestTriggerAnalyzedCourseReturnsCachedResult(t *testing.T) {
	analyzer := &stubAnalyzer{resp: sampleAnalysis()}
	o := newTestOrchestrator(analyzer)

	first, err := o.Trigger(context.Background(), "7")
	require.NoError(t, err)
	second, err := o.Trigger(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, int32(1), analyzer.calls.Load())
	assert.Equal(t, first.AnalyzedAt, second.AnalyzedAt)
	assert.Equal(t, "Week 1 ...", analyzer.lastReq.SyllabusText)
}

func TestTriggerDerivesEventsWithStableOrigins(t *testing.T) {
	o := newTestOrchestrator(&stubAnalyzer{resp: sampleAnalysis()})
	res, err := o.Trigger(context.Background(), "7")
	require.NoError(t, err)

	require.Len(t, res.GeneratedEvents, 2)
	exam := res.GeneratedEvents[0]
	assert.Equal(t, models.CategoryExam, exam.Category)
	assert.Equal(t, models.SourceSyllabus, exam.SourceKind)
	assert.Equal(t, "7", *exam.CourseID)
	assert.True(t, strings.HasPrefix(exam.OriginRef, "syllabus:"))
	assert.Len(t, strings.TrimPrefix(exam.OriginRef, "syllabus:"), 16)
	assert.Equal(t, models.CategoryEvent, res.GeneratedEvents[1].Category)
	assert.Len(t, o.DerivedEvents(), 2)
}

func TestRerunAfterInvalidateDoesNotDuplicatePool(t *testing.T) {
	analyzer := &stubAnalyzer{resp: sampleAnalysis()}
	o := newTestOrchestrator(analyzer)

	_, err := o.Trigger(context.Background(), "7")
	require.NoError(t, err)
	res, err := o.Invalidate(context.Background(), "7", nil)
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisUnanalyzed, res.Status)
	assert.Empty(t, o.DerivedEvents())

	_, err = o.Trigger(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, int32(2), analyzer.calls.Load())
	assert.Len(t, o.DerivedEvents(), 2)
}

func TestTriggerRequiresLMSConnection(t *testing.T) {
	analyzer := &stubAnalyzer{resp: sampleAnalysis()}
	o := newTestOrchestrator(analyzer, func(o *SyllabusAnalysisOrchestrator) {
		o.registry = NewIntegrationRegistry()
	})
	_, err := o.Trigger(context.Background(), "7")
	var notConnected *appErrors.NotConnectedError
	require.True(t, errors.As(err, &notConnected))
	assert.Equal(t, "LMS", notConnected.Provider)
	assert.Zero(t, analyzer.calls.Load())
	assert.Equal(t, models.AnalysisUnanalyzed, o.GetResult(context.Background(), "7").Status)
}

func TestTriggerUnknownCourse(t *testing.T) {
	o := newTestOrchestrator(&stubAnalyzer{resp: sampleAnalysis()})
	_, err := o.Trigger(context.Background(), "999")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestTriggerCourseLookupFailureIsSourceError(t *testing.T) {
	o := newTestOrchestrator(&stubAnalyzer{resp: sampleAnalysis()}, func(o *SyllabusAnalysisOrchestrator) {
		o.courses = stubCourses{err: errors.New("lms down")}
	})
	_, err := o.Trigger(context.Background(), "7")
	var sourceErr *appErrors.SourceError
	require.True(t, errors.As(err, &sourceErr))
	assert.Equal(t, "lms", sourceErr.Source)
}

func TestFailedAnalysisCanBeRetried(t *testing.T) {
	analyzer := &stubAnalyzer{err: syllabus.ErrMalformedDocument}
	o := newTestOrchestrator(analyzer)

	_, err := o.Trigger(context.Background(), "7")
	var analysisErr *appErrors.AnalysisError
	require.True(t, errors.As(err, &analysisErr))
	assert.Equal(t, "7", analysisErr.CourseID)
	res := o.GetResult(context.Background(), "7")
	assert.Equal(t, models.AnalysisFailed, res.Status)
	assert.NotEmpty(t, res.FailureReason)
	assert.Empty(t, o.DerivedEvents())

	analyzer.err = nil
	analyzer.resp = sampleAnalysis()
	res, err = o.Trigger(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisAnalyzed, res.Status)
	assert.Equal(t, int32(2), analyzer.calls.Load())
}

func TestTriggerWithoutDocumentFails(t *testing.T) {
	analyzer := &stubAnalyzer{resp: sampleAnalysis()}
	o := newTestOrchestrator(analyzer, func(o *SyllabusAnalysisOrchestrator) {
		o.courses = stubCourses{courses: []models.Course{{ID: "7"}}}
	})
	_, err := o.Trigger(context.Background(), "7")
	var analysisErr *appErrors.AnalysisError
	require.True(t, errors.As(err, &analysisErr))
	assert.Zero(t, analyzer.calls.Load())
}

func TestInvalidateWhileAnalyzingConflicts(t *testing.T) {
	analyzer := &stubAnalyzer{resp: sampleAnalysis(), started: make(chan struct{}), release: make(chan struct{})}
	o := newTestOrchestrator(analyzer)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = o.Trigger(context.Background(), "7")
	}()
	<-analyzer.started

	_, err := o.Invalidate(context.Background(), "7", nil)
	assert.ErrorIs(t, err, appErrors.ErrAnalysisBusy)
	_, err = o.UploadDocument(context.Background(), "7", "syllabus.pdf", "application/pdf", bytes.NewReader([]byte("%PDF")))
	assert.ErrorIs(t, err, appErrors.ErrAnalysisBusy)

	close(analyzer.release)
	<-done
}

func TestUploadDocumentInvalidatesAndSendsReference(t *testing.T) {
	analyzer := &stubAnalyzer{resp: sampleAnalysis()}
	store := &memoryDocStore{}
	o := newTestOrchestrator(analyzer, func(o *SyllabusAnalysisOrchestrator) { o.store = store })

	_, err := o.Trigger(context.Background(), "7")
	require.NoError(t, err)

	res, err := o.UploadDocument(context.Background(), "7", "syllabus.pdf", "application/pdf; charset=binary", bytes.NewReader([]byte("%PDF-1.7")))
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisUnanalyzed, res.Status)
	require.NotNil(t, res.DocumentRef)
	assert.Contains(t, store.files, *res.DocumentRef)

	_, err = o.Trigger(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, *res.DocumentRef, analyzer.lastReq.DocumentRef)
}

func TestUploadDocumentRejectsTypeAndSize(t *testing.T) {
	o := newTestOrchestrator(&stubAnalyzer{resp: sampleAnalysis()})

	_, err := o.UploadDocument(context.Background(), "7", "notes.exe", "application/x-msdownload", bytes.NewReader([]byte("MZ")))
	assert.ErrorIs(t, err, appErrors.ErrUnsupported)

	_, err = o.UploadDocument(context.Background(), "7", "big.pdf", "application/pdf", bytes.NewReader(make([]byte, 65)))
	assert.ErrorIs(t, err, appErrors.ErrPayloadTooBig)
}

func TestAnalysisResultsRehydrateFromCache(t *testing.T) {
	repo := newMemoryCacheRepo()
	cache := NewCacheService(repo, nil, time.Hour, nil, true)
	analyzer := &stubAnalyzer{resp: sampleAnalysis()}
	first := newTestOrchestrator(analyzer, func(o *SyllabusAnalysisOrchestrator) { o.cache = cache })
	_, err := first.Trigger(context.Background(), "7")
	require.NoError(t, err)

	restarted := newTestOrchestrator(analyzer, func(o *SyllabusAnalysisOrchestrator) { o.cache = cache })
	assert.Equal(t, 1, restarted.Hydrate(context.Background()))
	assert.Len(t, restarted.DerivedEvents(), 2)

	res, err := restarted.Trigger(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisAnalyzed, res.Status)
	assert.Equal(t, int32(1), analyzer.calls.Load())
}

func TestFailedRetryAfterInvalidateMatchesRehydratedSession(t *testing.T) {
	repo := newMemoryCacheRepo()
	cache := NewCacheService(repo, nil, time.Hour, nil, true)
	analyzer := &stubAnalyzer{resp: sampleAnalysis()}
	live := newTestOrchestrator(analyzer, func(o *SyllabusAnalysisOrchestrator) { o.cache = cache })

	_, err := live.Trigger(context.Background(), "7")
	require.NoError(t, err)
	require.Len(t, live.DerivedEvents(), 2)

	_, err = live.Invalidate(context.Background(), "7", nil)
	require.NoError(t, err)
	assert.Empty(t, live.DerivedEvents())

	analyzer.err = context.DeadlineExceeded
	_, err = live.Trigger(context.Background(), "7")
	var analysisErr *appErrors.AnalysisError
	require.True(t, errors.As(err, &analysisErr))
	assert.Equal(t, models.AnalysisFailed, live.GetResult(context.Background(), "7").Status)
	assert.Empty(t, live.DerivedEvents())

	restarted := newTestOrchestrator(analyzer, func(o *SyllabusAnalysisOrchestrator) { o.cache = cache })
	assert.Equal(t, 1, restarted.Hydrate(context.Background()))
	assert.Equal(t, models.AnalysisFailed, restarted.GetResult(context.Background(), "7").Status)
	assert.Equal(t, live.DerivedEvents(), restarted.DerivedEvents())
}

func TestListenersSeeEveryTransition(t *testing.T) {
	o := newTestOrchestrator(&stubAnalyzer{resp: sampleAnalysis()})
	var statuses []models.AnalysisStatus
	o.OnChange(func(res models.AnalysisResult) { statuses = append(statuses, res.Status) })

	_, err := o.Trigger(context.Background(), "7")
	require.NoError(t, err)
	_, err = o.Invalidate(context.Background(), "7", nil)
	require.NoError(t, err)
	assert.Equal(t, []models.AnalysisStatus{models.AnalysisAnalyzing, models.AnalysisAnalyzed, models.AnalysisUnanalyzed}, statuses)
}

func TestSyllabusOriginRefIgnoresCaseAndSpacing(t *testing.T) {
	day := at("2026-03-12T09:00:00Z")
	assert.Equal(t, syllabusOriginRef("7", "Midterm Exam", day), syllabusOriginRef("7", "  midterm   EXAM", day.Add(4*time.Hour)))
	assert.NotEqual(t, syllabusOriginRef("7", "Midterm Exam", day), syllabusOriginRef("8", "Midterm Exam", day))
}
