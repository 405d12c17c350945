package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/studycal-api/internal/models"
	appErrors "github.com/noah-isme/studycal-api/pkg/errors"
	"github.com/noah-isme/studycal-api/pkg/storage"
	"github.com/noah-isme/studycal-api/pkg/syllabus"
)

type documentAnalyzer interface {
	Analyze(ctx context.Context, req syllabus.AnalyzeRequest) (*syllabus.AnalyzeResponse, error)
}

type courseLister interface {
	FetchCourses(ctx context.Context) ([]models.Course, error)
}

type documentStore interface {
	SaveStream(name string, r io.Reader, limit int64) (int64, error)
	Delete(name string) error
}

// AnalysisOptions tunes a SyllabusAnalysisOrchestrator.
type AnalysisOptions struct {
	Timeout          time.Duration
	CacheTTL         time.Duration
	MaxUploadBytes   int64
	AllowedMIMETypes []string
}

// SyllabusAnalysisOrchestrator runs at most one analysis per course at a time and owns the derived event pool.
type SyllabusAnalysisOrchestrator struct {
	userID   string
	analyzer documentAnalyzer
	courses  courseLister
	registry *IntegrationRegistry
	store    documentStore
	cache    *CacheService
	metrics  *MetricsService
	opts     AnalysisOptions
	logger   *zap.Logger
	now      func() time.Time

	flights singleflight.Group

	mu        sync.RWMutex
	results   map[string]*models.AnalysisResult
	pool      map[string][]models.Event
	listeners []func(models.AnalysisResult)
}

// NewSyllabusAnalysisOrchestrator wires an orchestrator for one user. store, cache and metrics may be nil.
func NewSyllabusAnalysisOrchestrator(userID string, analyzer documentAnalyzer, courses courseLister, registry *IntegrationRegistry, store documentStore, cache *CacheService, metrics *MetricsService, opts AnalysisOptions, logger *zap.Logger) *SyllabusAnalysisOrchestrator {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyllabusAnalysisOrchestrator{
		userID:   userID,
		analyzer: analyzer,
		courses:  courses,
		registry: registry,
		store:    store,
		cache:    cache,
		metrics:  metrics,
		opts:     opts,
		logger:   logger.With(zap.String("user_id", userID)),
		now:      func() time.Time { return time.Now().UTC() },
		results:  make(map[string]*models.AnalysisResult),
		pool:     make(map[string][]models.Event),
	}
}

// OnChange registers a listener for every status transition.
func (s *SyllabusAnalysisOrchestrator) OnChange(fn func(models.AnalysisResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// GetResult returns the known analysis state of courseID without triggering work.
func (s *SyllabusAnalysisOrchestrator) GetResult(ctx context.Context, courseID string) *models.AnalysisResult {
	s.mu.RLock()
	res, ok := s.results[courseID]
	s.mu.RUnlock()
	if ok {
		return res.Clone()
	}

	var cached models.AnalysisResult
	if s.cache.Get(ctx, s.resultKey(courseID), &cached) && cached.CourseID == courseID {
		s.mu.Lock()
		if _, exists := s.results[courseID]; !exists {
			s.adoptLocked(&cached)
		}
		res = s.results[courseID]
		s.mu.Unlock()
		return res.Clone()
	}
	return &models.AnalysisResult{CourseID: courseID, Status: models.AnalysisUnanalyzed, GeneratedEvents: []models.Event{}}
}

// Trigger analyzes courseID unless an analysis is already cached. Concurrent triggers share one call.
func (s *SyllabusAnalysisOrchestrator) Trigger(ctx context.Context, courseID string) (*models.AnalysisResult, error) {
	if res := s.analyzed(courseID); res != nil {
		return res, nil
	}
	ch := s.flights.DoChan(courseID, func() (interface{}, error) {
		return s.run(context.WithoutCancel(ctx), courseID)
	})
	select {
	case out := <-ch:
		if out.Err != nil {
			return nil, out.Err
		}
		return out.Val.(*models.AnalysisResult).Clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate resets courseID to unanalyzed, optionally pointing it at a new document.
// The course's derived events leave the pool until it is analyzed again.
func (s *SyllabusAnalysisOrchestrator) Invalidate(ctx context.Context, courseID string, documentRef *string) (*models.AnalysisResult, error) {
	s.mu.Lock()
	prev := s.results[courseID]
	if prev != nil && prev.Status == models.AnalysisAnalyzing {
		s.mu.Unlock()
		return nil, appErrors.Clone(appErrors.ErrAnalysisBusy, "analysis of this course is in progress")
	}
	res := &models.AnalysisResult{
		CourseID:        courseID,
		Status:          models.AnalysisUnanalyzed,
		GeneratedEvents: []models.Event{},
		DocumentRef:     documentRef,
		UpdatedAt:       s.now(),
	}
	if documentRef == nil && prev != nil {
		res.DocumentRef = prev.DocumentRef
	}
	s.adoptLocked(res)
	out := res.Clone()
	s.mu.Unlock()

	s.persist(ctx, out)
	s.notify(out)
	return out, nil
}

// UploadDocument stores a new syllabus document for courseID and invalidates its analysis.
func (s *SyllabusAnalysisOrchestrator) UploadDocument(ctx context.Context, courseID, filename, contentType string, body io.Reader) (*models.AnalysisResult, error) {
	if s.store == nil {
		return nil, appErrors.Clone(appErrors.ErrUnsupported, "document uploads are disabled")
	}
	if !s.allowedType(contentType) {
		return nil, appErrors.Clone(appErrors.ErrUnsupported, fmt.Sprintf("unsupported document type %q", contentType))
	}
	if s.status(courseID) == models.AnalysisAnalyzing {
		return nil, appErrors.Clone(appErrors.ErrAnalysisBusy, "analysis of this course is in progress")
	}

	name := storage.DocumentPath(s.userID, courseID, filename)
	if _, err := s.store.SaveStream(name, body, s.opts.MaxUploadBytes); err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return nil, appErrors.Clone(appErrors.ErrPayloadTooBig, fmt.Sprintf("document exceeds %d bytes", s.opts.MaxUploadBytes))
		}
		return nil, err
	}
	res, err := s.Invalidate(ctx, courseID, &name)
	if err != nil {
		if delErr := s.store.Delete(name); delErr != nil {
			s.logger.Warn("failed to remove orphaned document", zap.String("path", name), zap.Error(delErr))
		}
		return nil, err
	}
	return res, nil
}

// DerivedEvents returns a snapshot of every analyzed course's events.
func (s *SyllabusAnalysisOrchestrator) DerivedEvents() []models.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.pool))
	for id := range s.pool {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []models.Event
	for _, id := range ids {
		out = append(out, s.pool[id]...)
	}
	return out
}

// Hydrate restores results written through by earlier sessions.
func (s *SyllabusAnalysisOrchestrator) Hydrate(ctx context.Context) int {
	var ids []string
	if !s.cache.Get(ctx, s.indexKey(), &ids) {
		return 0
	}
	restored := 0
	for _, id := range ids {
		var res models.AnalysisResult
		if !s.cache.Get(ctx, s.resultKey(id), &res) || res.CourseID != id {
			continue
		}
		s.mu.Lock()
		if _, exists := s.results[id]; !exists {
			s.adoptLocked(&res)
			restored++
		}
		s.mu.Unlock()
	}
	return restored
}

func (s *SyllabusAnalysisOrchestrator) run(ctx context.Context, courseID string) (*models.AnalysisResult, error) {
	if res := s.analyzed(courseID); res != nil {
		return res, nil
	}
	if _, err := s.registry.RequireConnected(models.ProviderLMS); err != nil {
		return nil, err
	}
	course, err := s.resolveCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	docRef := s.documentRef(courseID)
	s.transition(courseID, models.AnalysisAnalyzing, docRef)

	if docRef == nil && strings.TrimSpace(course.SyllabusText) == "" {
		return nil, s.fail(ctx, courseID, "no syllabus document is available for this course", nil)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	req := syllabus.AnalyzeRequest{CourseID: courseID, CourseName: course.Name, SyllabusText: course.SyllabusText}
	if docRef != nil {
		req.DocumentRef = *docRef
	}
	started := time.Now()
	resp, err := s.analyzer.Analyze(callCtx, req)
	s.metrics.ObserveAnalysis(time.Since(started), err)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "document analysis timed out"
		}
		return nil, s.fail(ctx, courseID, reason, err)
	}

	analyzedAt := s.now()
	events := deriveEvents(courseID, resp.Events)
	res := &models.AnalysisResult{
		CourseID: courseID,
		Status:   models.AnalysisAnalyzed,
		Insights: models.AnalysisInsights{
			Summary:      resp.Insights.Summary,
			OfficeHours:  resp.Insights.OfficeHours,
			GradingScale: resp.Insights.GradingScale,
			Policies:     resp.Insights.Policies,
		},
		RawText:         resp.RawText,
		GeneratedEvents: events,
		DocumentRef:     docRef,
		AnalyzedAt:      &analyzedAt,
		UpdatedAt:       analyzedAt,
	}

	s.mu.Lock()
	s.adoptLocked(res)
	out := res.Clone()
	s.mu.Unlock()

	s.logger.Info("syllabus analyzed", zap.String("course_id", courseID), zap.Int("events", len(events)))
	s.persist(ctx, out)
	s.notify(out)
	return out, nil
}

func (s *SyllabusAnalysisOrchestrator) resolveCourse(ctx context.Context, courseID string) (*models.Course, error) {
	courses, err := s.courses.FetchCourses(ctx)
	if err != nil {
		var notConnected *appErrors.NotConnectedError
		if errors.As(err, &notConnected) {
			return nil, err
		}
		return nil, &appErrors.SourceError{Source: string(models.SourceLMS), Err: err}
	}
	for i := range courses {
		if courses[i].ID == courseID {
			return &courses[i], nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
}

func (s *SyllabusAnalysisOrchestrator) fail(ctx context.Context, courseID, reason string, cause error) error {
	s.mu.Lock()
	res := &models.AnalysisResult{
		CourseID:        courseID,
		Status:          models.AnalysisFailed,
		GeneratedEvents: []models.Event{},
		FailureReason:   reason,
		UpdatedAt:       s.now(),
	}
	if prev := s.results[courseID]; prev != nil {
		res.DocumentRef = prev.DocumentRef
	}
	s.adoptLocked(res)
	out := res.Clone()
	s.mu.Unlock()

	s.logger.Warn("syllabus analysis failed", zap.String("course_id", courseID), zap.String("reason", reason), zap.Error(cause))
	s.persist(ctx, out)
	s.notify(out)
	return &appErrors.AnalysisError{CourseID: courseID, Reason: reason, Err: cause}
}

func (s *SyllabusAnalysisOrchestrator) transition(courseID string, status models.AnalysisStatus, docRef *string) {
	s.mu.Lock()
	res := &models.AnalysisResult{CourseID: courseID, Status: status, GeneratedEvents: []models.Event{}, DocumentRef: docRef, UpdatedAt: s.now()}
	s.adoptLocked(res)
	out := res.Clone()
	s.mu.Unlock()
	s.notify(out)
}

// adoptLocked stores res. Only analyzed courses contribute to the pool.
func (s *SyllabusAnalysisOrchestrator) adoptLocked(res *models.AnalysisResult) {
	s.results[res.CourseID] = res
	if res.Status == models.AnalysisAnalyzed {
		s.pool[res.CourseID] = append([]models.Event(nil), res.GeneratedEvents...)
		return
	}
	delete(s.pool, res.CourseID)
}

func (s *SyllabusAnalysisOrchestrator) persist(ctx context.Context, res *models.AnalysisResult) {
	if !s.cache.Enabled() {
		return
	}
	s.cache.Set(ctx, s.resultKey(res.CourseID), res, s.opts.CacheTTL)

	s.mu.RLock()
	ids := make([]string, 0, len(s.results))
	for id := range s.results {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	s.cache.Set(ctx, s.indexKey(), ids, s.opts.CacheTTL)
}

func (s *SyllabusAnalysisOrchestrator) notify(res *models.AnalysisResult) {
	s.mu.RLock()
	listeners := s.listeners
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(*res)
	}
}

func (s *SyllabusAnalysisOrchestrator) analyzed(courseID string) *models.AnalysisResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if res, ok := s.results[courseID]; ok && res.Status == models.AnalysisAnalyzed {
		return res.Clone()
	}
	return nil
}

func (s *SyllabusAnalysisOrchestrator) status(courseID string) models.AnalysisStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if res, ok := s.results[courseID]; ok {
		return res.Status
	}
	return models.AnalysisUnanalyzed
}

func (s *SyllabusAnalysisOrchestrator) documentRef(courseID string) *string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if res, ok := s.results[courseID]; ok && res.DocumentRef != nil {
		ref := *res.DocumentRef
		return &ref
	}
	return nil
}

func (s *SyllabusAnalysisOrchestrator) allowedType(contentType string) bool {
	if len(s.opts.AllowedMIMETypes) == 0 {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	for _, allowed := range s.opts.AllowedMIMETypes {
		if strings.EqualFold(mediaType, allowed) {
			return true
		}
	}
	return false
}

func (s *SyllabusAnalysisOrchestrator) resultKey(courseID string) string {
	return fmt.Sprintf("studycal:analysis:%s:course:%s", s.userID, courseID)
}

func (s *SyllabusAnalysisOrchestrator) indexKey() string {
	return fmt.Sprintf("studycal:analysis:%s:index", s.userID)
}

// deriveEvents converts generated items into pool events keyed by course, title and date.
func deriveEvents(courseID string, generated []syllabus.GeneratedEvent) []models.Event {
	out := make([]models.Event, 0, len(generated))
	seen := make(map[string]bool, len(generated))
	for _, g := range generated {
		if g.StartTime.IsZero() || strings.TrimSpace(g.Title) == "" {
			continue
		}
		start := g.StartTime.UTC()
		end := g.EndTime.UTC()
		if end.Before(start) {
			end = start
		}
		ref := syllabusOriginRef(courseID, g.Title, start)
		if seen[ref] {
			continue
		}
		seen[ref] = true
		course := courseID
		out = append(out, models.Event{
			ID:          "syl-" + strings.TrimPrefix(ref, "syllabus:"),
			SourceKind:  models.SourceSyllabus,
			Title:       strings.TrimSpace(g.Title),
			Description: g.Description,
			StartTime:   start,
			EndTime:     end,
			Location:    g.Location,
			Category:    models.NormalizeCategory(g.Category),
			Weight:      g.Weight,
			CourseID:    &course,
			OriginRef:   ref,
		})
	}
	return out
}

func syllabusOriginRef(courseID, title string, start time.Time) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(title)), " ")
	sum := sha256.Sum256([]byte(courseID + "|" + normalized + "|" + start.Format("2006-01-02")))
	return "syllabus:" + hex.EncodeToString(sum[:])[:16]
}
