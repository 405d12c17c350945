package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/teambition/rrule-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/studycal-api/internal/models"
	appErrors "github.com/noah-isme/studycal-api/pkg/errors"
	"github.com/noah-isme/studycal-api/pkg/lms"
)

// EventSource is one origin of calendar events.
type EventSource interface {
	Kind() models.SourceKind
	// Available is the source's gate; unavailable sources are skipped rather than failed.
	Available() bool
	FetchEvents(ctx context.Context, window models.TimeWindow) ([]models.Event, error)
}

type localEventLister interface {
	ListInRange(ctx context.Context, userID string, start, end time.Time) ([]models.Event, error)
}

type credentialResolver interface {
	Resolve(ctx context.Context, userID, ref string) (string, error)
}

const occurrenceLayout = "20060102T150405Z"

// LocalEventSource reads the user's own events and expands their recurrence rules.
type LocalEventSource struct {
	userID         string
	repo           localEventLister
	loc            *time.Location
	maxOccurrences int
	logger         *zap.Logger
}

// NewLocalEventSource builds the local adapter. Recurrences expand in loc.
func NewLocalEventSource(userID string, repo localEventLister, loc *time.Location, maxOccurrences int, logger *zap.Logger) *LocalEventSource {
	if loc == nil {
		loc = time.UTC
	}
	if maxOccurrences <= 0 {
		maxOccurrences = 500
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalEventSource{userID: userID, repo: repo, loc: loc, maxOccurrences: maxOccurrences, logger: logger}
}

func (s *LocalEventSource) Kind() models.SourceKind { return models.SourceLocal }

func (s *LocalEventSource) Available() bool { return true }

func (s *LocalEventSource) FetchEvents(ctx context.Context, window models.TimeWindow) ([]models.Event, error) {
	stored, err := s.repo.ListInRange(ctx, s.userID, window.Start, window.End)
	if err != nil {
		return nil, err
	}
	out := make([]models.Event, 0, len(stored))
	for _, ev := range stored {
		ev.SourceKind = models.SourceLocal
		if ev.Recurrence == "" {
			ev.OriginRef = localOriginRef(ev)
			out = append(out, ev)
			continue
		}
		out = append(out, s.expand(ev, window)...)
	}
	return out, nil
}

// expand returns the occurrences of a recurring event starting inside window.
func (s *LocalEventSource) expand(ev models.Event, window models.TimeWindow) []models.Event {
	rule, err := rrule.StrToRRule(strings.TrimPrefix(strings.TrimSpace(ev.Recurrence), "RRULE:"))
	if err != nil {
		s.logger.Warn("invalid recurrence rule", zap.String("event_id", ev.ID), zap.String("rrule", ev.Recurrence), zap.Error(err))
		ev.OriginRef = localOriginRef(ev)
		return []models.Event{ev}
	}
	rule.DTStart(ev.StartTime.In(s.loc))

	starts := rule.Between(window.Start.In(s.loc), window.End.In(s.loc), true)
	if len(starts) > s.maxOccurrences {
		s.logger.Warn("recurrence truncated", zap.String("event_id", ev.ID), zap.Int("occurrences", len(starts)))
		starts = starts[:s.maxOccurrences]
	}
	duration := ev.EndTime.Sub(ev.StartTime)
	out := make([]models.Event, 0, len(starts))
	for _, start := range starts {
		occ := ev
		occ.StartTime = start.UTC()
		occ.EndTime = occ.StartTime.Add(duration)
		occ.OriginRef = "local:" + ev.ID + "@" + occ.StartTime.Format(occurrenceLayout)
		out = append(out, occ)
	}
	return out
}

type lmsAPI interface {
	Courses(ctx context.Context, token string) ([]lms.Course, error)
	Assignments(ctx context.Context, token, courseID string) ([]lms.Assignment, error)
}

// LMSFeedSource turns dated LMS assignments into events. Every call passes the LMS gate.
type LMSFeedSource struct {
	userID      string
	client      lmsAPI
	registry    *IntegrationRegistry
	creds       credentialResolver
	concurrency int
	courseTTL   time.Duration
	logger      *zap.Logger
	now         func() time.Time

	mu        sync.Mutex
	courses   []models.Course
	coursesAt time.Time
}

// NewLMSFeedSource builds the LMS adapter. Course listings are reused for courseTTL.
func NewLMSFeedSource(userID string, client lmsAPI, registry *IntegrationRegistry, creds credentialResolver, courseTTL time.Duration, logger *zap.Logger) *LMSFeedSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LMSFeedSource{
		userID:      userID,
		client:      client,
		registry:    registry,
		creds:       creds,
		concurrency: 4,
		courseTTL:   courseTTL,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *LMSFeedSource) Kind() models.SourceKind { return models.SourceLMS }

func (s *LMSFeedSource) Available() bool { return s.registry.IsConnected(models.ProviderLMS) }

// FetchCourses lists the user's LMS courses.
func (s *LMSFeedSource) FetchCourses(ctx context.Context) ([]models.Course, error) {
	token, err := s.token(ctx)
	if err != nil {
		return nil, err
	}
	return s.fetchCourses(ctx, token)
}

// ForgetCourses drops the cached course listing.
func (s *LMSFeedSource) ForgetCourses() {
	s.mu.Lock()
	s.courses = nil
	s.mu.Unlock()
}

func (s *LMSFeedSource) FetchEvents(ctx context.Context, window models.TimeWindow) ([]models.Event, error) {
	token, err := s.token(ctx)
	if err != nil {
		return nil, err
	}
	courses, err := s.fetchCourses(ctx, token)
	if err != nil {
		return nil, err
	}

	var (
		mu  sync.Mutex
		out []models.Event
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, course := range courses {
		courseID := course.ID
		g.Go(func() error {
			assignments, err := s.client.Assignments(gctx, token, courseID)
			if err != nil {
				return s.classify(err)
			}
			events := make([]models.Event, 0, len(assignments))
			for _, a := range assignments {
				if ev, ok := assignmentEvent(a, courseID); ok && window.Contains(ev.StartTime) {
					events = append(events, ev)
				}
			}
			mu.Lock()
			out = append(out, events...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *LMSFeedSource) token(ctx context.Context) (string, error) {
	ref, err := s.registry.RequireConnected(models.ProviderLMS)
	if err != nil {
		return "", err
	}
	return s.creds.Resolve(ctx, s.userID, ref)
}

func (s *LMSFeedSource) fetchCourses(ctx context.Context, token string) ([]models.Course, error) {
	s.mu.Lock()
	if s.courses != nil && s.now().Sub(s.coursesAt) < s.courseTTL {
		cached := append([]models.Course(nil), s.courses...)
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	raw, err := s.client.Courses(ctx, token)
	if err != nil {
		return nil, s.classify(err)
	}
	courses := make([]models.Course, 0, len(raw))
	for _, c := range raw {
		courses = append(courses, models.Course{
			ID:           strconv.FormatInt(c.ID, 10),
			Name:         c.Name,
			CourseCode:   c.CourseCode,
			SyllabusText: c.SyllabusBody,
		})
	}

	s.mu.Lock()
	s.courses = courses
	s.coursesAt = s.now()
	s.mu.Unlock()
	return append([]models.Course(nil), courses...), nil
}

// classify turns an LMS credential rejection into a disconnect.
func (s *LMSFeedSource) classify(err error) error {
	if !errors.Is(err, lms.ErrUnauthorized) {
		return err
	}
	if s.registry.MarkExpired(models.ProviderLMS) {
		s.logger.Warn("lms credential expired", zap.String("user_id", s.userID))
	}
	return &appErrors.NotConnectedError{Provider: string(models.ProviderLMS)}
}

// assignmentEvent maps a dated assignment; undated work has no place on a calendar.
func assignmentEvent(a lms.Assignment, courseID string) (models.Event, bool) {
	if a.DueAt == nil {
		return models.Event{}, false
	}
	id := strconv.FormatInt(a.ID, 10)
	due := a.DueAt.UTC()
	course := courseID
	if a.CourseID != 0 {
		course = strconv.FormatInt(a.CourseID, 10)
	}
	return models.Event{
		ID:          "lms-" + id,
		SourceKind:  models.SourceLMS,
		Title:       a.Name,
		Description: a.Description,
		StartTime:   due,
		EndTime:     due,
		Category:    models.CategoryAssignment,
		CourseID:    &course,
		OriginRef:   "lms:" + id,
	}, true
}

type derivedPool interface {
	DerivedEvents() []models.Event
}

// SyllabusDerivedSource exposes the events produced by syllabus analysis.
type SyllabusDerivedSource struct {
	pool derivedPool
}

// NewSyllabusDerivedSource wraps the analysis pool.
func NewSyllabusDerivedSource(pool derivedPool) *SyllabusDerivedSource {
	return &SyllabusDerivedSource{pool: pool}
}

func (s *SyllabusDerivedSource) Kind() models.SourceKind { return models.SourceSyllabus }

func (s *SyllabusDerivedSource) Available() bool { return true }

func (s *SyllabusDerivedSource) FetchEvents(ctx context.Context, window models.TimeWindow) ([]models.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []models.Event
	for _, ev := range s.pool.DerivedEvents() {
		if window.Contains(ev.StartTime) {
			ev.SourceKind = models.SourceSyllabus
			out = append(out, ev)
		}
	}
	return out, nil
}
