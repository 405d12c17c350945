package service

import (
	"context"
	"os"
	"time"

	"github.com/noah-isme/studycal-api/internal/models"
	appErrors "github.com/noah-isme/studycal-api/pkg/errors"
)

const maxWindowSpan = 366 * 24 * time.Hour

// CalendarService is the user-facing calendar surface: the aggregated window, local events, exports and pushes.
type CalendarService struct {
	sessions       sessionProvider
	events         *EventService
	exports        *ExportService
	upcomingWindow time.Duration
	now            func() time.Time
}

// NewCalendarService wires the calendar surface. upcomingWindow bounds the look-ahead of Upcoming.
func NewCalendarService(sessions sessionProvider, events *EventService, exports *ExportService, upcomingWindow time.Duration) *CalendarService {
	if upcomingWindow <= 0 {
		upcomingWindow = 14 * 24 * time.Hour
	}
	return &CalendarService{
		sessions:       sessions,
		events:         events,
		exports:        exports,
		upcomingWindow: upcomingWindow,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Window aggregates every source over [start, end].
func (s *CalendarService) Window(ctx context.Context, userID string, start, end time.Time) (*models.AggregatedWindow, error) {
	if err := checkSpan(start, end); err != nil {
		return nil, err
	}
	sess, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sess.Engine.GetWindow(ctx, start, end)
}

// Upcoming returns the next assignments inside the look-ahead.
func (s *CalendarService) Upcoming(ctx context.Context, userID string) (*models.AggregatedWindow, error) {
	now := s.now()
	return s.Window(ctx, userID, now, now.Add(s.upcomingWindow))
}

// Export renders [start, end] as a downloadable file.
func (s *CalendarService) Export(ctx context.Context, userID string, start, end time.Time, format ExportFormat) (*ExportFile, error) {
	if err := checkSpan(start, end); err != nil {
		return nil, err
	}
	sess, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.exports.Export(ctx, sess.Engine, start, end, format)
}

// FeedLink signs the user's ICS subscription URL.
func (s *CalendarService) FeedLink(userID string) (*FeedLink, error) {
	return s.exports.FeedLink(userID)
}

// OpenFeed resolves a signed feed token.
func (s *CalendarService) OpenFeed(token string) (*os.File, error) {
	return s.exports.OpenFeed(token)
}

// CreateEvent stores a local event.
func (s *CalendarService) CreateEvent(ctx context.Context, userID string, req EventRequest) (*models.Event, error) {
	return s.events.Create(ctx, userID, req)
}

// UpdateEvent replaces a local event.
func (s *CalendarService) UpdateEvent(ctx context.Context, userID, id string, req EventRequest) (*models.Event, error) {
	return s.events.Update(ctx, userID, id, req)
}

// DeleteEvent removes a local event.
func (s *CalendarService) DeleteEvent(ctx context.Context, userID, id string) error {
	return s.events.Delete(ctx, userID, id)
}

// FreeSlots lists open slots on day.
func (s *CalendarService) FreeSlots(ctx context.Context, userID string, day time.Time, duration time.Duration) ([]models.TimeSlot, error) {
	sess, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.events.FreeSlots(ctx, sess.Engine, day, duration)
}

// ScheduleStudySession books a study block before the deadline of eventID.
func (s *CalendarService) ScheduleStudySession(ctx context.Context, userID, eventID string, duration time.Duration) (*models.Event, error) {
	sess, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.events.ScheduleStudySession(ctx, userID, sess.Engine, eventID, duration)
}

// Sync pushes synchronously. With retry set only the previously rejected events are pushed.
func (s *CalendarService) Sync(ctx context.Context, userID string, retry bool) (*models.SyncOutcome, error) {
	sess, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if retry {
		return sess.Sync.RetryFailed(ctx)
	}
	return sess.Sync.SyncAll(ctx)
}

func checkSpan(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return appErrors.Clone(appErrors.ErrValidation, "start and end are required")
	}
	if end.Before(start) {
		return appErrors.Clone(appErrors.ErrValidation, "end must not be before start")
	}
	if end.Sub(start) > maxWindowSpan {
		return appErrors.Clone(appErrors.ErrValidation, "window may span at most one year")
	}
	return nil
}
