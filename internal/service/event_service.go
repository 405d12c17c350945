package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/teambition/rrule-go"
	"go.uber.org/zap"

	"github.com/noah-isme/studycal-api/internal/models"
	appErrors "github.com/noah-isme/studycal-api/pkg/errors"
)

const (
	dayOpensAt       = 8
	dayClosesAt      = 22
	slotStep         = 30 * time.Minute
	studyLookbackDay = 3
	studyHorizon     = 60 * 24 * time.Hour
)

type eventRepository interface {
	GetByID(ctx context.Context, userID, id string) (*models.Event, error)
	Create(ctx context.Context, event *models.Event) error
	Update(ctx context.Context, event *models.Event) error
	Delete(ctx context.Context, userID, id string) error
}

// EventService manages the user's own calendar events.
type EventService struct {
	repo      eventRepository
	validator *validator.Validate
	loc       *time.Location
	logger    *zap.Logger
	now       func() time.Time
	onChange  func(ctx context.Context, userID string)
}

// NewEventService constructs the service. Day boundaries for slot search are taken in loc.
func NewEventService(repo eventRepository, validate *validator.Validate, loc *time.Location, logger *zap.Logger) *EventService {
	if validate == nil {
		validate = validator.New()
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &EventService{repo: repo, validator: validate, loc: loc, logger: logger, now: time.Now}
	_ = svc.validator.RegisterValidation("rrule", func(fl validator.FieldLevel) bool {
		_, err := rrule.StrToROption(strings.TrimPrefix(strings.TrimSpace(fl.Field().String()), "RRULE:"))
		return err == nil
	})
	return svc
}

// OnChange registers the hook run after every successful write.
func (s *EventService) OnChange(fn func(ctx context.Context, userID string)) {
	s.onChange = fn
}

// EventRequest describes a create or update payload.
type EventRequest struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"max=4000"`
	StartTime   time.Time `json:"start_time" validate:"required"`
	EndTime     time.Time `json:"end_time" validate:"required"`
	Location    *string   `json:"location" validate:"omitempty,max=200"`
	Category    string    `json:"category"`
	Weight      *float64  `json:"weight" validate:"omitempty,gte=0,lte=100"`
	CourseID    *string   `json:"course_id"`
	Recurrence  string    `json:"recurrence" validate:"omitempty,rrule"`
	// Overrides names the LMS or syllabus item this event replaces, e.g. "lms:42".
	Overrides   *string   `json:"overrides" validate:"omitempty,max=200,startswith=lms:|startswith=syllabus:"`
}

// Create stores a new event.
func (s *EventService) Create(ctx context.Context, userID string, req EventRequest) (*models.Event, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	event := &models.Event{UserID: userID}
	applyEventRequest(event, req)
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create event")
	}
	s.changed(ctx, userID)
	return decorateLocal(event), nil
}

// Update replaces an event's fields.
func (s *EventService) Update(ctx context.Context, userID, id string, req EventRequest) (*models.Event, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	event, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	applyEventRequest(event, req)
	if err := s.repo.Update(ctx, event); err != nil {
		return nil, err
	}
	s.changed(ctx, userID)
	return decorateLocal(event), nil
}

// Delete removes an event.
func (s *EventService) Delete(ctx context.Context, userID, id string) error {
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.changed(ctx, userID)
	return nil
}

// FreeSlots lists the open slots of length duration on day, given everything on the user's calendar.
func (s *EventService) FreeSlots(ctx context.Context, calendar windowReader, day time.Time, duration time.Duration) ([]models.TimeSlot, error) {
	if err := validSessionLength(duration); err != nil {
		return nil, err
	}
	opens, closes := s.dayBounds(day)
	window, err := calendar.Collect(ctx, opens.Add(-24*time.Hour), closes)
	if err != nil {
		return nil, err
	}
	return freeSlots(window.Events, opens, closes, duration), nil
}

// ScheduleStudySession books a study block as late as possible before the deadline of eventID,
// searching the deadline day and up to three days before it.
func (s *EventService) ScheduleStudySession(ctx context.Context, userID string, calendar windowReader, eventID string, duration time.Duration) (*models.Event, error) {
	if err := validSessionLength(duration); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	upcoming, err := calendar.Collect(ctx, now, now.Add(studyHorizon))
	if err != nil {
		return nil, err
	}
	var target *models.Event
	for i := range upcoming.Events {
		if upcoming.Events[i].ID == eventID || upcoming.Events[i].OriginRef == eventID {
			target = &upcoming.Events[i]
			break
		}
	}
	if target == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no upcoming event with that id")
	}
	deadline := target.StartTime

	earliest, _ := s.dayBounds(deadline.In(s.loc).AddDate(0, 0, -studyLookbackDay))
	busy, err := calendar.Collect(ctx, earliest.Add(-24*time.Hour), deadline)
	if err != nil {
		return nil, err
	}

	var slot *models.TimeSlot
	for back := 0; back <= studyLookbackDay && slot == nil; back++ {
		opens, closes := s.dayBounds(deadline.In(s.loc).AddDate(0, 0, -back))
		candidates := freeSlots(busy.Events, opens, closes, duration)
		for i := len(candidates) - 1; i >= 0; i-- {
			c := candidates[i]
			if c.End.After(deadline) || c.Start.Before(now) {
				continue
			}
			slot = &c
			break
		}
	}
	if slot == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "no free slot before the deadline")
	}

	session := &models.Event{
		UserID:      userID,
		Title:       "Study: " + target.Title,
		Description: fmt.Sprintf("Preparation for %s due %s", target.Title, deadline.In(s.loc).Format("Mon 02 Jan 15:04")),
		StartTime:   slot.Start,
		EndTime:     slot.End,
		Category:    models.CategoryStudy,
		CourseID:    target.CourseID,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create study session")
	}
	s.logger.Info("study session scheduled", zap.String("user_id", userID), zap.String("event_id", eventID), zap.Time("start", slot.Start))
	s.changed(ctx, userID)
	return decorateLocal(session), nil
}

func (s *EventService) validate(req EventRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if req.EndTime.Before(req.StartTime) {
		return appErrors.Clone(appErrors.ErrValidation, "end_time must be on or after start_time")
	}
	if req.Overrides != nil && strings.TrimSpace(req.Recurrence) != "" {
		return appErrors.Clone(appErrors.ErrValidation, "recurring events cannot override another item")
	}
	return nil
}

func (s *EventService) changed(ctx context.Context, userID string) {
	if s.onChange != nil {
		s.onChange(ctx, userID)
	}
}

func (s *EventService) dayBounds(day time.Time) (time.Time, time.Time) {
	local := day.In(s.loc)
	opens := time.Date(local.Year(), local.Month(), local.Day(), dayOpensAt, 0, 0, 0, s.loc)
	closes := time.Date(local.Year(), local.Month(), local.Day(), dayClosesAt, 0, 0, 0, s.loc)
	return opens.UTC(), closes.UTC()
}

func validSessionLength(d time.Duration) error {
	if d < 15*time.Minute || d > 8*time.Hour {
		return appErrors.Clone(appErrors.ErrValidation, "duration must be between 15m and 8h")
	}
	return nil
}

// freeSlots steps through [opens, closes] and keeps the slots no event overlaps.
// Zero-length events such as deadlines do not block time.
func freeSlots(events []models.Event, opens, closes time.Time, duration time.Duration) []models.TimeSlot {
	slots := make([]models.TimeSlot, 0)
	for start := opens; !start.Add(duration).After(closes); start = start.Add(slotStep) {
		end := start.Add(duration)
		free := true
		for _, ev := range events {
			if !ev.EndTime.After(ev.StartTime) {
				continue
			}
			if ev.StartTime.Before(end) && ev.EndTime.After(start) {
				free = false
				break
			}
		}
		if free {
			slots = append(slots, models.TimeSlot{Start: start, End: end})
		}
	}
	return slots
}

func applyEventRequest(event *models.Event, req EventRequest) {
	event.Title = strings.TrimSpace(req.Title)
	event.Description = req.Description
	event.StartTime = req.StartTime.UTC()
	event.EndTime = req.EndTime.UTC()
	event.Location = req.Location
	event.Category = models.NormalizeCategory(req.Category)
	event.Weight = req.Weight
	event.CourseID = req.CourseID
	event.Recurrence = strings.TrimSpace(req.Recurrence)
	event.Overrides = nil
	if req.Overrides != nil {
		if ref := strings.TrimSpace(*req.Overrides); ref != "" {
			event.Overrides = &ref
		}
	}
}

// localOriginRef is the stored override when present, otherwise the event's own identity.
func localOriginRef(event models.Event) string {
	if event.Overrides != nil && *event.Overrides != "" {
		return *event.Overrides
	}
	return "local:" + event.ID
}

func decorateLocal(event *models.Event) *models.Event {
	event.SourceKind = models.SourceLocal
	event.OriginRef = localOriginRef(*event)
	event.ColorHex = event.Category.Color()
	return event
}
