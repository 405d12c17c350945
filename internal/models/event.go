package models

import (
	"strings"
	"time"
)

// SourceKind tags where an event was fetched from.
type SourceKind string

const (
	SourceLocal    SourceKind = "local"
	SourceLMS      SourceKind = "lms"
	SourceSyllabus SourceKind = "syllabus"
)

// Priority ranks sources when two events share an origin ref. Higher wins.
func (k SourceKind) Priority() int {
	switch k {
	case SourceLocal:
		return 3
	case SourceSyllabus:
		return 2
	case SourceLMS:
		return 1
	default:
		return 0
	}
}

// Category is the scheduling category of an event.
type Category string

const (
	CategoryClass      Category = "class"
	CategoryAssignment Category = "assignment"
	CategoryExam       Category = "exam"
	CategoryStudy      Category = "study"
	CategoryTravel     Category = "travel"
	CategoryEvent      Category = "event"
)

// NormalizeCategory maps free-form input onto a known category. Unknown values become the generic event.
func NormalizeCategory(raw string) Category {
	switch c := Category(strings.ToLower(strings.TrimSpace(raw))); c {
	case CategoryClass, CategoryAssignment, CategoryExam, CategoryStudy, CategoryTravel:
		return c
	default:
		return CategoryEvent
	}
}

// Rank orders categories sharing the same instant; lower sorts first.
func (c Category) Rank() int {
	switch c {
	case CategoryExam:
		return 0
	case CategoryAssignment:
		return 1
	case CategoryClass:
		return 2
	case CategoryStudy:
		return 3
	case CategoryTravel:
		return 4
	default:
		return 5
	}
}

// Color is the display color for the category.
func (c Category) Color() string {
	switch c {
	case CategoryClass:
		return "#185177"
	case CategoryExam:
		return "#c95603"
	case CategoryAssignment:
		return "#e2711d"
	case CategoryStudy:
		return "#4f772d"
	case CategoryTravel:
		return "#6c757d"
	default:
		return "#ffb627"
	}
}

// Event is one scheduled item in the unified calendar.
type Event struct {
	ID          string     `db:"id" json:"id"`
	UserID      string     `db:"user_id" json:"-"`
	SourceKind  SourceKind `db:"-" json:"source_kind"`
	Title       string     `db:"title" json:"title"`
	Description string     `db:"description" json:"description,omitempty"`
	StartTime   time.Time  `db:"start_time" json:"start_time"`
	EndTime     time.Time  `db:"end_time" json:"end_time"`
	Location    *string    `db:"location" json:"location,omitempty"`
	Category    Category   `db:"category" json:"category"`
	Weight      *float64   `db:"weight" json:"weight,omitempty"`
	CourseID    *string    `db:"course_id" json:"course_id,omitempty"`
	Recurrence  string     `db:"recurrence" json:"recurrence,omitempty"`
	Overrides   *string    `db:"origin_ref" json:"overrides,omitempty"`
	OriginRef   string     `db:"-" json:"origin_ref"`
	ColorHex    string     `db:"-" json:"color_hex"`
	CreatedAt   time.Time  `db:"created_at" json:"-"`
	UpdatedAt   time.Time  `db:"updated_at" json:"-"`
}

// TimeWindow is an inclusive time range.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window, bounds included.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// TimeSlot is a free interval on the calendar.
type TimeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
