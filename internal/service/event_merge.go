package service

import (
	"sort"
	"time"

	"github.com/noah-isme/studycal-api/internal/models"
)

// dedupeKey falls back to the source-scoped id for events without an origin.
func dedupeKey(ev models.Event) string {
	if ev.OriginRef != "" {
		return ev.OriginRef
	}
	return string(ev.SourceKind) + ":" + ev.ID
}

// dedupeByOrigin keeps one event per origin ref, preferring the higher-priority source.
// On equal priority the first one seen wins. Input order is otherwise preserved.
func dedupeByOrigin(events []models.Event) []models.Event {
	index := make(map[string]int, len(events))
	out := make([]models.Event, 0, len(events))
	for _, ev := range events {
		key := dedupeKey(ev)
		if i, ok := index[key]; ok {
			if ev.SourceKind.Priority() > out[i].SourceKind.Priority() {
				out[i] = ev
			}
			continue
		}
		index[key] = len(out)
		out = append(out, ev)
	}
	return out
}

// filterWindow drops events whose start lies outside w. Events spanning into w from before are dropped too.
func filterWindow(events []models.Event, w models.TimeWindow) []models.Event {
	out := events[:0]
	for _, ev := range events {
		if w.Contains(ev.StartTime) {
			out = append(out, ev)
		}
	}
	return out
}

func sortEvents(events []models.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.StartTime.Equal(b.StartTime) {
			return a.StartTime.Before(b.StartTime)
		}
		if a.Category.Rank() != b.Category.Rank() {
			return a.Category.Rank() < b.Category.Rank()
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.OriginRef < b.OriginRef
	})
}

func decorate(events []models.Event) {
	for i := range events {
		events[i].Category = models.NormalizeCategory(string(events[i].Category))
		events[i].ColorHex = events[i].Category.Color()
	}
}

// groupByDay buckets sorted events by their start date in loc.
func groupByDay(events []models.Event, loc *time.Location) []models.DayGroup {
	groups := make([]models.DayGroup, 0)
	for _, ev := range events {
		day := ev.StartTime.In(loc).Format("2006-01-02")
		if n := len(groups); n > 0 && groups[n-1].Date == day {
			groups[n-1].Events = append(groups[n-1].Events, ev)
			continue
		}
		groups = append(groups, models.DayGroup{Date: day, Events: []models.Event{ev}})
	}
	return groups
}

// upcomingAssignments projects the first limit assignments of a sorted sequence.
func upcomingAssignments(events []models.Event, limit int) []models.Event {
	out := make([]models.Event, 0, limit)
	for _, ev := range events {
		if len(out) >= limit {
			break
		}
		if ev.Category == models.CategoryAssignment {
			out = append(out, ev)
		}
	}
	return out
}

// mergeWindow runs the full merge pipeline over raw source output.
func mergeWindow(raw []models.Event, w models.TimeWindow, loc *time.Location, upcomingLimit int) ([]models.Event, []models.DayGroup, []models.Event) {
	events := dedupeByOrigin(raw)
	events = filterWindow(events, w)
	decorate(events)
	sortEvents(events)
	return events, groupByDay(events, loc), upcomingAssignments(events, upcomingLimit)
}
