package export

import (
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
)

// ICSEvent is one VEVENT in a rendered calendar.
type ICSEvent struct {
	UID         string
	Title       string
	Description string
	Location    string
	Category    string
	Color       string
	URL         string
	Start       time.Time
	End         time.Time
	Updated     time.Time
}

// ICSExporter renders events as an iCalendar document.
type ICSExporter struct {
	productID string
}

// NewICSExporter builds an exporter stamping the given PRODID.
func NewICSExporter(productID string) *ICSExporter {
	if productID == "" {
		productID = "-//StudyCal//Calendar Export//EN"
	}
	return &ICSExporter{productID: productID}
}

// ContentType is the MIME type of the rendered output.
func (e *ICSExporter) ContentType() string { return "text/calendar; charset=utf-8" }

// Render serialises events under a calendar name. Events without a UID are rejected.
func (e *ICSExporter) Render(name string, events []ICSEvent) ([]byte, error) {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(e.productID)
	if name != "" {
		cal.SetXWRCalName(name)
		cal.SetName(name)
	}
	cal.SetRefreshInterval("PT1H")

	stamp := time.Now().UTC()
	for _, ev := range events {
		if ev.UID == "" {
			return nil, fmt.Errorf("ics event %q has no uid", ev.Title)
		}
		vevent := cal.AddEvent(ev.UID)
		vevent.SetDtStampTime(stamp)
		if !ev.Updated.IsZero() {
			vevent.SetModifiedAt(ev.Updated.UTC())
		}
		vevent.SetStartAt(ev.Start.UTC())
		end := ev.End
		if !end.After(ev.Start) {
			end = ev.Start.Add(30 * time.Minute)
		}
		vevent.SetEndAt(end.UTC())
		vevent.SetSummary(ev.Title)
		if ev.Description != "" {
			vevent.SetDescription(ev.Description)
		}
		if ev.Location != "" {
			vevent.SetLocation(ev.Location)
		}
		if ev.URL != "" {
			vevent.SetURL(ev.URL)
		}
		if ev.Category != "" {
			vevent.AddProperty(ics.ComponentPropertyCategories, strings.ToUpper(ev.Category))
		}
		if ev.Color != "" {
			vevent.SetProperty(ics.ComponentProperty("X-APPLE-CALENDAR-COLOR"), ev.Color)
		}
	}
	return []byte(cal.Serialize()), nil
}
