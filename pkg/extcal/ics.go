package extcal

import (
	"context"
	"fmt"

	"github.com/noah-isme/studycal-api/pkg/export"
)

// FeedWriter stores a rendered feed under a relative name.
type FeedWriter interface {
	Save(name string, data []byte) (string, error)
}

// ICSFeedPublisher renders the whole batch as one iCalendar file per owner.
// Subscribers poll the file, so a rewrite is an idempotent upsert keyed by UID.
type ICSFeedPublisher struct {
	store    FeedWriter
	exporter *export.ICSExporter
	name     string
	path     func(owner string) string
}

// NewICSFeedPublisher builds a publisher writing through store.
func NewICSFeedPublisher(store FeedWriter, calendarName string, path func(owner string) string) *ICSFeedPublisher {
	return &ICSFeedPublisher{
		store:    store,
		exporter: export.NewICSExporter(""),
		name:     calendarName,
		path:     path,
	}
}

// Name identifies the target in logs and metrics.
func (p *ICSFeedPublisher) Name() string { return "ics" }

// ReplacesAll is true: every push rewrites the whole feed.
func (p *ICSFeedPublisher) ReplacesAll() bool { return true }

// Push replaces the owner's feed with the batch.
func (p *ICSFeedPublisher) Push(ctx context.Context, batch Batch) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if batch.Owner == "" {
		return nil, fmt.Errorf("ics feed requires an owner")
	}
	events := make([]export.ICSEvent, 0, len(batch.Items))
	for _, item := range batch.Items {
		events = append(events, ICSEventFromItem(item))
	}
	data, err := p.exporter.Render(p.name, events)
	if err != nil {
		return nil, fmt.Errorf("render feed: %w", err)
	}
	if _, err := p.store.Save(p.path(batch.Owner), data); err != nil {
		return nil, fmt.Errorf("publish feed: %w", err)
	}
	results := make([]Result, len(batch.Items))
	for i, item := range batch.Items {
		results[i] = Result{Key: item.Key}
	}
	return results, nil
}

// ICSEventFromItem maps a push item onto a VEVENT with a globally unique UID.
func ICSEventFromItem(item Item) export.ICSEvent {
	return export.ICSEvent{
		UID:         item.Key + "@studycal",
		Title:       item.Title,
		Description: item.Description,
		Location:    item.Location,
		Category:    item.Category,
		Color:       item.Color,
		Start:       item.Start,
		End:         item.End,
		Updated:     item.Updated,
	}
}
