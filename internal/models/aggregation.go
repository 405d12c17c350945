package models

import "time"

// DayGroup holds the events starting on one calendar day.
type DayGroup struct {
	Date   string  `json:"date"`
	Events []Event `json:"events"`
}

// AggregatedWindow is the merged, deduplicated view of every source for a time range.
// It is derived on demand and never persisted.
type AggregatedWindow struct {
	RangeStart    time.Time    `json:"range_start"`
	RangeEnd      time.Time    `json:"range_end"`
	Events        []Event      `json:"events"`
	Days          []DayGroup   `json:"days"`
	Upcoming      []Event      `json:"upcoming"`
	Partial       bool         `json:"partial"`
	FailedSources []SourceKind `json:"failed_sources"`
	GeneratedAt   time.Time    `json:"generated_at"`
	Superseded    bool         `json:"superseded"`
	Sequence      uint64       `json:"-"`
}
