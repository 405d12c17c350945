package models

import "time"

// AnalysisStatus is the lifecycle state of a course's syllabus analysis.
type AnalysisStatus string

const (
	AnalysisUnanalyzed AnalysisStatus = "unanalyzed"
	AnalysisAnalyzing  AnalysisStatus = "analyzing"
	AnalysisAnalyzed   AnalysisStatus = "analyzed"
	AnalysisFailed     AnalysisStatus = "failed"
)

// AnalysisInsights summarises a syllabus.
type AnalysisInsights struct {
	Summary      string   `json:"summary"`
	OfficeHours  string   `json:"office_hours"`
	GradingScale string   `json:"grading_scale"`
	Policies     []string `json:"policies"`
}

// AnalysisResult is the cached analysis state of one course.
type AnalysisResult struct {
	CourseID        string           `json:"course_id"`
	Status          AnalysisStatus   `json:"status"`
	Insights        AnalysisInsights `json:"insights"`
	RawText         string           `json:"raw_text,omitempty"`
	GeneratedEvents []Event          `json:"generated_events"`
	FailureReason   string           `json:"failure_reason,omitempty"`
	DocumentRef     *string          `json:"document_ref,omitempty"`
	AnalyzedAt      *time.Time       `json:"analyzed_at,omitempty"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Clone returns a deep copy safe to hand out of the cache.
func (r *AnalysisResult) Clone() *AnalysisResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Insights.Policies = append([]string(nil), r.Insights.Policies...)
	out.GeneratedEvents = append([]Event(nil), r.GeneratedEvents...)
	if r.DocumentRef != nil {
		ref := *r.DocumentRef
		out.DocumentRef = &ref
	}
	if r.AnalyzedAt != nil {
		ts := *r.AnalyzedAt
		out.AnalyzedAt = &ts
	}
	return &out
}
