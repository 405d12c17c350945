package dto

import (
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/noah-isme/studycal-api/internal/models"
)

// AnalysisInsights mirrors models.AnalysisInsights plus the summary rendered for display.
type AnalysisInsights struct {
	Summary      string   `json:"summary"`
	SummaryHTML  string   `json:"summary_html,omitempty"`
	OfficeHours  string   `json:"office_hours,omitempty"`
	GradingScale string   `json:"grading_scale,omitempty"`
	Policies     []string `json:"policies"`
}

// AnalysisResponse is the payload of the course analysis endpoints.
type AnalysisResponse struct {
	CourseID        string                `json:"course_id"`
	Status          models.AnalysisStatus `json:"status"`
	Insights        *AnalysisInsights     `json:"insights,omitempty"`
	GeneratedEvents []models.Event        `json:"generated_events"`
	FailureReason   string                `json:"failure_reason,omitempty"`
	HasDocument     bool                  `json:"has_document"`
	AnalyzedAt      *time.Time            `json:"analyzed_at,omitempty"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// NewAnalysisResponse converts a cached result. Insights are only attached once analyzed.
func NewAnalysisResponse(res *models.AnalysisResult) AnalysisResponse {
	out := AnalysisResponse{
		CourseID:        res.CourseID,
		Status:          res.Status,
		GeneratedEvents: res.GeneratedEvents,
		FailureReason:   res.FailureReason,
		HasDocument:     res.DocumentRef != nil,
		AnalyzedAt:      res.AnalyzedAt,
		UpdatedAt:       res.UpdatedAt,
	}
	if out.GeneratedEvents == nil {
		out.GeneratedEvents = []models.Event{}
	}
	if res.Status == models.AnalysisAnalyzed {
		policies := res.Insights.Policies
		if policies == nil {
			policies = []string{}
		}
		out.Insights = &AnalysisInsights{
			Summary:      res.Insights.Summary,
			SummaryHTML:  RenderMarkdown(res.Insights.Summary),
			OfficeHours:  res.Insights.OfficeHours,
			GradingScale: res.Insights.GradingScale,
			Policies:     policies,
		}
	}
	return out
}

// RenderMarkdown converts analyzer markdown to HTML. Raw HTML in the input is dropped.
func RenderMarkdown(src string) string {
	if strings.TrimSpace(src) == "" {
		return ""
	}
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.SkipHTML | html.HrefTargetBlank})
	return strings.TrimSpace(string(markdown.ToHTML([]byte(src), p, renderer)))
}
