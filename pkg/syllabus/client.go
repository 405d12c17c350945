// Package syllabus calls the external document analysis service that extracts
// insights and dated events from a course syllabus.
package syllabus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrMalformedDocument is returned when the service could not extract anything usable.
var ErrMalformedDocument = errors.New("syllabus: document could not be analyzed")

// AnalyzeRequest identifies the document to analyze.
type AnalyzeRequest struct {
	CourseID    string `json:"course_id"`
	CourseName  string `json:"course_name,omitempty"`
	DocumentRef string `json:"document_ref,omitempty"`
	// SyllabusText is used when the LMS already exposes the syllabus body.
	SyllabusText string `json:"syllabus_text,omitempty"`
}

// Insights is the structured summary returned by the service.
type Insights struct {
	Summary      string   `json:"summary"`
	OfficeHours  string   `json:"office_hours"`
	GradingScale string   `json:"grading_scale"`
	Policies     []string `json:"policies"`
}

// GeneratedEvent is a dated item found in the document.
type GeneratedEvent struct {
	Title       string    `json:"summary"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Location    *string   `json:"location"`
	Category    string    `json:"event_type"`
	Weight      *float64  `json:"weight"`
}

// AnalyzeResponse is the service payload.
type AnalyzeResponse struct {
	Insights Insights         `json:"insights"`
	RawText  string           `json:"raw_text"`
	Events   []GeneratedEvent `json:"events"`
}

// Config tunes the client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client is an HTTP client for the analysis service.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient builds a client; httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{baseURL: strings.TrimRight(cfg.BaseURL, "/"), apiKey: cfg.APIKey, http: httpClient}
}

// Analyze submits a document for analysis and waits for the result.
func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("analysis request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("%w: %s", ErrMalformedDocument, strings.TrimSpace(string(body)))
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("analysis service returned %d: %s", resp.StatusCode, truncate(string(body), 256))
	}

	var out AnalyzeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrMalformedDocument, err)
	}
	return &out, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
