// Package lms is a read-only client for the Canvas-compatible LMS REST API.
package lms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnauthorized is returned when the LMS rejects the access token.
	ErrUnauthorized = errors.New("lms: access token rejected")
	// ErrForeignLink is returned when a pagination link leaves the configured LMS host.
	ErrForeignLink = errors.New("lms: next link points outside the configured host")
)

// Course is a course as reported by the LMS.
type Course struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	CourseCode   string `json:"course_code"`
	SyllabusBody string `json:"syllabus_body,omitempty"`
}

// Assignment is an assignment as reported by the LMS. DueAt is nil for undated work.
type Assignment struct {
	ID             int64      `json:"id"`
	CourseID       int64      `json:"course_id"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	DueAt          *time.Time `json:"due_at"`
	HTMLURL        string     `json:"html_url"`
	PointsPossible *float64   `json:"points_possible"`
}

// Config tunes the client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	PerPage int
	// MaxPages caps pagination per listing.
	MaxPages int
}

// Client calls the LMS on behalf of one token per request.
type Client struct {
	baseURL  string
	origin   *url.URL
	http     *http.Client
	perPage  int
	maxPages int
}

// NewClient builds a client; httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = 50
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 20
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	origin, _ := url.Parse(base)
	return &Client{
		baseURL:  base,
		origin:   origin,
		http:     httpClient,
		perPage:  cfg.PerPage,
		maxPages: cfg.MaxPages,
	}
}

// Courses lists the active courses of the token's owner.
func (c *Client) Courses(ctx context.Context, token string) ([]Course, error) {
	query := url.Values{}
	query.Set("enrollment_state", "active")
	query.Add("include[]", "syllabus_body")
	var out []Course
	if err := c.list(ctx, token, "/api/v1/courses", query, func(body io.Reader) error {
		var page []Course
		if err := json.NewDecoder(body).Decode(&page); err != nil {
			return fmt.Errorf("decode courses: %w", err)
		}
		out = append(out, page...)
		return nil
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// Assignments lists the assignments of one course.
func (c *Client) Assignments(ctx context.Context, token, courseID string) ([]Assignment, error) {
	query := url.Values{}
	query.Set("order_by", "due_at")
	var out []Assignment
	path := "/api/v1/courses/" + url.PathEscape(courseID) + "/assignments"
	if err := c.list(ctx, token, path, query, func(body io.Reader) error {
		var page []Assignment
		if err := json.NewDecoder(body).Decode(&page); err != nil {
			return fmt.Errorf("decode assignments: %w", err)
		}
		out = append(out, page...)
		return nil
	}); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) list(ctx context.Context, token, path string, query url.Values, decode func(io.Reader) error) error {
	query.Set("per_page", strconv.Itoa(c.perPage))
	next := c.baseURL + path + "?" + query.Encode()
	for page := 0; next != "" && page < c.maxPages; page++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, next, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("lms request %s: %w", path, err)
		}
		err = func() error {
			defer resp.Body.Close() //nolint:errcheck
			switch {
			case resp.StatusCode == http.StatusUnauthorized:
				return ErrUnauthorized
			case resp.StatusCode >= 300:
				snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				return fmt.Errorf("lms %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
			}
			return decode(resp.Body)
		}()
		if err != nil {
			return err
		}
		if next, err = c.follow(resp, nextLink(resp.Header.Get("Link"))); err != nil {
			return fmt.Errorf("lms %s: %w", path, err)
		}
	}
	return nil
}

// follow resolves a pagination link against the page that returned it. The token is only ever
// sent to the configured LMS, so links pointing at another scheme or host are refused.
func (c *Client) follow(resp *http.Response, link string) (string, error) {
	if link == "" {
		return "", nil
	}
	target, err := resp.Request.URL.Parse(link)
	if err != nil {
		return "", fmt.Errorf("parse next link: %w", err)
	}
	if c.origin == nil || !strings.EqualFold(target.Scheme, c.origin.Scheme) || !strings.EqualFold(target.Host, c.origin.Host) {
		return "", fmt.Errorf("%w: %s", ErrForeignLink, target.Redacted())
	}
	return target.String(), nil
}

// nextLink extracts the rel="next" target from an RFC 5988 Link header.
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}
		target := strings.Trim(strings.TrimSpace(segments[0]), "<>")
		for _, param := range segments[1:] {
			if strings.TrimSpace(param) == `rel="next"` {
				return target
			}
		}
	}
	return ""
}
