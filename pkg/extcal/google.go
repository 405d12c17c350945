package extcal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// GoogleConfig configures the Calendar v3 REST client.
type GoogleConfig struct {
	BaseURL     string
	CalendarID  string
	Timeout     time.Duration
	Concurrency int
}

// GoogleCalendarClient upserts events through the Google Calendar v3 REST API.
// Item keys are used verbatim as event ids, so they must match [a-v0-9]{5,1024}.
type GoogleCalendarClient struct {
	baseURL     string
	calendarID  string
	concurrency int
	http        *http.Client
}

// NewGoogleCalendarClient builds a client; httpClient may be nil.
func NewGoogleCalendarClient(cfg GoogleConfig, httpClient *http.Client) *GoogleCalendarClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.googleapis.com/calendar/v3"
	}
	if cfg.CalendarID == "" {
		cfg.CalendarID = "primary"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &GoogleCalendarClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		calendarID:  cfg.CalendarID,
		concurrency: cfg.Concurrency,
		http:        httpClient,
	}
}

// Name identifies the target in logs and metrics.
func (c *GoogleCalendarClient) Name() string { return "google" }

type googleTime struct {
	DateTime string `json:"dateTime"`
}

type googleEvent struct {
	ID                 string            `json:"id"`
	Summary            string            `json:"summary"`
	Description        string            `json:"description,omitempty"`
	Location           string            `json:"location,omitempty"`
	Start              googleTime        `json:"start"`
	End                googleTime        `json:"end"`
	ExtendedProperties map[string]any    `json:"extendedProperties,omitempty"`
	Source             map[string]string `json:"source,omitempty"`
}

// Push upserts every item. A 401 on any call aborts the batch with ErrUnauthorized.
func (c *GoogleCalendarClient) Push(ctx context.Context, batch Batch) ([]Result, error) {
	results := make([]Result, len(batch.Items))
	var (
		unauthorized bool
		mu           sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, item := range batch.Items {
		i, item := i, item
		g.Go(func() error {
			err := c.upsert(gctx, batch.Token, item)
			if errors.Is(err, ErrUnauthorized) {
				mu.Lock()
				unauthorized = true
				mu.Unlock()
				return err
			}
			results[i] = Result{Key: item.Key, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil && unauthorized {
		return nil, ErrUnauthorized
	}
	return results, nil
}

func (c *GoogleCalendarClient) upsert(ctx context.Context, token string, item Item) error {
	body, err := json.Marshal(toGoogleEvent(item))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	base := fmt.Sprintf("%s/calendars/%s/events", c.baseURL, url.PathEscape(c.calendarID))

	status, msg, err := c.do(ctx, http.MethodPut, base+"/"+url.PathEscape(item.Key), token, body)
	if err != nil {
		return err
	}
	switch {
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	case status < 300:
		return nil
	case status != http.StatusNotFound:
		return fmt.Errorf("update returned %d: %s", status, msg)
	}

	status, msg, err = c.do(ctx, http.MethodPost, base, token, body)
	if err != nil {
		return err
	}
	switch {
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	case status < 300:
		return nil
	default:
		return fmt.Errorf("insert returned %d: %s", status, msg)
	}
}

func (c *GoogleCalendarClient) do(ctx context.Context, method, endpoint, token string, body []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close() //nolint:errcheck
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return resp.StatusCode, strings.TrimSpace(string(raw)), nil
}

func toGoogleEvent(item Item) googleEvent {
	end := item.End
	if !end.After(item.Start) {
		end = item.Start.Add(30 * time.Minute)
	}
	ev := googleEvent{
		ID:          item.Key,
		Summary:     item.Title,
		Description: item.Description,
		Location:    item.Location,
		Start:       googleTime{DateTime: item.Start.UTC().Format(time.RFC3339)},
		End:         googleTime{DateTime: end.UTC().Format(time.RFC3339)},
	}
	if item.Category != "" {
		ev.ExtendedProperties = map[string]any{
			"private": map[string]string{"studycalCategory": item.Category},
		}
	}
	return ev
}
