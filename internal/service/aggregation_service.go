package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/studycal-api/internal/models"
	appErrors "github.com/noah-isme/studycal-api/pkg/errors"
)

// AggregationOptions tunes an EventAggregationEngine.
type AggregationOptions struct {
	SourceTimeout  time.Duration
	UpcomingLimit  int
	Location       *time.Location
	CacheTTL       time.Duration
	// MaxOccurrences caps recurrence expansion per local event.
	MaxOccurrences int
}

// EventAggregationEngine merges every available source into one ordered, deduplicated window.
type EventAggregationEngine struct {
	userID  string
	sources []EventSource
	opts    AggregationOptions
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time

	seq     atomic.Uint64
	version atomic.Uint64

	mu     sync.Mutex
	latest *models.AggregatedWindow
}

// NewEventAggregationEngine builds an engine over sources. cache and metrics may be nil.
func NewEventAggregationEngine(userID string, sources []EventSource, opts AggregationOptions, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *EventAggregationEngine {
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = 8 * time.Second
	}
	if opts.UpcomingLimit <= 0 {
		opts.UpcomingLimit = 10
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventAggregationEngine{
		userID:  userID,
		sources: sources,
		opts:    opts,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// GetWindow aggregates [start, end] for the calendar view. Source failures make the window partial
// instead of failing the call. A window that finishes after a newer request comes back marked superseded
// and never replaces Latest.
func (e *EventAggregationEngine) GetWindow(ctx context.Context, start, end time.Time) (*models.AggregatedWindow, error) {
	seq := e.seq.Add(1)
	result, err := e.Collect(ctx, start, end)
	if err != nil {
		return nil, err
	}
	result.Sequence = seq
	result.Superseded = !e.apply(result)
	return result, nil
}

// Collect aggregates [start, end] without touching the view sequence. Internal readers such as
// slot search, export and sync use it so their windows never displace what the user is looking at.
func (e *EventAggregationEngine) Collect(ctx context.Context, start, end time.Time) (*models.AggregatedWindow, error) {
	if end.Before(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "window end must not be before start")
	}
	window := models.TimeWindow{Start: start.UTC(), End: end.UTC()}
	version := e.version.Load()
	key := e.cacheKey(version, window)

	var cached models.AggregatedWindow
	if e.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	raw, failed := e.fetchAll(ctx, window)
	events, days, upcoming := mergeWindow(raw, window, e.opts.Location, e.opts.UpcomingLimit)
	result := &models.AggregatedWindow{
		RangeStart:    window.Start,
		RangeEnd:      window.End,
		Events:        events,
		Days:          days,
		Upcoming:      upcoming,
		Partial:       len(failed) > 0,
		FailedSources: failed,
		GeneratedAt:   e.now(),
	}

	if result.Partial {
		e.metrics.RecordPartialWindow()
	} else if version == e.version.Load() {
		e.cache.Set(ctx, key, result, e.opts.CacheTTL)
	}
	return result, nil
}

// Latest returns the most recently requested window that has been applied.
func (e *EventAggregationEngine) Latest() (*models.AggregatedWindow, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latest, e.latest != nil
}

// Invalidate discards cached windows after any pool changed.
func (e *EventAggregationEngine) Invalidate(ctx context.Context) {
	e.version.Add(1)
	e.cache.Invalidate(ctx, windowCachePattern(e.userID))
}

func windowCachePattern(userID string) string {
	return fmt.Sprintf("studycal:window:%s:*", userID)
}

// apply records w as latest unless a newer request already landed.
func (e *EventAggregationEngine) apply(w *models.AggregatedWindow) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.latest != nil && e.latest.Sequence > w.Sequence {
		e.logger.Debug("discarding superseded window", zap.Uint64("sequence", w.Sequence), zap.Uint64("latest", e.latest.Sequence))
		return false
	}
	e.latest = w
	return true
}

func (e *EventAggregationEngine) fetchAll(ctx context.Context, window models.TimeWindow) ([]models.Event, []models.SourceKind) {
	results := make([][]models.Event, len(e.sources))
	failures := make([]error, len(e.sources))

	var g errgroup.Group
	for i, src := range e.sources {
		if !src.Available() {
			continue
		}
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(ctx, e.opts.SourceTimeout)
			defer cancel()

			started := time.Now()
			events, err := src.FetchEvents(fetchCtx, window)
			e.metrics.ObserveSourceFetch(src.Kind(), time.Since(started), err)
			if err != nil {
				failures[i] = &appErrors.SourceError{Source: string(src.Kind()), Err: err}
				e.logger.Warn("event source failed",
					zap.String("user_id", e.userID),
					zap.String("source", string(src.Kind())),
					zap.Error(err),
				)
				return nil
			}
			results[i] = events
			return nil
		})
	}
	_ = g.Wait()

	var (
		raw    []models.Event
		failed = make([]models.SourceKind, 0)
		seen   = make(map[models.SourceKind]bool)
	)
	for i, src := range e.sources {
		if failures[i] != nil {
			if !seen[src.Kind()] {
				seen[src.Kind()] = true
				failed = append(failed, src.Kind())
			}
			continue
		}
		raw = append(raw, results[i]...)
	}
	sort.Slice(failed, func(a, b int) bool { return failed[a] < failed[b] })
	return raw, failed
}

func (e *EventAggregationEngine) cacheKey(version uint64, w models.TimeWindow) string {
	return fmt.Sprintf("studycal:window:%s:%d:%d:%d", e.userID, version, w.Start.Unix(), w.End.Unix())
}
