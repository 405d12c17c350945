package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/studycal-api/internal/models"
	"github.com/noah-isme/studycal-api/pkg/config"
	appErrors "github.com/noah-isme/studycal-api/pkg/errors"
	"github.com/noah-isme/studycal-api/pkg/extcal"
)

type windowReader interface {
	Collect(ctx context.Context, start, end time.Time) (*models.AggregatedWindow, error)
}

// SyncOptions tunes a SyncCoordinator.
type SyncOptions struct {
	Scope       string
	WindowDays  int
	PushTimeout time.Duration
}

// SyncCoordinator pushes the aggregated calendar to the external calendar. Pushes are serialized per user.
type SyncCoordinator struct {
	userID   string
	engine   windowReader
	registry *IntegrationRegistry
	creds    credentialResolver
	target   extcal.Target
	opts     SyncOptions
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time

	mu         sync.Mutex
	lastFailed []models.Event
	listeners  []func(*models.SyncOutcome, error)
}

// NewSyncCoordinator wires a coordinator for one user.
func NewSyncCoordinator(userID string, engine windowReader, registry *IntegrationRegistry, creds credentialResolver, target extcal.Target, opts SyncOptions, metrics *MetricsService, logger *zap.Logger) *SyncCoordinator {
	if opts.WindowDays <= 0 {
		opts.WindowDays = 30
	}
	if opts.PushTimeout <= 0 {
		opts.PushTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncCoordinator{
		userID:   userID,
		engine:   engine,
		registry: registry,
		creds:    creds,
		target:   target,
		opts:     opts,
		metrics:  metrics,
		logger:   logger.With(zap.String("user_id", userID), zap.String("target", target.Name())),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// OnComplete registers a listener called after every push attempt that reached the target.
func (s *SyncCoordinator) OnComplete(fn func(*models.SyncOutcome, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// ExternalKey derives the provider-side event id from an origin ref.
// The result only uses characters Google Calendar accepts in event ids.
func ExternalKey(originRef string) string {
	sum := sha256.Sum256([]byte(originRef))
	return "sc" + hex.EncodeToString(sum[:])[:32]
}

// SyncAll pushes the configured scope. Rejected events are reported through *SyncError alongside the outcome.
// Targets that replace the whole calendar are not pushed to while the window is partial.
func (s *SyncCoordinator) SyncAll(ctx context.Context) (*models.SyncOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.token(ctx)
	if err != nil {
		return nil, err
	}
	start, end := s.scope()
	window, err := s.engine.Collect(ctx, start, end)
	if err != nil {
		return nil, err
	}
	if window.Partial && extcal.ReplacesAll(s.target) {
		// A rewrite would drop the failed sources' events from the published feed.
		s.logger.Warn("calendar push deferred, window is partial",
			zap.String("target", s.target.Name()), zap.Any("failed_sources", window.FailedSources))
		outcome := &models.SyncOutcome{
			Failures:      []models.SyncFailure{},
			Partial:       true,
			FailedSources: window.FailedSources,
			Deferred:      true,
		}
		for _, fn := range s.listeners {
			fn(outcome, nil)
		}
		return outcome, nil
	}
	outcome, err := s.push(ctx, token, window.Events)
	if outcome != nil {
		outcome.Partial = window.Partial
		outcome.FailedSources = window.FailedSources
	}
	return outcome, err
}

// RetryFailed pushes only the events rejected by the previous push.
func (s *SyncCoordinator) RetryFailed(ctx context.Context) (*models.SyncOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.token(ctx)
	if err != nil {
		return nil, err
	}
	if len(s.lastFailed) == 0 {
		return &models.SyncOutcome{Failures: []models.SyncFailure{}}, nil
	}
	return s.push(ctx, token, append([]models.Event(nil), s.lastFailed...))
}

// PendingFailures reports how many events await a retry.
func (s *SyncCoordinator) PendingFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lastFailed)
}

func (s *SyncCoordinator) token(ctx context.Context) (string, error) {
	ref, err := s.registry.RequireConnected(models.ProviderExternalCalendar)
	if err != nil {
		return "", err
	}
	return s.creds.Resolve(ctx, s.userID, ref)
}

func (s *SyncCoordinator) scope() (time.Time, time.Time) {
	now := s.now()
	if s.opts.Scope == config.SyncScopeAll {
		return now.AddDate(-1, 0, 0), now.AddDate(1, 0, 0)
	}
	return now, now.AddDate(0, 0, s.opts.WindowDays)
}

// push must be called with s.mu held.
func (s *SyncCoordinator) push(ctx context.Context, token string, events []models.Event) (*models.SyncOutcome, error) {
	items := make([]extcal.Item, 0, len(events))
	byKey := make(map[string]models.Event, len(events))
	updated := s.now()
	for _, ev := range events {
		key := ExternalKey(dedupeKey(ev))
		if _, dup := byKey[key]; dup {
			continue
		}
		byKey[key] = ev
		items = append(items, pushItem(ev, updated))
	}

	pushCtx, cancel := context.WithTimeout(ctx, s.opts.PushTimeout)
	defer cancel()
	results, err := s.target.Push(pushCtx, extcal.Batch{Owner: s.userID, Token: token, Items: items})
	if errors.Is(err, extcal.ErrUnauthorized) {
		if s.registry.MarkExpired(models.ProviderExternalCalendar) {
			s.logger.Warn("external calendar credential expired")
		}
		return nil, &appErrors.NotConnectedError{Provider: string(models.ProviderExternalCalendar)}
	}

	outcome := &models.SyncOutcome{Failures: []models.SyncFailure{}}
	var failed []models.Event
	reject := func(key, reason string) {
		ev := byKey[key]
		failed = append(failed, ev)
		outcome.Failures = append(outcome.Failures, models.SyncFailure{
			OriginRef:   dedupeKey(ev),
			ExternalKey: key,
			Title:       ev.Title,
			Reason:      reason,
		})
	}

	if err != nil {
		s.logger.Error("calendar push failed", zap.Int("items", len(items)), zap.Error(err))
		for _, item := range items {
			reject(item.Key, err.Error())
		}
	} else {
		reported := make(map[string]bool, len(results))
		for _, res := range results {
			if _, known := byKey[res.Key]; !known || reported[res.Key] {
				continue
			}
			reported[res.Key] = true
			if res.Err != nil {
				reject(res.Key, res.Err.Error())
				continue
			}
			outcome.Pushed++
		}
		for _, item := range items {
			if !reported[item.Key] {
				reject(item.Key, "no result reported by target")
			}
		}
	}

	s.lastFailed = failed
	s.metrics.RecordSync(s.target.Name(), outcome.Pushed, len(outcome.Failures))

	var syncErr error
	if len(outcome.Failures) > 0 {
		refs := make([]string, 0, len(outcome.Failures))
		for _, f := range outcome.Failures {
			refs = append(refs, f.OriginRef)
		}
		syncErr = &appErrors.SyncError{Pushed: outcome.Pushed, Failed: refs}
		s.logger.Warn("calendar push incomplete", zap.Int("pushed", outcome.Pushed), zap.Int("failed", len(refs)))
	} else {
		s.logger.Info("calendar push completed", zap.Int("pushed", outcome.Pushed))
	}
	for _, fn := range s.listeners {
		fn(outcome, syncErr)
	}
	return outcome, syncErr
}

// pushItem maps an event onto its external calendar representation.
func pushItem(ev models.Event, updated time.Time) extcal.Item {
	item := extcal.Item{
		Key:         ExternalKey(dedupeKey(ev)),
		Title:       ev.Title,
		Description: ev.Description,
		Category:    string(ev.Category),
		Color:       ev.ColorHex,
		Start:       ev.StartTime,
		End:         ev.EndTime,
		Updated:     updated,
	}
	if ev.Location != nil {
		item.Location = *ev.Location
	}
	return item
}
