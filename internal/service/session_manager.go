package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/studycal-api/internal/models"
	"github.com/noah-isme/studycal-api/internal/realtime"
	"github.com/noah-isme/studycal-api/pkg/extcal"
)

type integrationStore interface {
	ListByUser(ctx context.Context, userID string) ([]models.IntegrationStatus, error)
	Upsert(ctx context.Context, userID string, status models.IntegrationStatus) error
}

type statusPublisher interface {
	Publish(userID string, msgType realtime.MessageType, payload any)
}

// SessionDeps are the shared collaborators every user session is built from.
type SessionDeps struct {
	Integrations integrationStore
	Events       localEventLister
	Credentials  credentialResolver
	LMS          lmsAPI
	Analyzer     documentAnalyzer
	Documents    documentStore
	Target       extcal.Target
	Cache        *CacheService
	Metrics      *MetricsService
	Hub          statusPublisher
	Aggregation  AggregationOptions
	Analysis     AnalysisOptions
	Sync         SyncOptions
	CourseTTL    time.Duration
	// AutoSync, when set, is called after a successful analysis for users with a connected calendar.
	AutoSync func(userID string)
}

// Session holds one user's live integration state.
type Session struct {
	UserID   string
	Registry *IntegrationRegistry
	LMS      *LMSFeedSource
	Engine   *EventAggregationEngine
	Analysis *SyllabusAnalysisOrchestrator
	Sync     *SyncCoordinator

	lastUsed atomic.Int64
}

func (s *Session) touch(now time.Time) { s.lastUsed.Store(now.UnixNano()) }

// SessionManager keeps sessions isolated per user and evicts idle ones.
type SessionManager struct {
	deps    SessionDeps
	idleTTL time.Duration
	logger  *zap.Logger
	now     func() time.Time

	flights  singleflight.Group
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionManager constructs a manager.
func NewSessionManager(deps SessionDeps, idleTTL time.Duration, logger *zap.Logger) *SessionManager {
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.CourseTTL <= 0 {
		deps.CourseTTL = 5 * time.Minute
	}
	return &SessionManager{
		deps:     deps,
		idleTTL:  idleTTL,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Get returns the user's session, building and hydrating it on first use.
func (m *SessionManager) Get(ctx context.Context, userID string) (*Session, error) {
	if sess, ok := m.Peek(userID); ok {
		sess.touch(m.now())
		return sess, nil
	}
	v, err, _ := m.flights.Do(userID, func() (interface{}, error) {
		if sess, ok := m.Peek(userID); ok {
			return sess, nil
		}
		sess, err := m.build(ctx, userID)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.sessions[userID] = sess
		n := len(m.sessions)
		m.mu.Unlock()
		m.deps.Metrics.SetActiveSessions(n)
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	sess := v.(*Session)
	sess.touch(m.now())
	return sess, nil
}

// Peek returns an existing session without creating one.
func (m *SessionManager) Peek(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[userID]
	return sess, ok
}

// Len reports the number of live sessions.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// InvalidateCalendar drops cached windows for userID whether or not a session is live.
func (m *SessionManager) InvalidateCalendar(ctx context.Context, userID string) {
	if sess, ok := m.Peek(userID); ok {
		sess.Engine.Invalidate(ctx)
	} else {
		m.deps.Cache.Invalidate(ctx, windowCachePattern(userID))
	}
	m.publish(userID, realtime.TypeCalendarChanged, map[string]string{"reason": "local_events"})
}

// EvictIdle drops sessions unused for longer than the idle TTL and returns how many were removed.
func (m *SessionManager) EvictIdle(now time.Time) int {
	cutoff := now.Add(-m.idleTTL).UnixNano()
	m.mu.Lock()
	removed := 0
	for id, sess := range m.sessions {
		if sess.lastUsed.Load() < cutoff {
			delete(m.sessions, id)
			removed++
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()
	m.deps.Metrics.SetActiveSessions(n)
	if removed > 0 {
		m.logger.Info("evicted idle sessions", zap.Int("removed", removed), zap.Int("active", n))
	}
	return removed
}

// EvictIdleTask adapts EvictIdle to the scheduler.
func (m *SessionManager) EvictIdleTask(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.EvictIdle(m.now())
	return nil
}

func (m *SessionManager) build(ctx context.Context, userID string) (*Session, error) {
	stored, err := m.deps.Integrations.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	logger := m.logger.With(zap.String("user_id", userID))
	registry := NewIntegrationRegistry(stored...)
	feed := NewLMSFeedSource(userID, m.deps.LMS, registry, m.deps.Credentials, m.deps.CourseTTL, logger)
	analysis := NewSyllabusAnalysisOrchestrator(userID, m.deps.Analyzer, feed, registry, m.deps.Documents, m.deps.Cache, m.deps.Metrics, m.deps.Analysis, logger)
	sources := []EventSource{
		NewLocalEventSource(userID, m.deps.Events, m.deps.Aggregation.Location, m.deps.Aggregation.MaxOccurrences, logger),
		NewSyllabusDerivedSource(analysis),
		feed,
	}
	engine := NewEventAggregationEngine(userID, sources, m.deps.Aggregation, m.deps.Cache, m.deps.Metrics, logger)
	coordinator := NewSyncCoordinator(userID, engine, registry, m.deps.Credentials, m.deps.Target, m.deps.Sync, m.deps.Metrics, logger)

	sess := &Session{UserID: userID, Registry: registry, LMS: feed, Engine: engine, Analysis: analysis, Sync: coordinator}

	registry.OnChange(func(status models.IntegrationStatus, reason ChangeReason) {
		if status.Provider == models.ProviderLMS {
			feed.ForgetCourses()
		}
		bg := context.Background()
		engine.Invalidate(bg)
		if reason == ChangeExpired {
			persistCtx, cancel := context.WithTimeout(bg, 5*time.Second)
			if err := m.deps.Integrations.Upsert(persistCtx, userID, status); err != nil {
				logger.Error("failed to persist expired integration", zap.String("provider", string(status.Provider)), zap.Error(err))
			}
			cancel()
		}
		m.publish(userID, realtime.TypeIntegrationChanged, map[string]any{
			"provider":  status.Provider,
			"connected": status.Connected,
			"reason":    reason,
		})
	})

	analysis.OnChange(func(res models.AnalysisResult) {
		m.publish(userID, realtime.TypeAnalysisChanged, map[string]any{
			"course_id":      res.CourseID,
			"status":         res.Status,
			"failure_reason": res.FailureReason,
		})
		switch res.Status {
		case models.AnalysisAnalyzed, models.AnalysisUnanalyzed:
			engine.Invalidate(context.Background())
			m.publish(userID, realtime.TypeCalendarChanged, map[string]string{"reason": "analysis", "course_id": res.CourseID})
		}
		if res.Status == models.AnalysisAnalyzed && m.deps.AutoSync != nil && registry.IsConnected(models.ProviderExternalCalendar) {
			m.deps.AutoSync(userID)
		}
	})

	coordinator.OnComplete(func(outcome *models.SyncOutcome, err error) {
		if err != nil {
			m.publish(userID, realtime.TypeSyncFailed, outcome)
			return
		}
		m.publish(userID, realtime.TypeSyncCompleted, outcome)
	})

	if restored := analysis.Hydrate(ctx); restored > 0 {
		logger.Debug("restored analysis results", zap.Int("courses", restored))
	}
	return sess, nil
}

func (m *SessionManager) publish(userID string, msgType realtime.MessageType, payload any) {
	if m.deps.Hub != nil {
		m.deps.Hub.Publish(userID, msgType, payload)
	}
}
