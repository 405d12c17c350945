package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studycal-api/internal/models"
	"github.com/noah-isme/studycal-api/internal/realtime"
	"github.com/noah-isme/studycal-api/pkg/lms"
)

type memoryIntegrationStore struct {
	mu       sync.Mutex
	statuses map[string]map[models.Provider]models.IntegrationStatus
	lists    int
}

func newMemoryIntegrationStore() *memoryIntegrationStore {
	return &memoryIntegrationStore{statuses: make(map[string]map[models.Provider]models.IntegrationStatus)}
}

func (s *memoryIntegrationStore) ListByUser(_ context.Context, userID string) ([]models.IntegrationStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	var out []models.IntegrationStatus
	for _, st := range s.statuses[userID] {
		out = append(out, st)
	}
	return out, nil
}

func (s *memoryIntegrationStore) Upsert(_ context.Context, userID string, status models.IntegrationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statuses[userID] == nil {
		s.statuses[userID] = make(map[models.Provider]models.IntegrationStatus)
	}
	s.statuses[userID][status.Provider] = status
	return nil
}

type recordingHub struct {
	mu       sync.Mutex
	messages []realtime.MessageType
}

func (h *recordingHub) Publish(_ string, msgType realtime.MessageType, _ any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msgType)
}

func (h *recordingHub) types() []realtime.MessageType {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]realtime.MessageType(nil), h.messages...)
}

func newTestSessions(store *memoryIntegrationStore, hub *recordingHub, client *stubLMS) *SessionManager {
	return NewSessionManager(SessionDeps{
		Integrations: store,
		Events:       &stubLocalRepo{},
		Credentials:  stubCreds{token: "tok"},
		LMS:          client,
		Analyzer:     &stubAnalyzer{resp: sampleAnalysis()},
		Documents:    &memoryDocStore{},
		Target:       newRecordingTarget(),
		Hub:          hub,
		Aggregation:  AggregationOptions{SourceTimeout: time.Second},
	}, time.Minute, nil)
}

func TestSessionManagerHydratesRegistryOnce(t *testing.T) {
	store := newMemoryIntegrationStore()
	require.NoError(t, store.Upsert(context.Background(), "user-1", models.IntegrationStatus{Provider: models.ProviderLMS, Connected: true, CredentialRef: strPtr("ref")}))
	sessions := newTestSessions(store, &recordingHub{}, &stubLMS{})

	var wg sync.WaitGroup
	got := make([]*Session, 10)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, err := sessions.Get(context.Background(), "user-1")
			require.NoError(t, err)
			got[i] = sess
		}(i)
	}
	wg.Wait()

	for _, sess := range got {
		assert.Same(t, got[0], sess)
	}
	assert.Equal(t, 1, store.lists)
	assert.True(t, got[0].Registry.IsConnected(models.ProviderLMS))
	assert.Equal(t, 1, sessions.Len())
}

func TestSessionsAreIsolatedPerUser(t *testing.T) {
	store := newMemoryIntegrationStore()
	require.NoError(t, store.Upsert(context.Background(), "alice", models.IntegrationStatus{Provider: models.ProviderLMS, Connected: true, CredentialRef: strPtr("ref")}))
	sessions := newTestSessions(store, &recordingHub{}, &stubLMS{})

	alice, err := sessions.Get(context.Background(), "alice")
	require.NoError(t, err)
	bob, err := sessions.Get(context.Background(), "bob")
	require.NoError(t, err)
	assert.True(t, alice.Registry.IsConnected(models.ProviderLMS))
	assert.False(t, bob.Registry.IsConnected(models.ProviderLMS))
}

func TestExpiredCredentialIsPersistedAndPublished(t *testing.T) {
	store := newMemoryIntegrationStore()
	require.NoError(t, store.Upsert(context.Background(), "user-1", models.IntegrationStatus{Provider: models.ProviderLMS, Connected: true, CredentialRef: strPtr("ref")}))
	hub := &recordingHub{}
	sessions := newTestSessions(store, hub, &stubLMS{err: lms.ErrUnauthorized})

	sess, err := sessions.Get(context.Background(), "user-1")
	require.NoError(t, err)
	window, err := sess.Engine.GetWindow(context.Background(), at("2026-03-01T00:00:00Z"), at("2026-03-31T00:00:00Z"))
	require.NoError(t, err)
	assert.Equal(t, []models.SourceKind{models.SourceLMS}, window.FailedSources)

	assert.False(t, store.statuses["user-1"][models.ProviderLMS].Connected)
	assert.Contains(t, hub.types(), realtime.TypeIntegrationChanged)
}

func TestAnalysisSuccessTriggersAutoSync(t *testing.T) {
	store := newMemoryIntegrationStore()
	for _, p := range []models.Provider{models.ProviderLMS, models.ProviderExternalCalendar} {
		require.NoError(t, store.Upsert(context.Background(), "user-1", models.IntegrationStatus{Provider: p, Connected: true, CredentialRef: strPtr("ref")}))
	}
	hub := &recordingHub{}
	sessions := newTestSessions(store, hub, &stubLMS{courses: []lms.Course{{ID: 7, Name: "Writing", SyllabusBody: "Week 1"}}})
	var synced []string
	sessions.deps.AutoSync = func(userID string) { synced = append(synced, userID) }

	sess, err := sessions.Get(context.Background(), "user-1")
	require.NoError(t, err)
	_, err = sess.Analysis.Trigger(context.Background(), "7")
	require.NoError(t, err)

	assert.Equal(t, []string{"user-1"}, synced)
	assert.Contains(t, hub.types(), realtime.TypeAnalysisChanged)
	assert.Contains(t, hub.types(), realtime.TypeCalendarChanged)

	window, err := sess.Engine.GetWindow(context.Background(), at("2026-03-01T00:00:00Z"), at("2026-04-30T00:00:00Z"))
	require.NoError(t, err)
	assert.Len(t, window.Events, 2)
}

func TestEvictIdleSessions(t *testing.T) {
	sessions := newTestSessions(newMemoryIntegrationStore(), &recordingHub{}, &stubLMS{})
	now := at("2026-03-01T10:00:00Z")
	sessions.now = func() time.Time { return now }

	_, err := sessions.Get(context.Background(), "idle")
	require.NoError(t, err)
	now = now.Add(50 * time.Second)
	_, err = sessions.Get(context.Background(), "busy")
	require.NoError(t, err)

	assert.Equal(t, 1, sessions.EvictIdle(now.Add(20*time.Second)))
	_, ok := sessions.Peek("idle")
	assert.False(t, ok)
	_, ok = sessions.Peek("busy")
	assert.True(t, ok)
}
