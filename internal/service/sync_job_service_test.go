package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studycal-api/internal/models"
	appErrors "github.com/noah-isme/studycal-api/pkg/errors"
	"github.com/noah-isme/studycal-api/pkg/jobs"
)

func waitForJob(t *testing.T, svc *SyncJobService, userID, id string) jobs.Status {
	t.Helper()
	var status jobs.Status
	require.Eventually(t, func() bool {
		s, err := svc.Status(userID, id)
		status = s
		return err == nil && s.Done()
	}, 2*time.Second, 5*time.Millisecond)
	return status
}

func TestSyncJobRunsForOwner(t *testing.T) {
	store := newMemoryIntegrationStore()
	require.NoError(t, store.Upsert(context.Background(), "user-1", models.IntegrationStatus{Provider: models.ProviderExternalCalendar, Connected: true, CredentialRef: strPtr("ref")}))
	sessions := newTestSessions(store, &recordingHub{}, &stubLMS{})
	svc := NewSyncJobService(sessions, jobs.QueueConfig{Workers: 1, MaxRetries: 2, RetryDelay: 5 * time.Millisecond})
	svc.Start(context.Background())
	defer svc.Stop()

	id, err := svc.Enqueue("user-1", JobSyncAll)
	require.NoError(t, err)

	status := waitForJob(t, svc, "user-1", id)
	assert.Equal(t, jobs.StateSucceeded, status.State)
	outcome, ok := status.Result.(*models.SyncOutcome)
	require.True(t, ok)
	assert.Empty(t, outcome.Failures)

	_, err = svc.Status("user-2", id)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestSyncJobWithoutCalendarFailsWithoutRetry(t *testing.T) {
	sessions := newTestSessions(newMemoryIntegrationStore(), &recordingHub{}, &stubLMS{})
	svc := NewSyncJobService(sessions, jobs.QueueConfig{Workers: 1, MaxRetries: 3, RetryDelay: 5 * time.Millisecond})
	svc.Start(context.Background())
	defer svc.Stop()

	id, err := svc.Enqueue("user-1", JobSyncRetry)
	require.NoError(t, err)

	status := waitForJob(t, svc, "user-1", id)
	assert.Equal(t, jobs.StateFailed, status.State)
	assert.Equal(t, 1, status.Attempts)
	assert.Contains(t, status.Error, "not connected")
}

func TestSyncJobRejectsUnknownType(t *testing.T) {
	svc := NewSyncJobService(newTestSessions(newMemoryIntegrationStore(), &recordingHub{}, &stubLMS{}), jobs.QueueConfig{})
	_, err := svc.Enqueue("user-1", "sync.everything")
	assert.ErrorIs(t, err, appErrors.ErrUnsupported)
}
