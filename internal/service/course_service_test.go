package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studycal-api/internal/models"
	appErrors "github.com/noah-isme/studycal-api/pkg/errors"
	"github.com/noah-isme/studycal-api/pkg/lms"
)

func TestCourseListRequiresLMS(t *testing.T) {
	svc := NewCourseService(newTestSessions(newMemoryIntegrationStore(), &recordingHub{}, &stubLMS{}))

	_, err := svc.List(context.Background(), "user-1")
	var notConnected *appErrors.NotConnectedError
	require.ErrorAs(t, err, &notConnected)
	assert.Equal(t, string(models.ProviderLMS), notConnected.Provider)
}

func TestCourseListCarriesAnalysisStatus(t *testing.T) {
	store := newMemoryIntegrationStore()
	require.NoError(t, store.Upsert(context.Background(), "user-1", models.IntegrationStatus{Provider: models.ProviderLMS, Connected: true, CredentialRef: strPtr("ref")}))
	client := &stubLMS{courses: []lms.Course{{ID: 7, Name: "Writing", SyllabusBody: "Week 1"}, {ID: 8, Name: "Physics"}}}
	svc := NewCourseService(newTestSessions(store, &recordingHub{}, client))

	_, err := svc.Analyze(context.Background(), "user-1", "7")
	require.NoError(t, err)

	courses, err := svc.List(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, courses, 2)
	assert.Equal(t, models.AnalysisAnalyzed, courses[0].AnalysisStatus)
	assert.Equal(t, models.AnalysisUnanalyzed, courses[1].AnalysisStatus)

	res, err := svc.Invalidate(context.Background(), "user-1", "7")
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisUnanalyzed, res.Status)
}
