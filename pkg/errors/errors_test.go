package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromErrorNotConnected(t *testing.T) {
	err := fmt.Errorf("sync: %w", &NotConnectedError{Provider: "EXTERNAL_CALENDAR"})

	appErr := FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, ErrNotConnected.Code, appErr.Code)
	assert.Equal(t, http.StatusConflict, appErr.Status)
	assert.Equal(t, "EXTERNAL_CALENDAR", appErr.Details["provider"])
}

func TestFromErrorSyncPartialAndTotal(t *testing.T) {
	partial := FromError(&SyncError{Pushed: 2, Failed: []string{"lms:1"}})
	assert.Equal(t, ErrSyncPartial.Code, partial.Code)
	assert.Equal(t, http.StatusMultiStatus, partial.Status)

	total := FromError(&SyncError{Pushed: 0, Failed: []string{"lms:1", "lms:2"}})
	assert.Equal(t, ErrSyncFailed.Code, total.Code)
	assert.Equal(t, http.StatusBadGateway, total.Status)
}

func TestFromErrorAnalysisCarriesCourse(t *testing.T) {
	appErr := FromError(&AnalysisError{CourseID: "course-7", Err: context.DeadlineExceeded})
	assert.Equal(t, ErrAnalysis.Code, appErr.Code)
	assert.Equal(t, "course-7", appErr.Details["course_id"])
	assert.ErrorIs(t, appErr, context.DeadlineExceeded)
}

func TestFromErrorFallsBackToInternal(t *testing.T) {
	appErr := FromError(fmt.Errorf("boom"))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
}

func TestErrorIsMatchesCode(t *testing.T) {
	err := fmt.Errorf("lookup: %w", Clone(ErrNotFound, "course not found"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrConflict)
}
