package errors

import (
	"fmt"
	"strings"
)

// NotConnectedError reports a provider-bound action attempted without an active connection.
// It is a precondition failure: callers route the user to the connect flow instead of retrying.
type NotConnectedError struct {
	Provider string
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("%s integration is not connected", strings.ToLower(e.Provider))
}

// SourceError wraps the failure of a single event source fetch.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// AnalysisError reports a failed document analysis for one course.
type AnalysisError struct {
	CourseID string
	Reason   string
	Err      error
}

func (e *AnalysisError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("analysis of course %s failed: %s", e.CourseID, e.Reason)
	}
	return fmt.Sprintf("analysis of course %s failed: %v", e.CourseID, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// SyncError reports the events rejected during a calendar push. Pushed counts the accepted ones.
type SyncError struct {
	Pushed int
	Failed []string
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("calendar sync: %d pushed, %d failed", e.Pushed, len(e.Failed))
}
