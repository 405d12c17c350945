package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Status  int                    `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors sharing the same code so callers can compare against the predefined values.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) || e == nil || other == nil {
		return false
	}
	return e.Code == other.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound      = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden     = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized  = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict      = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation    = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal      = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss     = New("CACHE_MISS", http.StatusNotFound, "cache miss")
	ErrNotConnected  = New("NOT_CONNECTED", http.StatusConflict, "integration not connected")
	ErrSourceFailed  = New("SOURCE_UNAVAILABLE", http.StatusBadGateway, "event source unavailable")
	ErrAnalysis      = New("ANALYSIS_FAILED", http.StatusBadGateway, "syllabus analysis failed")
	ErrSyncFailed    = New("SYNC_FAILED", http.StatusBadGateway, "calendar sync failed")
	ErrSyncPartial   = New("SYNC_PARTIAL", http.StatusMultiStatus, "calendar sync partially failed")
	ErrAnalysisBusy  = New("ANALYSIS_IN_PROGRESS", http.StatusConflict, "analysis already in progress")
	ErrUnsupported   = New("UNSUPPORTED", http.StatusBadRequest, "unsupported option")
	ErrPayloadTooBig = New("PAYLOAD_TOO_LARGE", http.StatusRequestEntityTooLarge, "payload too large")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	var notConnected *NotConnectedError
	if errors.As(err, &notConnected) {
		out := Clone(ErrNotConnected, notConnected.Error())
		out.Err = err
		out.Details = map[string]interface{}{"provider": notConnected.Provider}
		return out
	}
	var analysisErr *AnalysisError
	if errors.As(err, &analysisErr) {
		out := Clone(ErrAnalysis, analysisErr.Error())
		out.Err = err
		out.Details = map[string]interface{}{"course_id": analysisErr.CourseID}
		return out
	}
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		base := ErrSyncFailed
		if syncErr.Pushed > 0 {
			base = ErrSyncPartial
		}
		out := Clone(base, syncErr.Error())
		out.Err = err
		out.Details = map[string]interface{}{"pushed": syncErr.Pushed, "failed": syncErr.Failed}
		return out
	}
	var sourceErr *SourceError
	if errors.As(err, &sourceErr) {
		out := Clone(ErrSourceFailed, sourceErr.Error())
		out.Err = err
		out.Details = map[string]interface{}{"source": sourceErr.Source}
		return out
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
