package dto

import (
	"time"

	"github.com/noah-isme/studycal-api/internal/models"
)

// UpcomingResponse lists the next assignments across every source.
type UpcomingResponse struct {
	Items         []models.Event      `json:"items"`
	Partial       bool                `json:"partial"`
	FailedSources []models.SourceKind `json:"failed_sources"`
	Superseded    bool                `json:"superseded"`
}

// FreeSlotsResponse lists the open slots of one day.
type FreeSlotsResponse struct {
	Date     string            `json:"date"`
	Duration string            `json:"duration"`
	Slots    []models.TimeSlot `json:"slots"`
}

// FeedLinkResponse carries a signed ICS subscription URL.
type FeedLinkResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SyncJobAccepted is returned when a push was queued.
type SyncJobAccepted struct {
	JobID     string `json:"job_id"`
	StatusURL string `json:"status_url"`
}
