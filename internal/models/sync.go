package models

// SyncFailure describes one event the external calendar rejected.
type SyncFailure struct {
	OriginRef   string `json:"origin_ref"`
	ExternalKey string `json:"external_key"`
	Title       string `json:"title"`
	Reason      string `json:"reason"`
}

// SyncOutcome is the result of a push to the external calendar.
type SyncOutcome struct {
	Pushed        int           `json:"pushed"`
	Failures      []SyncFailure `json:"failures"`
	Partial       bool          `json:"partial"`
	FailedSources []SourceKind  `json:"failed_sources,omitempty"`
	Deferred      bool          `json:"deferred,omitempty"`
}
