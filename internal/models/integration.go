package models

import (
	"strings"
	"time"
)

// Provider identifies an external service a user can connect.
type Provider string

const (
	ProviderLMS              Provider = "LMS"
	ProviderExternalCalendar Provider = "EXTERNAL_CALENDAR"
)

// Providers lists every supported provider in display order.
var Providers = []Provider{ProviderLMS, ProviderExternalCalendar}

// ParseProvider accepts the canonical names plus the lowercase/hyphenated URL forms.
func ParseProvider(raw string) (Provider, bool) {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), "-", "_"))
	switch Provider(normalized) {
	case ProviderLMS, "CANVAS":
		return ProviderLMS, true
	case ProviderExternalCalendar, "CALENDAR", "GOOGLE_CALENDAR":
		return ProviderExternalCalendar, true
	default:
		return "", false
	}
}

// IntegrationStatus is the per-user connection state of one provider.
// CredentialRef points into the credential vault; the raw secret never leaves it.
type IntegrationStatus struct {
	Provider      Provider  `db:"provider" json:"provider"`
	Connected     bool      `db:"connected" json:"connected"`
	CredentialRef *string   `db:"credential_ref" json:"-"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// HasCredential reports whether a credential handle is attached.
func (s IntegrationStatus) HasCredential() bool {
	return s.CredentialRef != nil && *s.CredentialRef != ""
}

// Valid rejects the illegal connected-without-credential state.
func (s IntegrationStatus) Valid() bool {
	return !s.Connected || s.HasCredential()
}

// IntegrationRecord is the persisted form of an IntegrationStatus.
type IntegrationRecord struct {
	UserID string `db:"user_id"`
	IntegrationStatus
}

// Credential is a sealed provider secret owned by a user.
type Credential struct {
	Ref       string    `db:"ref"`
	UserID    string    `db:"user_id"`
	Provider  Provider  `db:"provider"`
	Sealed    string    `db:"sealed"`
	CreatedAt time.Time `db:"created_at"`
}
