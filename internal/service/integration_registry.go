package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/noah-isme/studycal-api/internal/models"
	appErrors "github.com/noah-isme/studycal-api/pkg/errors"
)

// ChangeReason tells registry listeners why a status changed.
type ChangeReason string

const (
	ChangeSet     ChangeReason = "set"
	ChangeExpired ChangeReason = "expired"
)

// IntegrationRegistry is the in-memory connection state of one user's providers.
// It performs no I/O; listeners run synchronously after the lock is released.
type IntegrationRegistry struct {
	mu        sync.RWMutex
	statuses  map[models.Provider]models.IntegrationStatus
	listeners []func(models.IntegrationStatus, ChangeReason)
	now       func() time.Time
}

// NewIntegrationRegistry seeds a registry with previously stored statuses. Illegal entries are ignored.
func NewIntegrationRegistry(initial ...models.IntegrationStatus) *IntegrationRegistry {
	r := &IntegrationRegistry{
		statuses: make(map[models.Provider]models.IntegrationStatus, len(models.Providers)),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, st := range initial {
		if _, ok := models.ParseProvider(string(st.Provider)); ok && st.Valid() {
			r.statuses[st.Provider] = st
		}
	}
	return r
}

// OnChange registers a listener invoked after every status change.
func (r *IntegrationRegistry) OnChange(fn func(models.IntegrationStatus, ChangeReason)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// SetStatus replaces the status of provider. A connected status without a credential is rejected.
func (r *IntegrationRegistry) SetStatus(provider models.Provider, status models.IntegrationStatus) error {
	if _, ok := models.ParseProvider(string(provider)); !ok {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown provider %q", provider))
	}
	status.Provider = provider
	if !status.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "a connected integration requires a credential")
	}
	if !status.Connected {
		status.CredentialRef = nil
	}
	status.UpdatedAt = r.now()

	r.mu.Lock()
	r.statuses[provider] = status
	listeners := r.listeners
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(status, ChangeSet)
	}
	return nil
}

// GetStatus returns the status of provider; unknown providers read as disconnected.
func (r *IntegrationRegistry) GetStatus(provider models.Provider) models.IntegrationStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if st, ok := r.statuses[provider]; ok {
		return st
	}
	return models.IntegrationStatus{Provider: provider}
}

// IsConnected reports whether provider passes the gate.
func (r *IntegrationRegistry) IsConnected(provider models.Provider) bool {
	st := r.GetStatus(provider)
	return st.Connected && st.HasCredential()
}

// RequireConnected is the gate in front of every provider-bound call.
func (r *IntegrationRegistry) RequireConnected(provider models.Provider) (string, error) {
	st := r.GetStatus(provider)
	if !st.Connected || !st.HasCredential() {
		return "", &appErrors.NotConnectedError{Provider: string(provider)}
	}
	return *st.CredentialRef, nil
}

// MarkExpired disconnects provider after the upstream rejected its credential.
// It reports false when the provider was already disconnected.
func (r *IntegrationRegistry) MarkExpired(provider models.Provider) bool {
	r.mu.Lock()
	st, ok := r.statuses[provider]
	if !ok || !st.Connected {
		r.mu.Unlock()
		return false
	}
	st.Connected = false
	st.CredentialRef = nil
	st.UpdatedAt = r.now()
	r.statuses[provider] = st
	listeners := r.listeners
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(st, ChangeExpired)
	}
	return true
}

// Snapshot lists every provider's status in display order.
func (r *IntegrationRegistry) Snapshot() []models.IntegrationStatus {
	out := make([]models.IntegrationStatus, 0, len(models.Providers))
	for _, p := range models.Providers {
		out = append(out, r.GetStatus(p))
	}
	return out
}
