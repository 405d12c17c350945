package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/studycal-api/internal/models"
	appErrors "github.com/noah-isme/studycal-api/pkg/errors"
)

// IntegrationRepository persists per-user provider connection state.
type IntegrationRepository struct {
	db *sqlx.DB
}

// NewIntegrationRepository constructs an integration repository.
func NewIntegrationRepository(db *sqlx.DB) *IntegrationRepository {
	return &IntegrationRepository{db: db}
}

// ListByUser returns every stored status of the user.
func (r *IntegrationRepository) ListByUser(ctx context.Context, userID string) ([]models.IntegrationStatus, error) {
	const query = `SELECT provider, connected, credential_ref, updated_at FROM integrations WHERE user_id = $1 ORDER BY provider`
	var statuses []models.IntegrationStatus
	if err := r.db.SelectContext(ctx, &statuses, query, userID); err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	return statuses, nil
}

// Upsert stores the status of one provider.
func (r *IntegrationRepository) Upsert(ctx context.Context, userID string, status models.IntegrationStatus) error {
	if status.UpdatedAt.IsZero() {
		status.UpdatedAt = time.Now().UTC()
	}
	record := models.IntegrationRecord{UserID: userID, IntegrationStatus: status}
	const query = `INSERT INTO integrations (user_id, provider, connected, credential_ref, updated_at)
VALUES (:user_id, :provider, :connected, :credential_ref, :updated_at)
ON CONFLICT (user_id, provider) DO UPDATE SET connected = EXCLUDED.connected, credential_ref = EXCLUDED.credential_ref, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("upsert integration: %w", err)
	}
	return nil
}

// CredentialRepository stores sealed provider secrets.
type CredentialRepository struct {
	db *sqlx.DB
}

// NewCredentialRepository constructs a credential repository.
func NewCredentialRepository(db *sqlx.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Create inserts a sealed credential.
func (r *CredentialRepository) Create(ctx context.Context, cred *models.Credential) error {
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO credentials (ref, user_id, provider, sealed, created_at) VALUES (:ref, :user_id, :provider, :sealed, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, cred); err != nil {
		return fmt.Errorf("create credential: %w", err)
	}
	return nil
}

// Get loads a credential by ref, scoped to its owner.
func (r *CredentialRepository) Get(ctx context.Context, userID, ref string) (*models.Credential, error) {
	const query = `SELECT ref, user_id, provider, sealed, created_at FROM credentials WHERE ref = $1 AND user_id = $2`
	var cred models.Credential
	if err := r.db.GetContext(ctx, &cred, query, ref, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "credential not found")
		}
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return &cred, nil
}

// DeleteForProvider drops every credential of the user for provider except keep.
func (r *CredentialRepository) DeleteForProvider(ctx context.Context, userID string, provider models.Provider, keep string) error {
	const query = `DELETE FROM credentials WHERE user_id = $1 AND provider = $2 AND ref <> $3`
	if _, err := r.db.ExecContext(ctx, query, userID, provider, keep); err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}
