package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/studycal-api/internal/models"
)

type credentialRepository interface {
	Create(ctx context.Context, cred *models.Credential) error
	Get(ctx context.Context, userID, ref string) (*models.Credential, error)
	DeleteForProvider(ctx context.Context, userID string, provider models.Provider, keep string) error
}

type sealer interface {
	Seal(plain string) (string, error)
	Open(token string) (string, error)
}

// CredentialService stores provider tokens sealed at rest and hands out opaque refs.
type CredentialService struct {
	repo   credentialRepository
	vault  sealer
	logger *zap.Logger
}

// NewCredentialService constructs a credential service.
func NewCredentialService(repo credentialRepository, vault sealer, logger *zap.Logger) *CredentialService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialService{repo: repo, vault: vault, logger: logger}
}

// Store seals token and returns its ref.
func (s *CredentialService) Store(ctx context.Context, userID string, provider models.Provider, token string) (string, error) {
	sealed, err := s.vault.Seal(token)
	if err != nil {
		return "", fmt.Errorf("seal credential: %w", err)
	}
	cred := &models.Credential{Ref: uuid.NewString(), UserID: userID, Provider: provider, Sealed: sealed}
	if err := s.repo.Create(ctx, cred); err != nil {
		return "", err
	}
	return cred.Ref, nil
}

// Resolve opens the token behind ref.
func (s *CredentialService) Resolve(ctx context.Context, userID, ref string) (string, error) {
	cred, err := s.repo.Get(ctx, userID, ref)
	if err != nil {
		return "", err
	}
	token, err := s.vault.Open(cred.Sealed)
	if err != nil {
		s.logger.Error("credential failed to open", zap.String("user_id", userID), zap.String("provider", string(cred.Provider)), zap.Error(err))
		return "", fmt.Errorf("open credential: %w", err)
	}
	return token, nil
}

// Prune deletes the user's other credentials for provider. An empty keep removes all of them.
func (s *CredentialService) Prune(ctx context.Context, userID string, provider models.Provider, keep string) error {
	return s.repo.DeleteForProvider(ctx, userID, provider, keep)
}
