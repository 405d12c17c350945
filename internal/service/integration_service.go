package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/studycal-api/internal/models"
	appErrors "github.com/noah-isme/studycal-api/pkg/errors"
	"github.com/noah-isme/studycal-api/pkg/lms"
)

type sessionProvider interface {
	Get(ctx context.Context, userID string) (*Session, error)
}

type credentialStore interface {
	Store(ctx context.Context, userID string, provider models.Provider, token string) (string, error)
	Prune(ctx context.Context, userID string, provider models.Provider, keep string) error
}

type lmsVerifier interface {
	Courses(ctx context.Context, token string) ([]lms.Course, error)
}

// ConnectRequest carries the provider access token.
type ConnectRequest struct {
	AccessToken string `json:"access_token" validate:"required,min=8,max=4096"`
}

// IntegrationService connects and disconnects providers, writing through to storage and the live registry.
type IntegrationService struct {
	store     integrationStore
	creds     credentialStore
	sessions  sessionProvider
	verifyLMS lmsVerifier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewIntegrationService constructs the service. verifyLMS may be nil to skip the token handshake.
func NewIntegrationService(store integrationStore, creds credentialStore, sessions sessionProvider, verifyLMS lmsVerifier, validate *validator.Validate, logger *zap.Logger) *IntegrationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntegrationService{store: store, creds: creds, sessions: sessions, verifyLMS: verifyLMS, validator: validate, logger: logger}
}

// List returns every provider's status for userID.
func (s *IntegrationService) List(ctx context.Context, userID string) ([]models.IntegrationStatus, error) {
	sess, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sess.Registry.Snapshot(), nil
}

// Connect stores the token sealed and marks the provider connected.
func (s *IntegrationService) Connect(ctx context.Context, userID, rawProvider string, req ConnectRequest) (*models.IntegrationStatus, error) {
	provider, err := parseProvider(rawProvider)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	token := strings.TrimSpace(req.AccessToken)
	if provider == models.ProviderLMS && s.verifyLMS != nil {
		if _, err := s.verifyLMS.Courses(ctx, token); err != nil {
			if errors.Is(err, lms.ErrUnauthorized) {
				return nil, appErrors.Clone(appErrors.ErrValidation, "the LMS rejected this access token")
			}
			return nil, &appErrors.SourceError{Source: string(models.SourceLMS), Err: err}
		}
	}

	sess, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	ref, err := s.creds.Store(ctx, userID, provider, token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store credential")
	}
	status := models.IntegrationStatus{Provider: provider, Connected: true, CredentialRef: &ref}
	if err := s.store.Upsert(ctx, userID, status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save integration")
	}
	if err := sess.Registry.SetStatus(provider, status); err != nil {
		return nil, err
	}
	if err := s.creds.Prune(ctx, userID, provider, ref); err != nil {
		s.logger.Warn("failed to prune old credentials", zap.String("user_id", userID), zap.String("provider", string(provider)), zap.Error(err))
	}
	s.logger.Info("integration connected", zap.String("user_id", userID), zap.String("provider", string(provider)))
	out := sess.Registry.GetStatus(provider)
	return &out, nil
}

// Disconnect marks the provider disconnected and forgets its credentials.
func (s *IntegrationService) Disconnect(ctx context.Context, userID, rawProvider string) (*models.IntegrationStatus, error) {
	provider, err := parseProvider(rawProvider)
	if err != nil {
		return nil, err
	}
	sess, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	status := models.IntegrationStatus{Provider: provider}
	if err := s.store.Upsert(ctx, userID, status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save integration")
	}
	if err := sess.Registry.SetStatus(provider, status); err != nil {
		return nil, err
	}
	if err := s.creds.Prune(ctx, userID, provider, ""); err != nil {
		s.logger.Warn("failed to delete credentials", zap.String("user_id", userID), zap.String("provider", string(provider)), zap.Error(err))
	}
	s.logger.Info("integration disconnected", zap.String("user_id", userID), zap.String("provider", string(provider)))
	out := sess.Registry.GetStatus(provider)
	return &out, nil
}

func parseProvider(raw string) (models.Provider, error) {
	provider, ok := models.ParseProvider(raw)
	if !ok {
		return "", appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("unknown provider %q", raw))
	}
	return provider, nil
}
