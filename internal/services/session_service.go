package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dinarexchange/dinar-auth/internal/models"
)

// SessionStore defines the session persistence the service needs
type SessionStore interface {
	Save(ctx context.Context, token, accountID string, ttl time.Duration) error
	Get(ctx context.Context, token string) (string, error)
	Delete(ctx context.Context, token string) error
	DeleteAllForAccount(ctx context.Context, accountID string) (int, error)
}

// SessionService issues opaque customer session tokens
type SessionService struct {
	store  SessionStore
	ttl    time.Duration
	logger *slog.Logger
}

func NewSessionService(store SessionStore, ttl time.Duration, logger *slog.Logger) *SessionService {
	return &SessionService{store: store, ttl: ttl, logger: logger}
}

// TTL is the lifetime of new sessions; the cookie Max-Age must match it.
func (s *SessionService) TTL() time.Duration {
	return s.ttl
}

// Create binds a fresh random token to the account.
func (s *SessionService) Create(ctx context.Context, accountID string) (string, error) {
	token, err := generateSessionToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}

	if err := s.store.Save(ctx, token, accountID, s.ttl); err != nil {
		return "", err
	}
	return token, nil
}

// Resolve returns the account id for a token, or models.ErrUnauthorized.
func (s *SessionService) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", models.ErrUnauthorized
	}

	accountID, err := s.store.Get(ctx, token)
	if errors.Is(err, models.ErrNotFound) {
		return "", models.ErrUnauthorized
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to resolve session", slog.Any("error", err))
		return "", models.ErrInternalServer
	}
	return accountID, nil
}

func (s *SessionService) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.store.Delete(ctx, token)
}

func (s *SessionService) RevokeAll(ctx context.Context, accountID string) (int, error) {
	return s.store.DeleteAllForAccount(ctx, accountID)
}

func generateSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
