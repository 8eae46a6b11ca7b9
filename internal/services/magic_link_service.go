package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/dinarexchange/dinar-auth/internal/models"
	"github.com/dinarexchange/dinar-auth/internal/trust"
	pkglogger "github.com/dinarexchange/dinar-auth/pkg/logger"
)

const (
	magicLoginPath   = "/user/magic-login"
	magicKeyAttempts = 3
)

// TimingDelay pads failed verifications
type TimingDelay interface {
	WaitFrom(startTime time.Time, succeeded bool)
}

// MagicLinkConfig holds the settings for magic-link issuance
type MagicLinkConfig struct {
	BaseURL           string
	KeyTTL            time.Duration // zero disables expiry
	KeyBytes          int
	NotifyTimeout     time.Duration
	StaleWriteRetries int
}

// IssueResult reports the outcome of issuing a magic link
type IssueResult struct {
	Account   *models.Account
	Link      string
	Reused    bool
	Delivered bool
}

// VerifyResult reports a consumed magic key
type VerifyResult struct {
	Account      *models.Account
	NewTrustedIP bool
}

// MagicLinkService issues and consumes one-time magic keys. A key stays
// valid until it is consumed, rotated or KeyTTL elapses.
type MagicLinkService struct {
	repo        AccountRepository
	notifier    Notifier
	governor    *Governor
	store       *trust.Store
	timing      TimingDelay
	config      MagicLinkConfig
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

func NewMagicLinkService(
	repo AccountRepository,
	notifier Notifier,
	governor *Governor,
	store *trust.Store,
	timing TimingDelay,
	config MagicLinkConfig,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *MagicLinkService {
	if config.KeyBytes < 32 {
		config.KeyBytes = 32
	}
	return &MagicLinkService{
		repo:        repo,
		notifier:    notifier,
		governor:    governor,
		store:       store,
		timing:      timing,
		config:      config,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// Issue finds or creates the account for email, makes sure it holds a
// usable key and mails the link. The key is persisted before the send is
// attempted, so a notifier failure only clears Delivered.
func (s *MagicLinkService) Issue(ctx context.Context, email string) (*IssueResult, error) {
	var reused bool
	acc, err := s.persistKey(ctx, loadByEmail(s.repo, email), func(acc *models.Account, now time.Time) error {
		var err error
		reused, err = s.ensureKey(acc, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	return s.deliver(ctx, acc, reused), nil
}

// persistKey runs a key-affecting mutation, starting over with a fresh
// key if the generated one collides with another account's.
func (s *MagicLinkService) persistKey(
	ctx context.Context,
	load func(ctx context.Context) (*models.Account, error),
	apply func(acc *models.Account, now time.Time) error,
) (*models.Account, error) {
	var lastErr error
	for i := 0; i < magicKeyAttempts; i++ {
		acc, err := mutateAccount(ctx, s.repo, s.config.StaleWriteRetries, load, func(acc *models.Account) error {
			return apply(acc, s.now())
		})
		if err == nil {
			return acc, nil
		}
		if !errors.Is(err, models.ErrConflict) {
			return nil, err
		}
		lastErr = err
		s.logger.WarnContext(ctx, "magic key collision, regenerating")
	}
	return nil, fmt.Errorf("failed to store magic key: %w", lastErr)
}

// ensureKey keeps an unconsumed, unexpired key and otherwise generates a
// new one. It reports whether the existing key was kept.
func (s *MagicLinkService) ensureKey(acc *models.Account, now time.Time) (bool, error) {
	if acc.HasMagicKey() && !s.expired(acc, now) {
		return true, nil
	}
	return false, s.rotate(acc, now)
}

func (s *MagicLinkService) rotate(acc *models.Account, now time.Time) error {
	key, err := generateMagicKey(s.config.KeyBytes)
	if err != nil {
		return fmt.Errorf("failed to generate magic key: %w", err)
	}
	acc.MagicKey = &key
	acc.MagicKeyIssuedAt = &now
	return nil
}

func (s *MagicLinkService) expired(acc *models.Account, now time.Time) bool {
	if s.config.KeyTTL <= 0 {
		return false
	}
	if acc.MagicKeyIssuedAt == nil {
		return true
	}
	return !now.Before(acc.MagicKeyIssuedAt.Add(s.config.KeyTTL))
}

// deliver sends exactly one email for a persisted key. Failures are logged
// and reported through Delivered.
func (s *MagicLinkService) deliver(ctx context.Context, acc *models.Account, reused bool) *IssueResult {
	link := s.Link(*acc.MagicKey)
	result := &IssueResult{Account: acc, Link: link, Reused: reused}

	sendCtx := ctx
	if s.config.NotifyTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, s.config.NotifyTimeout)
		defer cancel()
	}

	if err := s.notifier.Send(sendCtx, acc.Email, magicLinkSubject, magicLinkEmail(link, s.config.KeyTTL)); err != nil {
		s.logger.WarnContext(ctx, "failed to deliver magic link",
			slog.String("account_id", acc.ID.Hex()),
			slog.String("email", pkglogger.SanitizedEmail(acc.Email)),
			slog.Any("error", err))
		s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuthEvent{
			EventType:     pkglogger.EventMagicLinkSent,
			AccountID:     acc.ID.Hex(),
			Email:         acc.Email,
			Success:       false,
			FailureReason: "notifier_failed",
		})
		return result
	}

	result.Delivered = true
	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuthEvent{
		EventType: pkglogger.EventMagicLinkSent,
		AccountID: acc.ID.Hex(),
		Email:     acc.Email,
		Success:   true,
	})
	return result
}

// Link builds the customer-facing URL for key
func (s *MagicLinkService) Link(key string) string {
	return s.config.BaseURL + magicLoginPath + "?key=" + url.QueryEscape(key)
}

// Verify consumes key. Any failure yields models.ErrInvalidCredential
// after a padded delay and leaves the store untouched.
func (s *MagicLinkService) Verify(ctx context.Context, key, ip, userAgent string) (*VerifyResult, error) {
	start := s.now()

	if !s.wellFormed(key) {
		return nil, s.reject(ctx, start, ip, "malformed")
	}

	var added bool
	acc, err := mutateAccount(ctx, s.repo, s.config.StaleWriteRetries,
		func(ctx context.Context) (*models.Account, error) {
			acc, err := s.repo.GetByMagicKey(ctx, key)
			if errors.Is(err, models.ErrNotFound) {
				return nil, models.ErrInvalidCredential
			}
			return acc, err
		},
		func(acc *models.Account) error {
			now := s.now()
			if !acc.HasMagicKey() || *acc.MagicKey != key || s.expired(acc, now) {
				return models.ErrInvalidCredential
			}

			s.governor.Record(acc, true, now)
			added = s.store.Add(acc, ip, userAgent, now)
			acc.MagicKey = nil
			acc.MagicKeyIssuedAt = nil
			return nil
		},
	)
	if errors.Is(err, models.ErrInvalidCredential) {
		return nil, s.reject(ctx, start, ip, "unknown_or_expired")
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to consume magic key", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuthEvent{
		EventType: pkglogger.EventMagicLinkVerified,
		AccountID: acc.ID.Hex(),
		Email:     acc.Email,
		IPAddress: ip,
		UserAgent: userAgent,
		Success:   true,
	})

	return &VerifyResult{Account: acc, NewTrustedIP: added}, nil
}

func (s *MagicLinkService) reject(ctx context.Context, start time.Time, ip, reason string) error {
	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuthEvent{
		EventType:     pkglogger.EventMagicLinkInvalid,
		IPAddress:     ip,
		Success:       false,
		FailureReason: reason,
	})
	if s.timing != nil {
		s.timing.WaitFrom(start, false)
	}
	return models.ErrInvalidCredential
}

func (s *MagicLinkService) wellFormed(key string) bool {
	if len(key) != s.config.KeyBytes*2 {
		return false
	}
	_, err := hex.DecodeString(key)
	return err == nil
}

// Regenerate replaces the account's key, invalidating any link already sent.
func (s *MagicLinkService) Regenerate(ctx context.Context, accountID string) (*models.Account, error) {
	return s.persistKey(ctx, loadByID(s.repo, accountID), func(acc *models.Account, now time.Time) error {
		return s.rotate(acc, now)
	})
}

func generateMagicKey(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
