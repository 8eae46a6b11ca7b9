package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/dinarexchange/dinar-auth/internal/models"
	"github.com/dinarexchange/dinar-auth/internal/trust"
	pkglogger "github.com/dinarexchange/dinar-auth/pkg/logger"
)

// Outcome is the terminal state of a customer login request
type Outcome string

const (
	OutcomeAutoLoggedIn      Outcome = "auto_logged_in"
	OutcomeMagicLinkSent     Outcome = "magic_link_sent"
	OutcomeMagicLinkVerified Outcome = "magic_link_verified"
)

// AuthConfig holds orchestrator policy switches
type AuthConfig struct {
	// CountMagicLinkRequests counts "magic link required" as a failed attempt
	CountMagicLinkRequests bool
	StaleWriteRetries      int
}

// LoginResult is the successful outcome of a login, magic-link request
// or magic-link verification
type LoginResult struct {
	Outcome      Outcome
	Account      *models.Account
	SessionToken string
	MatchType    trust.MatchType
	Delivered    bool
	NewTrustedIP bool
}

// AuthService decides how a customer signs in: straight through from a
// trusted IP, or by a magic link mailed to them.
type AuthService struct {
	repo        AccountRepository
	sessions    *SessionService
	magicLinks  *MagicLinkService
	governor    *Governor
	matcher     *trust.Matcher
	store       *trust.Store
	audit       *AuditService
	config      AuthConfig
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

func NewAuthService(
	repo AccountRepository,
	sessions *SessionService,
	magicLinks *MagicLinkService,
	governor *Governor,
	matcher *trust.Matcher,
	store *trust.Store,
	audit *AuditService,
	config AuthConfig,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AuthService {
	return &AuthService{
		repo:        repo,
		sessions:    sessions,
		magicLinks:  magicLinks,
		governor:    governor,
		matcher:     matcher,
		store:       store,
		audit:       audit,
		config:      config,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// NormalizeEmail trims and lowercases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login runs the customer login state machine for email from ip.
// Refusals by the governor are returned as *models.RateLimitError after
// the failed attempt has been stored.
func (s *AuthService) Login(ctx context.Context, email, ip, userAgent string) (*LoginResult, error) {
	return s.begin(ctx, email, ip, userAgent, true)
}

// SendMagicLink is Login without the trusted IP shortcut
func (s *AuthService) SendMagicLink(ctx context.Context, email, ip, userAgent string) (*LoginResult, error) {
	return s.begin(ctx, email, ip, userAgent, false)
}

func (s *AuthService) begin(ctx context.Context, email, ip, userAgent string, allowAutoLogin bool) (*LoginResult, error) {
	if email = NormalizeEmail(email); email == "" {
		return nil, models.ErrValidation
	}

	var (
		decision Decision
		match    trust.MatchResult
		reused   bool
		locked   bool
	)

	apply := func(acc *models.Account, now time.Time) error {
		match = trust.MatchResult{Type: trust.MatchNone}
		reused, locked = false, false
		wasLocked := acc.AccountLocked && acc.LockUntil != nil && now.Before(*acc.LockUntil)

		decision = s.governor.Evaluate(acc, now)
		if !decision.Allowed {
			locked = !wasLocked
			s.governor.Record(acc, false, now)
			return nil
		}

		if allowAutoLogin && acc.AutoLogin() && len(acc.TrustedIPs) > 0 {
			match = s.matcher.Match(ip, acc.TrustedIPs)
			if match.IsMatch {
				s.store.Add(acc, ip, userAgent, now)
				s.governor.Record(acc, true, now)
				return nil
			}
		}

		var err error
		if reused, err = s.magicLinks.ensureKey(acc, now); err != nil {
			return err
		}
		if s.config.CountMagicLinkRequests {
			s.governor.Record(acc, false, now)
		} else {
			s.governor.Touch(acc, now)
		}
		return nil
	}

	acc, err := s.magicLinks.persistKey(ctx, loadByEmail(s.repo, email), apply)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to process login",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !decision.Allowed {
		s.rateLimited(ctx, acc, ip, userAgent, decision, locked)
		return nil, decision.Err()
	}

	if match.IsMatch {
		return s.autoLogin(ctx, acc, ip, userAgent, match)
	}

	delivery := s.magicLinks.deliver(ctx, acc, reused)
	return &LoginResult{
		Outcome:   OutcomeMagicLinkSent,
		Account:   acc,
		MatchType: trust.MatchNone,
		Delivered: delivery.Delivered,
	}, nil
}

func (s *AuthService) autoLogin(ctx context.Context, acc *models.Account, ip, userAgent string, match trust.MatchResult) (*LoginResult, error) {
	token, err := s.sessions.Create(ctx, acc.ID.Hex())
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to create session",
			slog.String("account_id", acc.ID.Hex()),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.InfoContext(ctx, "customer auto-logged in",
		slog.String("account_id", acc.ID.Hex()),
		slog.String("match_type", string(match.Type)))
	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuthEvent{
		EventType: pkglogger.EventAutoLogin,
		AccountID: acc.ID.Hex(),
		Email:     acc.Email,
		IPAddress: ip,
		UserAgent: userAgent,
		MatchType: string(match.Type),
		Success:   true,
	})

	return &LoginResult{
		Outcome:      OutcomeAutoLoggedIn,
		Account:      acc,
		SessionToken: token,
		MatchType:    match.Type,
	}, nil
}

func (s *AuthService) rateLimited(ctx context.Context, acc *models.Account, ip, userAgent string, decision Decision, locked bool) {
	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuthEvent{
		EventType:     pkglogger.EventLoginRateLimited,
		AccountID:     acc.ID.Hex(),
		Email:         acc.Email,
		IPAddress:     ip,
		UserAgent:     userAgent,
		Success:       false,
		FailureReason: decision.Reason,
	})

	// Only the transition into a lock is worth a back-office record
	if locked && s.audit != nil {
		s.audit.Record(ctx, AuditEntry{
			Action:     models.AuditActionAccountLocked,
			Category:   models.AuditCategorySecurity,
			EntityType: models.AuditEntityAccount,
			EntityID:   acc.ID.Hex(),
			Success:    false,
			IPAddress:  ip,
			UserAgent:  userAgent,
			Notes:      "customer login locked until " + decision.ResetTime.UTC().Format(time.RFC3339),
			Tags:       []string{"customer", decision.Reason},
		})
	}
}

// VerifyMagicLink consumes a magic key and opens a session
func (s *AuthService) VerifyMagicLink(ctx context.Context, key, ip, userAgent string) (*LoginResult, error) {
	if key = strings.TrimSpace(key); key == "" {
		return nil, models.ErrValidation
	}

	verified, err := s.magicLinks.Verify(ctx, key, ip, userAgent)
	if err != nil {
		return nil, err
	}

	token, err := s.sessions.Create(ctx, verified.Account.ID.Hex())
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to create session",
			slog.String("account_id", verified.Account.ID.Hex()),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &LoginResult{
		Outcome:      OutcomeMagicLinkVerified,
		Account:      verified.Account,
		SessionToken: token,
		NewTrustedIP: verified.NewTrustedIP,
	}, nil
}

// CurrentAccount resolves a session token to its account
func (s *AuthService) CurrentAccount(ctx context.Context, token string) (*models.Account, error) {
	accountID, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	acc, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		s.logger.ErrorContext(ctx, "failed to load session account", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return acc, nil
}

// Logout revokes a single session. Unknown tokens are not an error.
func (s *AuthService) Logout(ctx context.Context, token, accountID, ip string) error {
	if err := s.sessions.Revoke(ctx, token); err != nil {
		s.logger.ErrorContext(ctx, "failed to revoke session", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuthEvent{
		EventType: pkglogger.EventLogout,
		AccountID: accountID,
		IPAddress: ip,
		Success:   true,
	})
	return nil
}
