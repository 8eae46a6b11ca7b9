package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dinarexchange/dinar-auth/internal/auth"
	"github.com/dinarexchange/dinar-auth/internal/models"
	pkgauth "github.com/dinarexchange/dinar-auth/pkg/auth"
	pkglogger "github.com/dinarexchange/dinar-auth/pkg/logger"
)

// AdminRepository defines the admin persistence AdminService needs
type AdminRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.Admin, error)
	GetByID(ctx context.Context, id string) (*models.Admin, error)
	Create(ctx context.Context, admin *models.Admin) error
	UpdateLoginState(ctx context.Context, admin *models.Admin) error
}

// errAdminLocked aborts a login whose admin was locked by a concurrent attempt
var errAdminLocked = errors.New("admin locked")

// AdminLoginResult carries a signed admin token
type AdminLoginResult struct {
	Token     string
	ExpiresAt time.Time
	Admin     *models.Admin
}

// AdminService authenticates back-office operators by password
type AdminService struct {
	repo   AdminRepository
	tm     *auth.TokenManager
	lock   *AdminLockPolicy
	audit  *AuditService
	timing TimingDelay
	// retries bounds how often a login state write is replayed after
	// losing a version race
	retries int
	logger  *slog.Logger
	now     func() time.Time
}

func NewAdminService(
	repo AdminRepository,
	tm *auth.TokenManager,
	lock *AdminLockPolicy,
	audit *AuditService,
	timing TimingDelay,
	retries int,
	logger *slog.Logger,
) *AdminService {
	return &AdminService{
		repo:    repo,
		tm:      tm,
		lock:    lock,
		audit:   audit,
		timing:  timing,
		retries: retries,
		logger:  logger,
		now:     time.Now,
	}
}

// Login checks email and password. Unknown email, wrong password, locked
// and inactive accounts all surface as models.ErrUnauthorized; the reason
// is kept in the audit log.
func (s *AdminService) Login(ctx context.Context, email, password, ip, userAgent string) (*AdminLoginResult, error) {
	start := s.now()
	email = NormalizeEmail(email)

	admin, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.failed(ctx, start, nil, email, ip, userAgent, "unknown_email")
			return nil, models.ErrUnauthorized
		}
		s.logger.ErrorContext(ctx, "failed to load admin", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := s.now()
	if admin.IsLocked(now) {
		s.failed(ctx, start, admin, email, ip, userAgent, "account_locked")
		return nil, models.ErrUnauthorized
	}

	if !admin.IsActive {
		s.failed(ctx, start, admin, email, ip, userAgent, "account_disabled")
		return nil, models.ErrUnauthorized
	}

	if err := pkgauth.ComparePassword(admin.PasswordHash, password); err != nil {
		var locked bool
		err := s.storeLoginState(ctx, admin, func(a *models.Admin) error {
			locked = s.lock.RecordFailure(a, now)
			return nil
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to store admin login attempt", slog.Any("error", err))
		}
		s.failed(ctx, start, admin, email, ip, userAgent, "invalid_password")
		if locked {
			s.audit.Record(ctx, AuditEntry{
				AdminID:    admin.ID.Hex(),
				Action:     models.AuditActionAccountLocked,
				Category:   models.AuditCategorySecurity,
				EntityType: models.AuditEntityAdmin,
				EntityID:   admin.ID.Hex(),
				IPAddress:  ip,
				UserAgent:  userAgent,
				Notes:      fmt.Sprintf("locked after %d failed logins", admin.LoginAttempts),
			})
		}
		return nil, models.ErrUnauthorized
	}

	err = s.storeLoginState(ctx, admin, func(a *models.Admin) error {
		if a.IsLocked(now) {
			return errAdminLocked
		}
		s.lock.RecordSuccess(a, now)
		return nil
	})
	if errors.Is(err, errAdminLocked) {
		s.failed(ctx, start, admin, email, ip, userAgent, "account_locked")
		return nil, models.ErrUnauthorized
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to store admin login", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	token, err := s.tm.GenerateAdminToken(admin)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to sign admin token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.Record(ctx, AuditEntry{
		AdminID:    admin.ID.Hex(),
		Action:     models.AuditActionLogin,
		Category:   models.AuditCategoryAuthentication,
		EntityType: models.AuditEntityAdmin,
		EntityID:   admin.ID.Hex(),
		Success:    true,
		IPAddress:  ip,
		UserAgent:  userAgent,
	})

	return &AdminLoginResult{
		Token:     token,
		ExpiresAt: now.Add(s.tm.Expiry()),
		Admin:     admin,
	}, nil
}

// storeLoginState applies a login outcome and writes it with a version
// check. When another attempt wrote first the admin is reloaded into
// admin and apply replayed, up to s.retries more times.
func (s *AdminService) storeLoginState(ctx context.Context, admin *models.Admin, apply func(a *models.Admin) error) error {
	retries := max(s.retries, 0)

	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			fresh, err := s.repo.GetByID(ctx, admin.ID.Hex())
			if err != nil {
				return err
			}
			*admin = *fresh
		}

		if err := apply(admin); err != nil {
			return err
		}

		err := s.repo.UpdateLoginState(ctx, admin)
		if err == nil {
			return nil
		}
		if !errors.Is(err, models.ErrStaleWrite) {
			return err
		}
	}

	return fmt.Errorf("admin update abandoned after %d attempts: %w", retries+1, models.ErrStaleWrite)
}

func (s *AdminService) failed(ctx context.Context, start time.Time, admin *models.Admin, email, ip, userAgent, reason string) {
	entry := AuditEntry{
		Action:     models.AuditActionFailedLogin,
		Category:   models.AuditCategoryAuthentication,
		EntityType: models.AuditEntityAdmin,
		IPAddress:  ip,
		UserAgent:  userAgent,
		Notes:      reason,
		Metadata:   models.AuditMetadata{"email": pkglogger.SanitizedEmail(email)},
	}
	if admin != nil {
		entry.AdminID = admin.ID.Hex()
		entry.EntityID = admin.ID.Hex()
	}
	s.audit.Record(ctx, entry)

	if s.timing != nil {
		s.timing.WaitFrom(start, false)
	}
}

// Logout records the end of an admin session. Admin tokens are stateless;
// the client discards the token and cookie.
func (s *AdminService) Logout(ctx context.Context, admin *models.Admin, ip, userAgent string) {
	s.audit.Record(ctx, AuditEntry{
		AdminID:    admin.ID.Hex(),
		Action:     models.AuditActionLogout,
		Category:   models.AuditCategoryAuthentication,
		EntityType: models.AuditEntityAdmin,
		EntityID:   admin.ID.Hex(),
		Success:    true,
		IPAddress:  ip,
		UserAgent:  userAgent,
	})
}

// EnsureBootstrapAdmin creates a full-permission admin when none exists
// for email. It is a no-op when email is empty.
func (s *AdminService) EnsureBootstrapAdmin(ctx context.Context, email, password string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return nil
	}

	_, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to look up bootstrap admin: %w", err)
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		return fmt.Errorf("bootstrap admin password rejected: %w", err)
	}

	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		return err
	}

	admin := &models.Admin{
		Email:        email,
		PasswordHash: hash,
		FirstName:    "System",
		LastName:     "Administrator",
		Role:         models.RoleAdmin,
		Permissions:  models.FullPermissions(),
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, admin); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil
		}
		return fmt.Errorf("failed to create bootstrap admin: %w", err)
	}

	s.logger.InfoContext(ctx, "bootstrap admin created", slog.String("admin_id", admin.ID.Hex()))
	s.audit.Record(ctx, AuditEntry{
		AdminID:    admin.ID.Hex(),
		Action:     models.AuditActionCreate,
		Category:   models.AuditCategorySystem,
		EntityType: models.AuditEntityAdmin,
		EntityID:   admin.ID.Hex(),
		Success:    true,
		Notes:      "bootstrap admin",
	})
	return nil
}
