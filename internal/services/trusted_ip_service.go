package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/dinarexchange/dinar-auth/internal/models"
	"github.com/dinarexchange/dinar-auth/internal/trust"
	"github.com/dinarexchange/dinar-auth/pkg/ipaddr"
	pkglogger "github.com/dinarexchange/dinar-auth/pkg/logger"
)

// Trusted IP management actions
const (
	ActionToggleAutoLogin    = "toggle_auto_login"
	ActionRemoveIP           = "remove_ip"
	ActionClearAllIPs        = "clear_all_ips"
	ActionRegenerateMagicKey = "regenerate_magic_key"
)

// TrustedIPView is one entry of the customer's trusted IP listing
type TrustedIPView struct {
	ID        string    `json:"id"`
	IP        string    `json:"ip"`
	FirstSeen time.Time `json:"firstSeen"`
	LastUsed  time.Time `json:"lastUsed"`
	UserAgent string    `json:"userAgent,omitempty"`
	Location  string    `json:"location,omitempty"`
	IsCurrent bool      `json:"isCurrent"`
	IsPrivate bool      `json:"isPrivate"`
}

// TrustedIPListing is the full trusted IP page
type TrustedIPListing struct {
	TrustedIPs       []TrustedIPView `json:"trustedIPs"`
	CurrentIP        string          `json:"currentIP"`
	LastLoginIP      string          `json:"lastLoginIP,omitempty"`
	TotalTrustedIPs  int             `json:"totalTrustedIPs"`
	MaxTrustedIPs    int             `json:"maxTrustedIPs"`
	AutoLoginEnabled bool            `json:"autoLoginEnabled"`
}

// RegenerateResult reports a magic key rotation. All earlier sessions are
// revoked and SessionToken replaces the caller's own.
type RegenerateResult struct {
	RevokedSessions int
	SessionToken    string
}

// TrustedIPService lets a signed-in customer manage auto-login
type TrustedIPService struct {
	repo        AccountRepository
	store       *trust.Store
	magicLinks  *MagicLinkService
	sessions    *SessionService
	retries     int
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewTrustedIPService(
	repo AccountRepository,
	store *trust.Store,
	magicLinks *MagicLinkService,
	sessions *SessionService,
	retries int,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *TrustedIPService {
	return &TrustedIPService{
		repo:        repo,
		store:       store,
		magicLinks:  magicLinks,
		sessions:    sessions,
		retries:     retries,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// List renders the account's trusted IPs as seen from currentIP
func (s *TrustedIPService) List(acc *models.Account, currentIP string) *TrustedIPListing {
	views := make([]TrustedIPView, 0, len(acc.TrustedIPs))
	for _, rec := range acc.TrustedIPs {
		view := TrustedIPView{
			ID:        rec.ID.Hex(),
			IP:        rec.IP,
			FirstSeen: rec.FirstSeen,
			LastUsed:  rec.LastUsed,
			IsCurrent: rec.IP == currentIP,
			IsPrivate: ipaddr.IsPrivate(rec.IP),
		}
		if rec.UserAgent != nil {
			view.UserAgent = *rec.UserAgent
		}
		if rec.Location != nil {
			view.Location = *rec.Location
		}
		views = append(views, view)
	}

	return &TrustedIPListing{
		TrustedIPs:       views,
		CurrentIP:        currentIP,
		LastLoginIP:      acc.LastLoginIP,
		TotalTrustedIPs:  len(views),
		MaxTrustedIPs:    s.store.MaxIPs(),
		AutoLoginEnabled: acc.AutoLogin(),
	}
}

// ToggleAutoLogin sets the auto-login flag
func (s *TrustedIPService) ToggleAutoLogin(ctx context.Context, accountID string, enabled bool, ip string) (*models.Account, error) {
	acc, err := s.mutate(ctx, accountID, func(acc *models.Account) error {
		acc.AutoLoginEnabled = &enabled
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditLogger.LogAccountAction(ctx, ActionToggleAutoLogin, accountID, ip, map[string]string{
		"auto_login_enabled": strconv.FormatBool(enabled),
	})
	return acc, nil
}

// RemoveIP deletes one trusted IP record. models.ErrNotFound when absent.
func (s *TrustedIPService) RemoveIP(ctx context.Context, accountID, recordID, ip string) (*models.Account, error) {
	var removed string
	acc, err := s.mutate(ctx, accountID, func(acc *models.Account) error {
		for _, rec := range acc.TrustedIPs {
			if rec.ID.Hex() == recordID {
				removed = rec.IP
			}
		}
		return s.store.Remove(acc, recordID)
	})
	if err != nil {
		return nil, err
	}

	s.auditLogger.LogAccountAction(ctx, ActionRemoveIP, accountID, ip, map[string]string{
		"removed_ip": removed,
	})
	return acc, nil
}

// ClearAll removes every trusted IP and returns how many there were
func (s *TrustedIPService) ClearAll(ctx context.Context, accountID, ip string) (int, error) {
	var count int
	_, err := s.mutate(ctx, accountID, func(acc *models.Account) error {
		count = s.store.Clear(acc)
		if count == 0 {
			return errSkipWrite
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.auditLogger.LogAccountAction(ctx, ActionClearAllIPs, accountID, ip, map[string]string{
		"removed_count": strconv.Itoa(count),
	})
	return count, nil
}

// RegenerateMagicKey rotates the key and signs the account out everywhere,
// handing the caller a fresh session.
func (s *TrustedIPService) RegenerateMagicKey(ctx context.Context, accountID, ip string) (*RegenerateResult, error) {
	if _, err := s.magicLinks.Regenerate(ctx, accountID); err != nil {
		return nil, s.storeError(ctx, "failed to regenerate magic key", err)
	}

	revoked, err := s.sessions.RevokeAll(ctx, accountID)
	if err != nil {
		return nil, s.storeError(ctx, "failed to revoke sessions", err)
	}

	token, err := s.sessions.Create(ctx, accountID)
	if err != nil {
		return nil, s.storeError(ctx, "failed to create session", err)
	}

	s.auditLogger.LogAccountAction(ctx, ActionRegenerateMagicKey, accountID, ip, map[string]string{
		"revoked_sessions": strconv.Itoa(revoked),
	})
	return &RegenerateResult{RevokedSessions: revoked, SessionToken: token}, nil
}

func (s *TrustedIPService) mutate(ctx context.Context, accountID string, apply func(acc *models.Account) error) (*models.Account, error) {
	acc, err := mutateAccount(ctx, s.repo, s.retries, loadByID(s.repo, accountID), apply)
	if err != nil {
		return nil, s.storeError(ctx, "failed to update trusted IPs", err)
	}
	return acc, nil
}

func (s *TrustedIPService) storeError(ctx context.Context, msg string, err error) error {
	if errors.Is(err, models.ErrNotFound) {
		return models.ErrNotFound
	}
	s.logger.ErrorContext(ctx, msg, slog.Any("error", err))
	return models.ErrInternalServer
}
