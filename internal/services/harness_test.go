package services

import (
	"time"

	"github.com/dinarexchange/dinar-auth/internal/models"
	"github.com/dinarexchange/dinar-auth/internal/trust"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type testClock struct {
	current time.Time
}

func (c *testClock) Now() time.Time          { return c.current }
func (c *testClock) Advance(d time.Duration) { c.current = c.current.Add(d) }

type authHarness struct {
	clock     *testClock
	accounts  *MockAccountRepository
	sessions  *MockSessionStore
	notifier  *MockNotifier
	auditRepo *MockAuditLogRepository
	timing    *MockTimingDelay
	magic     *MagicLinkService
	auth      *AuthService
	trusted   *TrustedIPService
}

type harnessOption func(*MagicLinkConfig, *AuthConfig)

func withKeyTTL(ttl time.Duration) harnessOption {
	return func(m *MagicLinkConfig, _ *AuthConfig) { m.KeyTTL = ttl }
}

func countingMagicLinks() harnessOption {
	return func(_ *MagicLinkConfig, a *AuthConfig) { a.CountMagicLinkRequests = true }
}

func newAuthHarness(opts ...harnessOption) *authHarness {
	h := &authHarness{
		clock:     &testClock{current: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		accounts:  NewMockAccountRepository(),
		sessions:  NewMockSessionStore(),
		notifier:  &MockNotifier{},
		auditRepo: &MockAuditLogRepository{},
		timing:    &MockTimingDelay{},
	}

	magicCfg := MagicLinkConfig{
		BaseURL:           "https://dinarexchange.test",
		KeyTTL:            24 * time.Hour,
		KeyBytes:          32,
		NotifyTimeout:     time.Second,
		StaleWriteRetries: 3,
	}
	authCfg := AuthConfig{StaleWriteRetries: 3}
	for _, opt := range opts {
		opt(&magicCfg, &authCfg)
	}

	logger := discardLogger()
	auditLogger := testAuditLogger()
	governor := testGovernor()
	store := trust.NewStore(10)
	sessions := NewSessionService(h.sessions, 30*24*time.Hour, logger)
	audit := NewAuditService(h.auditRepo, logger)

	h.magic = NewMagicLinkService(h.accounts, h.notifier, governor, store, h.timing, magicCfg, logger, auditLogger)
	h.magic.now = h.clock.Now
	h.auth = NewAuthService(h.accounts, sessions, h.magic, governor, trust.NewMatcher(20), store, audit, authCfg, logger, auditLogger)
	h.auth.now = h.clock.Now
	h.trusted = NewTrustedIPService(h.accounts, store, h.magic, sessions, 3, logger, auditLogger)

	return h
}

// seed stores an account with the given trusted IPs, all last used an hour ago
func (h *authHarness) seed(email string, ips ...string) *models.Account {
	acc := &models.Account{Email: email, TrustedIPs: []models.TrustedIP{}}
	for _, ip := range ips {
		used := h.clock.Now().Add(-time.Hour)
		acc.TrustedIPs = append(acc.TrustedIPs, models.TrustedIP{
			ID:        primitive.NewObjectID(),
			IP:        ip,
			FirstSeen: used,
			LastUsed:  used,
		})
	}
	if len(ips) > 0 {
		acc.LastLoginIP = ips[len(ips)-1]
	}
	return h.accounts.Put(acc)
}
