//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/dinarexchange/dinar-auth/internal/auth"
	"github.com/dinarexchange/dinar-auth/internal/config"
	"github.com/dinarexchange/dinar-auth/internal/handlers"
	middlewareCustom "github.com/dinarexchange/dinar-auth/internal/middleware"
	"github.com/dinarexchange/dinar-auth/internal/repositories"
	"github.com/dinarexchange/dinar-auth/internal/routes"
	"github.com/dinarexchange/dinar-auth/internal/services"
	"github.com/dinarexchange/dinar-auth/internal/trust"
	pkghttp "github.com/dinarexchange/dinar-auth/pkg/http"
	pkglogger "github.com/dinarexchange/dinar-auth/pkg/logger"
)

const testBaseURL = "http://localhost:3000"

// SentEmail represents a captured email message
type SentEmail struct {
	To      string
	Subject string
	Body    string
}

// RecordingNotifier captures sent emails for test assertions
type RecordingNotifier struct {
	mu         sync.Mutex
	SentEmails []SentEmail
}

func (n *RecordingNotifier) Send(ctx context.Context, to, subject, htmlBody string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.SentEmails = append(n.SentEmails, SentEmail{To: to, Subject: subject, Body: htmlBody})
	return nil
}

// Count returns how many emails were sent
func (n *RecordingNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.SentEmails)
}

// Last returns the most recent email sent
func (n *RecordingNotifier) Last() *SentEmail {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.SentEmails) == 0 {
		return nil
	}
	last := n.SentEmails[len(n.SentEmails)-1]
	return &last
}

// TestServer wraps httptest.Server wired to real stores and a recording notifier
type TestServer struct {
	Server   *httptest.Server
	Stores   *TestStores
	Notifier *RecordingNotifier
	Policy   config.PolicyConfig
}

// NewTestServer builds the same handler graph as cmd/api
func NewTestServer(stores *TestStores) *TestServer {
	logger := quietLogger()
	policy := config.DefaultPolicy()

	accountRepo := repositories.NewAccountRepository(stores.Mongo)
	adminRepo := repositories.NewAdminRepository(stores.Mongo)
	sessionRepo := repositories.NewSessionRepository(stores.Redis)
	auditLogRepo := repositories.NewAuditLogRepository(stores.DB)

	notifier := &RecordingNotifier{}
	auditLogger := pkglogger.NewAuditLogger(logger)
	auditService := services.NewAuditService(auditLogRepo, logger)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{BaseDelayMs: 10})
	tokenManager := auth.NewTokenManager("test-secret-32-characters-long-for-testing", config.DefaultAdminTokenExpiry)

	governor := services.NewGovernor(services.RateLimitConfig{
		AttemptWindow:    policy.AttemptWindow,
		MaxLoginAttempts: policy.MaxLoginAttempts,
		LockoutDuration:  policy.LockoutDuration,
	})
	adminLock := services.NewAdminLockPolicy(services.AdminLockConfig{
		MaxAttempts:  policy.AdminMaxAttempts,
		LockDuration: policy.AdminLockDuration,
	})
	matcher := trust.NewMatcher(policy.SubnetTolerance)
	trustStore := trust.NewStore(policy.MaxTrustedIPs)

	sessionService := services.NewSessionService(sessionRepo, config.DefaultSessionTTL, logger)
	magicLinkService := services.NewMagicLinkService(accountRepo, notifier, governor, trustStore, timingDelay,
		services.MagicLinkConfig{
			BaseURL:           testBaseURL,
			KeyTTL:            config.DefaultMagicKeyTTL,
			KeyBytes:          config.DefaultMagicKeyBytes,
			NotifyTimeout:     time.Second,
			StaleWriteRetries: policy.StaleWriteRetries,
		}, logger, auditLogger)
	authService := services.NewAuthService(accountRepo, sessionService, magicLinkService, governor, matcher, trustStore,
		auditService, services.AuthConfig{StaleWriteRetries: policy.StaleWriteRetries}, logger, auditLogger)
	trustedIPService := services.NewTrustedIPService(accountRepo, trustStore, magicLinkService, sessionService,
		policy.StaleWriteRetries, logger, auditLogger)
	adminService := services.NewAdminService(adminRepo, tokenManager, adminLock, auditService, timingDelay, policy.StaleWriteRetries, logger)

	ipConfig := &pkghttp.IPConfig{}
	sessionCookie := auth.CookieConfig{Name: config.DefaultSessionCookieName, SameSite: "lax"}
	adminCookie := auth.CookieConfig{Name: config.DefaultAdminCookieName, SameSite: "strict"}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	r.Use(chiMiddleware.Recoverer)

	routes.RegisterRoutes(r, routes.Dependencies{
		AuthHandler:      handlers.NewAuthHandler(authService, ipConfig, sessionCookie, sessionService.TTL()),
		TrustedIPHandler: handlers.NewTrustedIPHandler(trustedIPService, ipConfig, sessionCookie, sessionService.TTL()),
		AdminHandler:     handlers.NewAdminHandler(adminService, auditService, ipConfig, adminCookie),
		HealthHandler: handlers.NewHealthHandler(map[string]handlers.HealthChecker{
			"postgres": stores.DB,
			"mongodb":  stores.Mongo,
			"redis":    handlers.HealthCheckFunc(sessionRepo.Ping),
		}),
		Sessions:          sessionService,
		Accounts:          accountRepo,
		Admins:            adminRepo,
		TokenManager:      tokenManager,
		IPConfig:          ipConfig,
		SessionCookieName: sessionCookie.Name,
		AdminCookieName:   adminCookie.Name,
	})

	return &TestServer{
		Server:   httptest.NewServer(r),
		Stores:   stores,
		Notifier: notifier,
		Policy:   policy,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// RequestOption adjusts an outgoing request
type RequestOption func(req *http.Request)

// FromIP presents the request as coming from ip through a proxy
func FromIP(ip string) RequestOption {
	return func(req *http.Request) {
		req.Header.Set("X-Forwarded-For", ip)
	}
}

// WithCookie attaches a cookie
func WithCookie(c *http.Cookie) RequestOption {
	return func(req *http.Request) {
		req.AddCookie(c)
	}
}

// WithBearer sets the Authorization header
func WithBearer(token string) RequestOption {
	return func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, opts ...RequestOption) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(req)
	}

	return ts.Server.Client().Do(req)
}

// ParseJSONResponse parses JSON response body into target
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// SessionCookie returns the session cookie set by resp, or nil
func SessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == config.DefaultSessionCookieName && c.Value != "" {
			return c
		}
	}
	return nil
}
