package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dinarexchange/dinar-auth/internal/auth"
	"github.com/dinarexchange/dinar-auth/internal/models"
	"github.com/dinarexchange/dinar-auth/internal/services"
	pkghttp "github.com/dinarexchange/dinar-auth/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAccountContext puts a signed-in customer on the request, as
// auth.SessionMiddleware would
func WithAccountContext(req *http.Request, acc *models.Account) *http.Request {
	ctx := context.WithValue(req.Context(), auth.AccountContextKey, acc)
	return req.WithContext(ctx)
}

// WithAdminContext puts an authenticated admin on the request
func WithAdminContext(req *http.Request, admin *models.Admin) *http.Request {
	ctx := context.WithValue(req.Context(), auth.AdminContextKey, admin)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// SessionCookie returns the named cookie set on the response, or nil
func SessionCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc           func(ctx context.Context, email, ip, userAgent string) (*services.LoginResult, error)
	SendMagicLinkFunc   func(ctx context.Context, email, ip, userAgent string) (*services.LoginResult, error)
	VerifyMagicLinkFunc func(ctx context.Context, key, ip, userAgent string) (*services.LoginResult, error)
	CurrentAccountFunc  func(ctx context.Context, token string) (*models.Account, error)
	LogoutFunc          func(ctx context.Context, token, accountID, ip string) error
}

func (m *MockAuthService) Login(ctx context.Context, email, ip, userAgent string) (*services.LoginResult, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.LoginFunc(ctx, email, ip, userAgent)
}

func (m *MockAuthService) SendMagicLink(ctx context.Context, email, ip, userAgent string) (*services.LoginResult, error) {
	if m.SendMagicLinkFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.SendMagicLinkFunc(ctx, email, ip, userAgent)
}

func (m *MockAuthService) VerifyMagicLink(ctx context.Context, key, ip, userAgent string) (*services.LoginResult, error) {
	if m.VerifyMagicLinkFunc == nil {
		return nil, models.ErrInvalidCredential
	}
	return m.VerifyMagicLinkFunc(ctx, key, ip, userAgent)
}

func (m *MockAuthService) CurrentAccount(ctx context.Context, token string) (*models.Account, error) {
	if m.CurrentAccountFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.CurrentAccountFunc(ctx, token)
}

func (m *MockAuthService) Logout(ctx context.Context, token, accountID, ip string) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, token, accountID, ip)
}

// MockTrustedIPService implements TrustedIPServiceInterface for testing
type MockTrustedIPService struct {
	ListFunc               func(acc *models.Account, currentIP string) *services.TrustedIPListing
	ToggleAutoLoginFunc    func(ctx context.Context, accountID string, enabled bool, ip string) (*models.Account, error)
	RemoveIPFunc           func(ctx context.Context, accountID, recordID, ip string) (*models.Account, error)
	ClearAllFunc           func(ctx context.Context, accountID, ip string) (int, error)
	RegenerateMagicKeyFunc func(ctx context.Context, accountID, ip string) (*services.RegenerateResult, error)
}

func (m *MockTrustedIPService) List(acc *models.Account, currentIP string) *services.TrustedIPListing {
	if m.ListFunc == nil {
		return &services.TrustedIPListing{TrustedIPs: []services.TrustedIPView{}, CurrentIP: currentIP}
	}
	return m.ListFunc(acc, currentIP)
}

func (m *MockTrustedIPService) ToggleAutoLogin(ctx context.Context, accountID string, enabled bool, ip string) (*models.Account, error) {
	if m.ToggleAutoLoginFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.ToggleAutoLoginFunc(ctx, accountID, enabled, ip)
}

func (m *MockTrustedIPService) RemoveIP(ctx context.Context, accountID, recordID, ip string) (*models.Account, error) {
	if m.RemoveIPFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.RemoveIPFunc(ctx, accountID, recordID, ip)
}

func (m *MockTrustedIPService) ClearAll(ctx context.Context, accountID, ip string) (int, error) {
	if m.ClearAllFunc == nil {
		return 0, nil
	}
	return m.ClearAllFunc(ctx, accountID, ip)
}

func (m *MockTrustedIPService) RegenerateMagicKey(ctx context.Context, accountID, ip string) (*services.RegenerateResult, error) {
	if m.RegenerateMagicKeyFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.RegenerateMagicKeyFunc(ctx, accountID, ip)
}

// MockAdminService implements AdminServiceInterface for testing
type MockAdminService struct {
	LoginFunc  func(ctx context.Context, email, password, ip, userAgent string) (*services.AdminLoginResult, error)
	LogoutFunc func(ctx context.Context, admin *models.Admin, ip, userAgent string)
}

func (m *MockAdminService) Login(ctx context.Context, email, password, ip, userAgent string) (*services.AdminLoginResult, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.LoginFunc(ctx, email, password, ip, userAgent)
}

func (m *MockAdminService) Logout(ctx context.Context, admin *models.Admin, ip, userAgent string) {
	if m.LogoutFunc != nil {
		m.LogoutFunc(ctx, admin, ip, userAgent)
	}
}

// MockAuditLogLister implements AuditLogLister for testing
type MockAuditLogLister struct {
	ListFunc func(ctx context.Context, filter models.AuditLogFilter) (*services.AuditLogPage, error)
}

func (m *MockAuditLogLister) List(ctx context.Context, filter models.AuditLogFilter) (*services.AuditLogPage, error) {
	if m.ListFunc == nil {
		return &services.AuditLogPage{Logs: []*models.AuditLog{}}, nil
	}
	return m.ListFunc(ctx, filter)
}
