package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dinarexchange/dinar-auth/internal/auth"
	"github.com/dinarexchange/dinar-auth/internal/handlers"
	"github.com/dinarexchange/dinar-auth/internal/models"
	"github.com/dinarexchange/dinar-auth/internal/services"
	pkghttp "github.com/dinarexchange/dinar-auth/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var adminCookie = auth.CookieConfig{Name: "admin-token", SameSite: "strict"}

func newAdminHandler(svc *handlers.MockAdminService, audit *handlers.MockAuditLogLister) *handlers.AdminHandler {
	if audit == nil {
		audit = &handlers.MockAuditLogLister{}
	}
	return handlers.NewAdminHandler(svc, audit, &pkghttp.IPConfig{}, adminCookie)
}

func testAdmin() *models.Admin {
	return &models.Admin{
		ID:       primitive.NewObjectID(),
		Email:    "ops@dinarexchange.com",
		Role:     models.RoleManager,
		IsActive: true,
	}
}

func TestAdminLogin_Success(t *testing.T) {
	admin := testAdmin()
	svc := &handlers.MockAdminService{
		LoginFunc: func(ctx context.Context, email, password, ip, userAgent string) (*services.AdminLoginResult, error) {
			assert.Equal(t, "ops@dinarexchange.com", email)
			return &services.AdminLoginResult{Token: "jwt", ExpiresAt: time.Now().Add(8 * time.Hour), Admin: admin}, nil
		},
	}

	req := handlers.NewTestRequest(t, http.MethodPost, "/admin/api/login", handlers.AdminLoginRequest{
		Email:    "OPS@dinarexchange.com",
		Password: "Correct-Horse-9",
	})
	w := httptest.NewRecorder()
	newAdminHandler(svc, nil).Login(w, req)

	var resp handlers.AdminLoginResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "jwt", resp.Token)
	require.NotNil(t, resp.Admin)
	assert.Equal(t, admin.Email, resp.Admin.Email)

	cookie := handlers.SessionCookie(w, "admin-token")
	require.NotNil(t, cookie)
	assert.Equal(t, "jwt", cookie.Value)
}

func TestAdminLogin_Failures(t *testing.T) {
	tests := []struct {
		name      string
		body      interface{}
		err       error
		status    int
		errorCode string
	}{
		{"wrong password", handlers.AdminLoginRequest{Email: "ops@dinarexchange.com", Password: "nope"}, models.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"missing password", map[string]string{"email": "ops@dinarexchange.com"}, nil, http.StatusBadRequest, "bad_request"},
		{"store down", handlers.AdminLoginRequest{Email: "ops@dinarexchange.com", Password: "x"}, errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &handlers.MockAdminService{
				LoginFunc: func(ctx context.Context, email, password, ip, userAgent string) (*services.AdminLoginResult, error) {
					return nil, tt.err
				},
			}

			w := httptest.NewRecorder()
			newAdminHandler(svc, nil).Login(w, handlers.NewTestRequest(t, http.MethodPost, "/admin/api/login", tt.body))

			handlers.AssertErrorResponse(t, w, tt.status, tt.errorCode)
			assert.Nil(t, handlers.SessionCookie(w, "admin-token"))
		})
	}
}

func TestAdminLogout(t *testing.T) {
	admin := testAdmin()
	var loggedOut *models.Admin
	svc := &handlers.MockAdminService{
		LogoutFunc: func(ctx context.Context, a *models.Admin, ip, userAgent string) {
			loggedOut = a
		},
	}

	req := handlers.WithAdminContext(httptest.NewRequest(http.MethodPost, "/admin/api/logout", nil), admin)
	w := httptest.NewRecorder()
	newAdminHandler(svc, nil).Logout(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Same(t, admin, loggedOut)
}

func TestAdminMe(t *testing.T) {
	admin := testAdmin()
	h := newAdminHandler(&handlers.MockAdminService{}, nil)

	w := httptest.NewRecorder()
	h.Me(w, handlers.WithAdminContext(httptest.NewRequest(http.MethodGet, "/admin/api/me", nil), admin))

	var resp models.Admin
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, admin.Email, resp.Email)
	assert.Equal(t, models.RoleManager, resp.Role)

	w = httptest.NewRecorder()
	h.Me(w, httptest.NewRequest(http.MethodGet, "/admin/api/me", nil))
	handlers.AssertErrorResponse(t, w, http.StatusUnauthorized, "unauthorized")
}

func TestListAuditLogs(t *testing.T) {
	var got models.AuditLogFilter
	audit := &handlers.MockAuditLogLister{
		ListFunc: func(ctx context.Context, filter models.AuditLogFilter) (*services.AuditLogPage, error) {
			got = filter
			return &services.AuditLogPage{
				Logs:   []*models.AuditLog{{Action: models.AuditActionFailedLogin}},
				Total:  41,
				Limit:  filter.Limit,
				Offset: filter.Offset,
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/api/audit-logs?limit=10&offset=20&action=failed_login&category=authentication", nil)
	w := httptest.NewRecorder()
	newAdminHandler(&handlers.MockAdminService{}, audit).ListAuditLogs(w, req)

	var resp services.AuditLogPage
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "41", w.Header().Get("X-Total-Count"))
	assert.Equal(t, 10, got.Limit)
	assert.Equal(t, 20, got.Offset)
	assert.Equal(t, models.AuditActionFailedLogin, got.Action)
	assert.Equal(t, models.AuditCategoryAuthentication, got.Category)
	assert.Len(t, resp.Logs, 1)
}

func TestListAuditLogs_IgnoresBadPaging(t *testing.T) {
	var got models.AuditLogFilter
	audit := &handlers.MockAuditLogLister{
		ListFunc: func(ctx context.Context, filter models.AuditLogFilter) (*services.AuditLogPage, error) {
			got = filter
			return &services.AuditLogPage{Logs: []*models.AuditLog{}}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/api/audit-logs?limit=-5&offset=abc", nil)
	w := httptest.NewRecorder()
	newAdminHandler(&handlers.MockAdminService{}, audit).ListAuditLogs(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, got.Limit)
	assert.Equal(t, 0, got.Offset)
}

func TestListAuditLogs_Error(t *testing.T) {
	audit := &handlers.MockAuditLogLister{
		ListFunc: func(ctx context.Context, filter models.AuditLogFilter) (*services.AuditLogPage, error) {
			return nil, models.ErrInternalServer
		},
	}

	w := httptest.NewRecorder()
	newAdminHandler(&handlers.MockAdminService{}, audit).ListAuditLogs(w, httptest.NewRequest(http.MethodGet, "/admin/api/audit-logs", nil))

	handlers.AssertErrorResponse(t, w, http.StatusInternalServerError, "internal_error")
}
