package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dinarexchange/dinar-auth/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type stubSessions struct {
	accountID string
	err       error
}

func (s *stubSessions) Resolve(ctx context.Context, token string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.accountID, nil
}

type stubAccounts struct {
	account *models.Account
	err     error
}

func (s *stubAccounts) GetByID(ctx context.Context, id string) (*models.Account, error) {
	return s.account, s.err
}

type stubAdmins struct {
	admin *models.Admin
	err   error
}

func (s *stubAdmins) GetByID(ctx context.Context, id string) (*models.Admin, error) {
	return s.admin, s.err
}

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestSessionMiddleware(t *testing.T) {
	account := &models.Account{ID: primitive.NewObjectID(), Email: "a@b.test"}

	tests := []struct {
		name       string
		cookie     string
		sessions   *stubSessions
		accounts   *stubAccounts
		wantStatus int
	}{
		{"no cookie", "", &stubSessions{}, &stubAccounts{}, http.StatusUnauthorized},
		{"unknown session", "tok", &stubSessions{err: models.ErrUnauthorized}, &stubAccounts{}, http.StatusUnauthorized},
		{"store failure", "tok", &stubSessions{err: models.ErrInternalServer}, &stubAccounts{}, http.StatusInternalServerError},
		{"account gone", "tok", &stubSessions{accountID: "x"}, &stubAccounts{err: models.ErrNotFound}, http.StatusUnauthorized},
		{"account lookup failure", "tok", &stubSessions{accountID: "x"}, &stubAccounts{err: errors.New("boom")}, http.StatusInternalServerError},
		{"valid", "tok", &stubSessions{accountID: account.ID.Hex()}, &stubAccounts{account: account}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var called bool
			var seen *models.Account
			var seenToken string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				seen = GetAccountFromContext(r)
				seenToken = GetSessionTokenFromContext(r)
			})

			req := httptest.NewRequest(http.MethodGet, "/user/api/manage-trusted-ips", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "auth-token", Value: tt.cookie})
			}
			w := httptest.NewRecorder()

			SessionMiddleware(tt.sessions, tt.accounts, "auth-token")(next).ServeHTTP(w, req)

			if tt.wantStatus == http.StatusOK {
				require.True(t, called)
				assert.Equal(t, account, seen)
				assert.Equal(t, "tok", seenToken)
				return
			}
			assert.False(t, called)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestAdminMiddleware(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)
	admin := testAdmin()
	token, err := tm.GenerateAdminToken(admin)
	require.NoError(t, err)

	inactive := testAdmin()
	inactive.IsActive = false

	tests := []struct {
		name       string
		setup      func(r *http.Request)
		admins     *stubAdmins
		wantStatus int
	}{
		{"missing token", func(r *http.Request) {}, &stubAdmins{admin: admin}, http.StatusUnauthorized},
		{"malformed header", func(r *http.Request) { r.Header.Set("Authorization", "Token abc") }, &stubAdmins{admin: admin}, http.StatusUnauthorized},
		{"bad token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, &stubAdmins{admin: admin}, http.StatusUnauthorized},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, &stubAdmins{admin: admin}, http.StatusOK},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "admin-token", Value: token}) }, &stubAdmins{admin: admin}, http.StatusOK},
		{"deleted admin", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, &stubAdmins{err: models.ErrNotFound}, http.StatusUnauthorized},
		{"inactive admin", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, &stubAdmins{admin: inactive}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var called bool
			req := httptest.NewRequest(http.MethodGet, "/admin/api/me", nil)
			tt.setup(req)
			w := httptest.NewRecorder()

			AdminMiddleware(tm, tt.admins, "admin-token")(okHandler(&called)).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantStatus == http.StatusOK, called)
		})
	}
}

func withAdmin(r *http.Request, admin *models.Admin) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), AdminContextKey, admin))
}

func TestRequirePermission(t *testing.T) {
	viewer := testAdmin()
	support := &models.Admin{Role: models.RoleSupport}
	superuser := &models.Admin{Role: models.RoleAdmin}

	tests := []struct {
		name       string
		admin      *models.Admin
		wantStatus int
	}{
		{"no admin", nil, http.StatusUnauthorized},
		{"missing permission", support, http.StatusForbidden},
		{"granted permission", viewer, http.StatusOK},
		{"admin role bypasses flags", superuser, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var called bool
			req := httptest.NewRequest(http.MethodGet, "/admin/api/audit-logs", nil)
			if tt.admin != nil {
				req = withAdmin(req, tt.admin)
			}
			w := httptest.NewRecorder()

			RequirePermission(models.PermViewAuditLog)(okHandler(&called)).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	var called bool
	req := withAdmin(httptest.NewRequest(http.MethodGet, "/", nil), &models.Admin{Role: models.RoleSupport})
	w := httptest.NewRecorder()

	RequireRole(models.RoleAdmin)(okHandler(&called)).ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, called)

	called = false
	req = withAdmin(httptest.NewRequest(http.MethodGet, "/", nil), &models.Admin{Role: models.RoleAdmin})
	w = httptest.NewRecorder()

	RequireRole(models.RoleAdmin)(okHandler(&called)).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, called)
}
