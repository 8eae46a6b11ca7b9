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
	"github.com/dinarexchange/dinar-auth/internal/trust"
	pkghttp "github.com/dinarexchange/dinar-auth/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var testCookie = auth.CookieConfig{Name: "auth-token", SameSite: "lax"}

func newAuthHandler(svc *handlers.MockAuthService) *handlers.AuthHandler {
	return handlers.NewAuthHandler(svc, &pkghttp.IPConfig{}, testCookie, 30*24*time.Hour)
}

func testAccount(email string) *models.Account {
	return &models.Account{ID: primitive.NewObjectID(), Email: email}
}

func TestLogin_AutoLoggedIn(t *testing.T) {
	acc := testAccount("user@example.com")
	svc := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, email, ip, userAgent string) (*services.LoginResult, error) {
			assert.Equal(t, "user@example.com", email)
			assert.Equal(t, "203.0.113.10", ip)
			return &services.LoginResult{
				Outcome:      services.OutcomeAutoLoggedIn,
				Account:      acc,
				SessionToken: "session-token",
				MatchType:    trust.MatchSubnet,
			}, nil
		},
	}

	req := handlers.NewTestRequest(t, http.MethodPost, "/user/api/login", handlers.LoginRequest{Email: "  User@Example.com "})
	req.RemoteAddr = "203.0.113.10:5555"
	w := httptest.NewRecorder()
	newAuthHandler(svc).Login(w, req)

	var resp handlers.AutoLoginResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.True(t, resp.AutoLoggedIn)
	assert.Equal(t, trust.MatchSubnet, resp.MatchType)
	assert.Equal(t, acc.ID.Hex(), resp.User.ID)

	cookie := handlers.SessionCookie(w, "auth-token")
	require.NotNil(t, cookie)
	assert.Equal(t, "session-token", cookie.Value)
	assert.True(t, cookie.HttpOnly)
}

func TestLogin_MagicLinkSent(t *testing.T) {
	svc := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, email, ip, userAgent string) (*services.LoginResult, error) {
			return &services.LoginResult{
				Outcome: services.OutcomeMagicLinkSent,
				Account: testAccount(email),
			}, nil
		},
	}

	req := handlers.NewTestRequest(t, http.MethodPost, "/user/api/login", handlers.LoginRequest{Email: "new@example.com"})
	w := httptest.NewRecorder()
	newAuthHandler(svc).Login(w, req)

	var resp handlers.MagicLinkSentResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.True(t, resp.MagicLinkSent)
	assert.Equal(t, "new@example.com", resp.Email)
	assert.Nil(t, handlers.SessionCookie(w, "auth-token"), "no session without a verified link")
}

func TestLogin_RateLimited(t *testing.T) {
	reset := time.Date(2026, 3, 1, 12, 15, 0, 0, time.UTC)
	svc := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, email, ip, userAgent string) (*services.LoginResult, error) {
			return nil, &models.RateLimitError{Reason: models.RateLimitReasonAccountLocked, ResetTime: reset}
		},
	}

	req := handlers.NewTestRequest(t, http.MethodPost, "/user/api/login", handlers.LoginRequest{Email: "user@example.com"})
	w := httptest.NewRecorder()
	newAuthHandler(svc).Login(w, req)

	var resp pkghttp.RateLimitResponse
	handlers.AssertJSONResponse(t, w, http.StatusTooManyRequests, &resp)
	assert.Equal(t, models.RateLimitReasonAccountLocked, resp.Reason)
	assert.True(t, reset.Equal(resp.ResetTime))
	assert.Equal(t, "Account temporarily locked. Please try again after 12:15 UTC.", resp.Message)
}

func TestLogin_RateLimitedMessageShowsResetTimeInUTC(t *testing.T) {
	reset := time.Date(2026, 3, 1, 16, 45, 0, 0, time.FixedZone("GST", 4*60*60))
	svc := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, email, ip, userAgent string) (*services.LoginResult, error) {
			return nil, &models.RateLimitError{Reason: models.RateLimitReasonRateLimited, ResetTime: reset}
		},
	}

	w := httptest.NewRecorder()
	newAuthHandler(svc).Login(w, handlers.NewTestRequest(t, http.MethodPost, "/user/api/login", handlers.LoginRequest{Email: "user@example.com"}))

	var resp pkghttp.RateLimitResponse
	handlers.AssertJSONResponse(t, w, http.StatusTooManyRequests, &resp)
	assert.Equal(t, "Too many login attempts. Please try again after 12:45 UTC.", resp.Message)
}

func TestLogin_BadInput(t *testing.T) {
	tests := []struct {
		name string
		body interface{}
	}{
		{"missing email", map[string]string{}},
		{"not an email", handlers.LoginRequest{Email: "not-an-email"}},
		{"wrong type", map[string]int{"email": 42}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &handlers.MockAuthService{
				LoginFunc: func(ctx context.Context, email, ip, userAgent string) (*services.LoginResult, error) {
					t.Fatal("service must not be called on bad input")
					return nil, nil
				},
			}

			req := handlers.NewTestRequest(t, http.MethodPost, "/user/api/login", tt.body)
			w := httptest.NewRecorder()
			newAuthHandler(svc).Login(w, req)

			handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
		})
	}
}

func TestLogin_InternalError(t *testing.T) {
	svc := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, email, ip, userAgent string) (*services.LoginResult, error) {
			return nil, errors.New("mongo unreachable")
		},
	}

	req := handlers.NewTestRequest(t, http.MethodPost, "/user/api/login", handlers.LoginRequest{Email: "user@example.com"})
	w := httptest.NewRecorder()
	newAuthHandler(svc).Login(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusInternalServerError, "internal_error")
}

func TestSendMagicLink_Success(t *testing.T) {
	svc := &handlers.MockAuthService{
		SendMagicLinkFunc: func(ctx context.Context, email, ip, userAgent string) (*services.LoginResult, error) {
			return &services.LoginResult{Outcome: services.OutcomeMagicLinkSent, Account: testAccount(email)}, nil
		},
	}

	req := handlers.NewTestRequest(t, http.MethodPost, "/user/api/send-magic-link", handlers.LoginRequest{Email: "user@example.com"})
	w := httptest.NewRecorder()
	newAuthHandler(svc).SendMagicLink(w, req)

	var resp handlers.MagicLinkSentResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.NotEmpty(t, resp.Message)
	assert.Equal(t, "user@example.com", resp.Email)
}

func TestVerifyMagicLink_Success(t *testing.T) {
	enabled := true
	acc := testAccount("user@example.com")
	acc.AutoLoginEnabled = &enabled

	svc := &handlers.MockAuthService{
		VerifyMagicLinkFunc: func(ctx context.Context, key, ip, userAgent string) (*services.LoginResult, error) {
			assert.Equal(t, "abc123", key)
			return &services.LoginResult{
				Outcome:      services.OutcomeMagicLinkVerified,
				Account:      acc,
				SessionToken: "fresh-session",
				NewTrustedIP: true,
			}, nil
		},
	}

	req := handlers.NewTestRequest(t, http.MethodPost, "/user/api/verify-magic-link", handlers.VerifyMagicLinkRequest{MagicKey: " abc123 "})
	w := httptest.NewRecorder()
	newAuthHandler(svc).VerifyMagicLink(w, req)

	var resp handlers.VerifyMagicLinkResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.True(t, resp.NewTrustedIP)
	assert.True(t, resp.AutoLoginEnabled)
	assert.Equal(t, "user@example.com", resp.User.Email)

	cookie := handlers.SessionCookie(w, "auth-token")
	require.NotNil(t, cookie)
	assert.Equal(t, "fresh-session", cookie.Value)
}

func TestVerifyMagicLink_Errors(t *testing.T) {
	tests := []struct {
		name      string
		body      interface{}
		err       error
		status    int
		errorCode string
	}{
		{"missing key", map[string]string{}, nil, http.StatusBadRequest, "bad_request"},
		{"invalid key", handlers.VerifyMagicLinkRequest{MagicKey: "deadbeef"}, models.ErrInvalidCredential, http.StatusUnauthorized, "unauthorized"},
		{"store failure", handlers.VerifyMagicLinkRequest{MagicKey: "deadbeef"}, models.ErrInternalServer, http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &handlers.MockAuthService{
				VerifyMagicLinkFunc: func(ctx context.Context, key, ip, userAgent string) (*services.LoginResult, error) {
					return nil, tt.err
				},
			}

			req := handlers.NewTestRequest(t, http.MethodPost, "/user/api/verify-magic-link", tt.body)
			w := httptest.NewRecorder()
			newAuthHandler(svc).VerifyMagicLink(w, req)

			handlers.AssertErrorResponse(t, w, tt.status, tt.errorCode)
			assert.Nil(t, handlers.SessionCookie(w, "auth-token"))
		})
	}
}

func TestSession(t *testing.T) {
	acc := testAccount("user@example.com")
	svc := &handlers.MockAuthService{
		CurrentAccountFunc: func(ctx context.Context, token string) (*models.Account, error) {
			if token == "good" {
				return acc, nil
			}
			return nil, models.ErrUnauthorized
		},
	}
	h := newAuthHandler(svc)

	t.Run("valid session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/user/api/verify-magic-link", nil)
		req.AddCookie(&http.Cookie{Name: "auth-token", Value: "good"})
		w := httptest.NewRecorder()
		h.Session(w, req)

		var resp handlers.SessionResponse
		handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
		assert.True(t, resp.Authenticated)
		assert.Equal(t, acc.ID.Hex(), resp.User.ID)
	})

	t.Run("no cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/user/api/verify-magic-link", nil)
		w := httptest.NewRecorder()
		h.Session(w, req)

		handlers.AssertErrorResponse(t, w, http.StatusUnauthorized, "unauthorized")
	})

	t.Run("expired session clears cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/user/api/verify-magic-link", nil)
		req.AddCookie(&http.Cookie{Name: "auth-token", Value: "stale"})
		w := httptest.NewRecorder()
		h.Session(w, req)

		handlers.AssertErrorResponse(t, w, http.StatusUnauthorized, "unauthorized")
		cookie := handlers.SessionCookie(w, "auth-token")
		require.NotNil(t, cookie)
		assert.Equal(t, -1, cookie.MaxAge)
	})
}

func TestLogout(t *testing.T) {
	acc := testAccount("user@example.com")
	var revoked, revokedFor string
	svc := &handlers.MockAuthService{
		CurrentAccountFunc: func(ctx context.Context, token string) (*models.Account, error) {
			return acc, nil
		},
		LogoutFunc: func(ctx context.Context, token, accountID, ip string) error {
			revoked, revokedFor = token, accountID
			return nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/user/api/logout", nil)
	req.AddCookie(&http.Cookie{Name: "auth-token", Value: "session-token"})
	w := httptest.NewRecorder()
	newAuthHandler(svc).Logout(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "session-token", revoked)
	assert.Equal(t, acc.ID.Hex(), revokedFor)

	cookie := handlers.SessionCookie(w, "auth-token")
	require.NotNil(t, cookie)
	assert.Equal(t, -1, cookie.MaxAge)
}

func TestLogout_WithoutCookie(t *testing.T) {
	svc := &handlers.MockAuthService{
		LogoutFunc: func(ctx context.Context, token, accountID, ip string) error {
			t.Fatal("nothing to revoke")
			return nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/user/api/logout", nil)
	w := httptest.NewRecorder()
	newAuthHandler(svc).Logout(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
}
