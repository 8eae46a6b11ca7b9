package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dinarexchange/dinar-auth/internal/auth"
	"github.com/dinarexchange/dinar-auth/internal/models"
	"github.com/dinarexchange/dinar-auth/internal/services"
	"github.com/dinarexchange/dinar-auth/internal/trust"
	pkghttp "github.com/dinarexchange/dinar-auth/pkg/http"
)

// AuthServiceInterface defines the customer sign-in use cases
type AuthServiceInterface interface {
	Login(ctx context.Context, email, ip, userAgent string) (*services.LoginResult, error)
	SendMagicLink(ctx context.Context, email, ip, userAgent string) (*services.LoginResult, error)
	VerifyMagicLink(ctx context.Context, key, ip, userAgent string) (*services.LoginResult, error)
	CurrentAccount(ctx context.Context, token string) (*models.Account, error)
	Logout(ctx context.Context, token, accountID, ip string) error
}

// AuthHandler handles customer authentication HTTP requests
type AuthHandler struct {
	service    AuthServiceInterface
	ipConfig   *pkghttp.IPConfig
	cookie     auth.CookieConfig
	sessionTTL time.Duration
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, ipConfig *pkghttp.IPConfig, cookie auth.CookieConfig, sessionTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		service:    service,
		ipConfig:   ipConfig,
		cookie:     cookie,
		sessionTTL: sessionTTL,
	}
}

// Request DTOs

// LoginRequest is the body of both login and send-magic-link
type LoginRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

// VerifyMagicLinkRequest carries the key from the emailed link
type VerifyMagicLinkRequest struct {
	MagicKey string `json:"magicKey" validate:"required,max=256"`
}

// Response DTOs

type AutoLoginResponse struct {
	AutoLoggedIn bool               `json:"autoLoggedIn"`
	User         models.AccountView `json:"user"`
	MatchType    trust.MatchType    `json:"matchType"`
}

type MagicLinkSentResponse struct {
	MagicLinkSent bool   `json:"magicLinkSent"`
	Message       string `json:"message"`
	Email         string `json:"email"`
}

type VerifyMagicLinkResponse struct {
	Message          string             `json:"message"`
	User             models.AccountView `json:"user"`
	NewTrustedIP     bool               `json:"newTrustedIP"`
	AutoLoginEnabled bool               `json:"autoLoginEnabled"`
}

type SessionResponse struct {
	Authenticated bool               `json:"authenticated"`
	User          models.AccountView `json:"user"`
}

const magicLinkSentMessage = "Check your email for a sign-in link"

// Login handles POST /user/api/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	email, ok := decodeEmail(w, r)
	if !ok {
		return
	}

	result, err := h.service.Login(r.Context(), email, pkghttp.ExtractClientIP(r, h.ipConfig), r.UserAgent())
	if err != nil {
		writeLoginError(w, err)
		return
	}

	if result.Outcome == services.OutcomeAutoLoggedIn {
		auth.SetSessionCookie(w, result.SessionToken, h.sessionTTL, h.cookie)
		pkghttp.WriteJSON(w, http.StatusOK, AutoLoginResponse{
			AutoLoggedIn: true,
			User:         result.Account.View(),
			MatchType:    result.MatchType,
		})
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MagicLinkSentResponse{
		MagicLinkSent: true,
		Message:       magicLinkSentMessage,
		Email:         result.Account.Email,
	})
}

// SendMagicLink handles POST /user/api/send-magic-link
func (h *AuthHandler) SendMagicLink(w http.ResponseWriter, r *http.Request) {
	email, ok := decodeEmail(w, r)
	if !ok {
		return
	}

	result, err := h.service.SendMagicLink(r.Context(), email, pkghttp.ExtractClientIP(r, h.ipConfig), r.UserAgent())
	if err != nil {
		writeLoginError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MagicLinkSentResponse{
		MagicLinkSent: true,
		Message:       magicLinkSentMessage,
		Email:         result.Account.Email,
	})
}

// VerifyMagicLink handles POST /user/api/verify-magic-link
func (h *AuthHandler) VerifyMagicLink(w http.ResponseWriter, r *http.Request) {
	var req VerifyMagicLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	req.MagicKey = strings.TrimSpace(req.MagicKey)
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.VerifyMagicLink(r.Context(), req.MagicKey, pkghttp.ExtractClientIP(r, h.ipConfig), r.UserAgent())
	if err != nil {
		switch {
		case errors.Is(err, models.ErrValidation):
			pkghttp.WriteBadRequest(w, "Magic key is required")
		case errors.Is(err, models.ErrInvalidCredential):
			pkghttp.WriteUnauthorized(w, "Invalid or expired magic link")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	auth.SetSessionCookie(w, result.SessionToken, h.sessionTTL, h.cookie)
	pkghttp.WriteJSON(w, http.StatusOK, VerifyMagicLinkResponse{
		Message:          "Signed in successfully",
		User:             result.Account.View(),
		NewTrustedIP:     result.NewTrustedIP,
		AutoLoginEnabled: result.Account.AutoLogin(),
	})
}

// Session handles GET /user/api/verify-magic-link, the cookie session check
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	token := auth.GetSessionCookie(r, h.cookie.Name)
	if token == "" {
		pkghttp.WriteUnauthorized(w, "Not authenticated")
		return
	}

	acc, err := h.service.CurrentAccount(r.Context(), token)
	if err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			auth.ClearSessionCookie(w, h.cookie)
			pkghttp.WriteUnauthorized(w, "Not authenticated")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, SessionResponse{Authenticated: true, User: acc.View()})
}

// Logout handles POST /user/api/logout. The cookie is cleared even when
// the session is already gone.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := auth.GetSessionCookie(r, h.cookie.Name)
	if token != "" {
		var accountID string
		if acc, err := h.service.CurrentAccount(r.Context(), token); err == nil {
			accountID = acc.ID.Hex()
		}

		if err := h.service.Logout(r.Context(), token, accountID, pkghttp.ExtractClientIP(r, h.ipConfig)); err != nil {
			pkghttp.WriteInternalError(w, "Internal server error")
			return
		}
	}

	auth.ClearSessionCookie(w, h.cookie)
	w.WriteHeader(http.StatusNoContent)
}

func decodeEmail(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return "", false
	}

	req.Email = services.NormalizeEmail(req.Email)
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return "", false
	}
	return req.Email, true
}

func writeLoginError(w http.ResponseWriter, err error) {
	var rateErr *models.RateLimitError
	switch {
	case errors.As(err, &rateErr):
		message := "Too many login attempts. Please try again " + retryAfterText(rateErr.ResetTime) + "."
		if rateErr.Reason == models.RateLimitReasonAccountLocked {
			message = "Account temporarily locked. Please try again " + retryAfterText(rateErr.ResetTime) + "."
		}
		pkghttp.WriteRateLimited(w, message, rateErr.Reason, rateErr.ResetTime)
	case errors.Is(err, models.ErrValidation):
		pkghttp.WriteBadRequest(w, "A valid email address is required")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// retryAfterText renders a reset time for people, e.g. "after 12:15 UTC"
func retryAfterText(reset time.Time) string {
	if reset.IsZero() {
		return "later"
	}
	return "after " + reset.UTC().Format("15:04") + " UTC"
}
