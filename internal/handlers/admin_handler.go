package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dinarexchange/dinar-auth/internal/auth"
	"github.com/dinarexchange/dinar-auth/internal/models"
	"github.com/dinarexchange/dinar-auth/internal/services"
	pkghttp "github.com/dinarexchange/dinar-auth/pkg/http"
)

// AdminServiceInterface defines the back office sign-in contract
type AdminServiceInterface interface {
	Login(ctx context.Context, email, password, ip, userAgent string) (*services.AdminLoginResult, error)
	Logout(ctx context.Context, admin *models.Admin, ip, userAgent string)
}

// AuditLogLister pages through the audit log
type AuditLogLister interface {
	List(ctx context.Context, filter models.AuditLogFilter) (*services.AuditLogPage, error)
}

// AdminHandler handles back office HTTP requests
type AdminHandler struct {
	service  AdminServiceInterface
	audit    AuditLogLister
	ipConfig *pkghttp.IPConfig
	cookie   auth.CookieConfig
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(service AdminServiceInterface, audit AuditLogLister, ipConfig *pkghttp.IPConfig, cookie auth.CookieConfig) *AdminHandler {
	return &AdminHandler{
		service:  service,
		audit:    audit,
		ipConfig: ipConfig,
		cookie:   cookie,
	}
}

// AdminLoginRequest represents the request body for admin login
type AdminLoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

// AdminLoginResponse is returned on a successful admin login
type AdminLoginResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expiresAt"`
	Admin     *models.Admin `json:"admin"`
}

// Login handles POST /admin/api/login. Every failure is the same 401.
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req AdminLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password, pkghttp.ExtractClientIP(r, h.ipConfig), r.UserAgent())
	if err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			pkghttp.WriteUnauthorized(w, "Invalid email or password")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	auth.SetSessionCookie(w, result.Token, time.Until(result.ExpiresAt), h.cookie)
	pkghttp.WriteJSON(w, http.StatusOK, AdminLoginResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		Admin:     result.Admin,
	})
}

// Logout handles POST /admin/api/logout
func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if admin := auth.GetAdminFromContext(r); admin != nil {
		h.service.Logout(r.Context(), admin, pkghttp.ExtractClientIP(r, h.ipConfig), r.UserAgent())
	}

	auth.ClearSessionCookie(w, h.cookie)
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /admin/api/me
func (h *AdminHandler) Me(w http.ResponseWriter, r *http.Request) {
	admin := auth.GetAdminFromContext(r)
	if admin == nil {
		pkghttp.WriteUnauthorized(w, "Not authenticated")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, admin)
}

// ListAuditLogs handles GET /admin/api/audit-logs
// Accepts ?limit (1-100, default 50), ?offset, ?action and ?category.
func (h *AdminHandler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := models.AuditLogFilter{
		Action:   query.Get("action"),
		Category: query.Get("category"),
		AdminID:  query.Get("adminId"),
	}

	if l := query.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			filter.Limit = n
		}
	}

	if o := query.Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	page, err := h.audit.List(r.Context(), filter)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to retrieve audit logs")
		return
	}

	w.Header().Set("X-Total-Count", strconv.FormatInt(page.Total, 10))
	pkghttp.WriteJSON(w, http.StatusOK, page)
}
