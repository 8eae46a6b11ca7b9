package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dinarexchange/dinar-auth/internal/auth"
	"github.com/dinarexchange/dinar-auth/internal/models"
	"github.com/dinarexchange/dinar-auth/internal/services"
	pkghttp "github.com/dinarexchange/dinar-auth/pkg/http"
)

// TrustedIPServiceInterface defines the trusted IP management use cases
type TrustedIPServiceInterface interface {
	List(acc *models.Account, currentIP string) *services.TrustedIPListing
	ToggleAutoLogin(ctx context.Context, accountID string, enabled bool, ip string) (*models.Account, error)
	RemoveIP(ctx context.Context, accountID, recordID, ip string) (*models.Account, error)
	ClearAll(ctx context.Context, accountID, ip string) (int, error)
	RegenerateMagicKey(ctx context.Context, accountID, ip string) (*services.RegenerateResult, error)
}

// TrustedIPHandler serves /user/api/manage-trusted-ips. Both routes sit
// behind auth.SessionMiddleware.
type TrustedIPHandler struct {
	service    TrustedIPServiceInterface
	ipConfig   *pkghttp.IPConfig
	cookie     auth.CookieConfig
	sessionTTL time.Duration
}

func NewTrustedIPHandler(service TrustedIPServiceInterface, ipConfig *pkghttp.IPConfig, cookie auth.CookieConfig, sessionTTL time.Duration) *TrustedIPHandler {
	return &TrustedIPHandler{
		service:    service,
		ipConfig:   ipConfig,
		cookie:     cookie,
		sessionTTL: sessionTTL,
	}
}

// ManageTrustedIPsRequest is the body of POST /user/api/manage-trusted-ips
type ManageTrustedIPsRequest struct {
	Action           string `json:"action" validate:"required,oneof=toggle_auto_login remove_ip clear_all_ips regenerate_magic_key"`
	IPID             string `json:"ipId" validate:"omitempty,len=24,hexadecimal"`
	AutoLoginEnabled *bool  `json:"autoLoginEnabled"`
}

// ManageTrustedIPsResponse reports the result of one action. Only the
// fields relevant to the action are set.
type ManageTrustedIPsResponse struct {
	Message          string `json:"message"`
	AutoLoginEnabled *bool  `json:"autoLoginEnabled,omitempty"`
	RemainingCount   *int   `json:"remainingCount,omitempty"`
	RemovedCount     *int   `json:"removedCount,omitempty"`
	RevokedSessions  *int   `json:"revokedSessions,omitempty"`
}

// List handles GET /user/api/manage-trusted-ips
func (h *TrustedIPHandler) List(w http.ResponseWriter, r *http.Request) {
	acc := auth.GetAccountFromContext(r)
	if acc == nil {
		pkghttp.WriteUnauthorized(w, "Not authenticated")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, h.service.List(acc, pkghttp.ExtractClientIP(r, h.ipConfig)))
}

// Manage handles POST /user/api/manage-trusted-ips
func (h *TrustedIPHandler) Manage(w http.ResponseWriter, r *http.Request) {
	acc := auth.GetAccountFromContext(r)
	if acc == nil {
		pkghttp.WriteUnauthorized(w, "Not authenticated")
		return
	}

	var req ManageTrustedIPsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ctx := r.Context()
	accountID := acc.ID.Hex()
	ip := pkghttp.ExtractClientIP(r, h.ipConfig)

	switch req.Action {
	case services.ActionToggleAutoLogin:
		if req.AutoLoginEnabled == nil {
			pkghttp.WriteBadRequest(w, "autoLoginEnabled is required")
			return
		}
		updated, err := h.service.ToggleAutoLogin(ctx, accountID, *req.AutoLoginEnabled, ip)
		if err != nil {
			writeManageError(w, err)
			return
		}
		enabled := updated.AutoLogin()
		state := "disabled"
		if enabled {
			state = "enabled"
		}
		pkghttp.WriteJSON(w, http.StatusOK, ManageTrustedIPsResponse{
			Message:          "Auto-login " + state,
			AutoLoginEnabled: &enabled,
		})

	case services.ActionRemoveIP:
		if req.IPID == "" {
			pkghttp.WriteBadRequest(w, "ipId is required")
			return
		}
		updated, err := h.service.RemoveIP(ctx, accountID, req.IPID, ip)
		if err != nil {
			writeManageError(w, err)
			return
		}
		remaining := len(updated.TrustedIPs)
		pkghttp.WriteJSON(w, http.StatusOK, ManageTrustedIPsResponse{
			Message:        "Trusted IP removed successfully",
			RemainingCount: &remaining,
		})

	case services.ActionClearAllIPs:
		removed, err := h.service.ClearAll(ctx, accountID, ip)
		if err != nil {
			writeManageError(w, err)
			return
		}
		pkghttp.WriteJSON(w, http.StatusOK, ManageTrustedIPsResponse{
			Message:      fmt.Sprintf("All %d trusted IPs cleared", removed),
			RemovedCount: &removed,
		})

	case services.ActionRegenerateMagicKey:
		result, err := h.service.RegenerateMagicKey(ctx, accountID, ip)
		if err != nil {
			writeManageError(w, err)
			return
		}
		auth.SetSessionCookie(w, result.SessionToken, h.sessionTTL, h.cookie)
		pkghttp.WriteJSON(w, http.StatusOK, ManageTrustedIPsResponse{
			Message:         "Magic key regenerated. All existing magic links and other sessions are now invalid.",
			RevokedSessions: &result.RevokedSessions,
		})
	}
}

func writeManageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrTrustedIPNotFound):
		pkghttp.WriteNotFound(w, "Trusted IP not found")
		return
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Account not found")
		return
	}
	pkghttp.WriteInternalError(w, "Failed to manage trusted IPs")
}
