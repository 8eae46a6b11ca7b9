package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dinarexchange/dinar-auth/internal/models"
	pkghttp "github.com/dinarexchange/dinar-auth/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// AccountContextKey holds the authenticated *models.Account
	AccountContextKey contextKey = "account"
	// SessionTokenContextKey holds the raw session token
	SessionTokenContextKey contextKey = "session_token"
	// AdminContextKey holds the authenticated *models.Admin
	AdminContextKey contextKey = "admin"
	// AdminClaimsContextKey holds the validated *models.AdminClaims
	AdminClaimsContextKey contextKey = "admin_claims"
)

// SessionResolver maps a session token to an account id
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// AccountLoader fetches the current state of an account
type AccountLoader interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
}

// AdminLoader fetches the current state of an admin
type AdminLoader interface {
	GetByID(ctx context.Context, id string) (*models.Admin, error)
}

// SessionMiddleware authenticates customers by their session cookie and
// injects the account into context
func SessionMiddleware(sessions SessionResolver, accounts AccountLoader, cookieName string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := GetSessionCookie(r, cookieName)
			if token == "" {
				pkghttp.WriteUnauthorized(w, "authentication required")
				return
			}

			accountID, err := sessions.Resolve(r.Context(), token)
			if err != nil {
				if errors.Is(err, models.ErrUnauthorized) {
					pkghttp.WriteUnauthorized(w, "session expired or invalid")
					return
				}
				pkghttp.WriteInternalError(w, "internal server error")
				return
			}

			account, err := accounts.GetByID(r.Context(), accountID)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					pkghttp.WriteUnauthorized(w, "session expired or invalid")
					return
				}
				pkghttp.WriteInternalError(w, "internal server error")
				return
			}

			ctx := context.WithValue(r.Context(), AccountContextKey, account)
			ctx = context.WithValue(ctx, SessionTokenContextKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminMiddleware validates the admin JWT from the Authorization header or
// the admin cookie, then reloads the admin so deactivation takes effect
// before the token expires
func AdminMiddleware(tm *TokenManager, admins AdminLoader, cookieName string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := adminToken(r, cookieName)
			if !ok {
				pkghttp.WriteUnauthorized(w, "missing authorization")
				return
			}

			claims, err := tm.ValidateToken(tokenString)
			if err != nil {
				pkghttp.WriteUnauthorized(w, "invalid or expired token")
				return
			}

			admin, err := admins.GetByID(r.Context(), claims.AdminID)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					pkghttp.WriteUnauthorized(w, "invalid or expired token")
					return
				}
				pkghttp.WriteInternalError(w, "internal server error")
				return
			}

			if !admin.IsActive {
				pkghttp.WriteUnauthorized(w, "account disabled")
				return
			}

			ctx := context.WithValue(r.Context(), AdminContextKey, admin)
			ctx = context.WithValue(ctx, AdminClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func adminToken(r *http.Request, cookieName string) (string, bool) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}

	if token := GetSessionCookie(r, cookieName); token != "" {
		return token, true
	}
	return "", false
}

// RequirePermission rejects admins lacking perm. Must run after AdminMiddleware.
func RequirePermission(perm string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			admin := GetAdminFromContext(r)
			if admin == nil {
				pkghttp.WriteUnauthorized(w, "unauthorized")
				return
			}

			if admin.Role != models.RoleAdmin && !admin.Permissions.Has(perm) {
				pkghttp.WriteForbidden(w, "forbidden: insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole creates a middleware that enforces role-based access control
func RequireRole(role string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			admin := GetAdminFromContext(r)
			if admin == nil {
				pkghttp.WriteUnauthorized(w, "unauthorized")
				return
			}

			if admin.Role != role {
				pkghttp.WriteForbidden(w, "forbidden: insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetAccountFromContext extracts the session account from request context
func GetAccountFromContext(r *http.Request) *models.Account {
	account, ok := r.Context().Value(AccountContextKey).(*models.Account)
	if !ok {
		return nil
	}
	return account
}

// GetSessionTokenFromContext returns the raw session token, or ""
func GetSessionTokenFromContext(r *http.Request) string {
	token, _ := r.Context().Value(SessionTokenContextKey).(string)
	return token
}

// GetAdminFromContext extracts the admin from request context
func GetAdminFromContext(r *http.Request) *models.Admin {
	admin, ok := r.Context().Value(AdminContextKey).(*models.Admin)
	if !ok {
		return nil
	}
	return admin
}

// GetAdminClaimsFromContext extracts the validated admin claims
func GetAdminClaimsFromContext(r *http.Request) *models.AdminClaims {
	claims, ok := r.Context().Value(AdminClaimsContextKey).(*models.AdminClaims)
	if !ok {
		return nil
	}
	return claims
}
