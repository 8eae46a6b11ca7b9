package routes

import (
	"github.com/dinarexchange/dinar-auth/internal/auth"
	"github.com/dinarexchange/dinar-auth/internal/handlers"
	"github.com/dinarexchange/dinar-auth/internal/middleware"
	"github.com/dinarexchange/dinar-auth/internal/models"
	pkghttp "github.com/dinarexchange/dinar-auth/pkg/http"
	"github.com/go-chi/chi/v5"
)

// Dependencies bundles everything the route table needs
type Dependencies struct {
	AuthHandler      *handlers.AuthHandler
	TrustedIPHandler *handlers.TrustedIPHandler
	AdminHandler     *handlers.AdminHandler
	HealthHandler    *handlers.HealthHandler

	Sessions     auth.SessionResolver
	Accounts     auth.AccountLoader
	Admins       auth.AdminLoader
	TokenManager *auth.TokenManager

	IPConfig          *pkghttp.IPConfig
	SessionCookieName string
	AdminCookieName   string
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, deps Dependencies) {
	loginLimit := middleware.RateLimitByIP(middleware.DefaultLoginRateLimit(), deps.IPConfig)
	verifyLimit := middleware.RateLimitByIP(middleware.DefaultVerifyRateLimit(), deps.IPConfig)
	adminLoginLimit := middleware.RateLimitByIP(middleware.DefaultAdminLoginRateLimit(), deps.IPConfig)

	router.Get("/health", deps.HealthHandler.Check)

	router.Route("/user/api", func(r chi.Router) {
		// Public customer routes
		r.With(loginLimit).Post("/login", deps.AuthHandler.Login)
		r.With(loginLimit).Post("/send-magic-link", deps.AuthHandler.SendMagicLink)
		r.With(verifyLimit).Post("/verify-magic-link", deps.AuthHandler.VerifyMagicLink)
		r.Get("/verify-magic-link", deps.AuthHandler.Session)
		r.Post("/logout", deps.AuthHandler.Logout)

		// Signed-in customer routes
		r.Group(func(r chi.Router) {
			r.Use(auth.SessionMiddleware(deps.Sessions, deps.Accounts, deps.SessionCookieName))
			r.Get("/manage-trusted-ips", deps.TrustedIPHandler.List)
			r.Post("/manage-trusted-ips", deps.TrustedIPHandler.Manage)
		})
	})

	router.Route("/admin/api", func(r chi.Router) {
		r.With(adminLoginLimit).Post("/login", deps.AdminHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(auth.AdminMiddleware(deps.TokenManager, deps.Admins, deps.AdminCookieName))
			r.Post("/logout", deps.AdminHandler.Logout)
			r.Get("/me", deps.AdminHandler.Me)

			r.With(auth.RequirePermission(models.PermViewAuditLog)).Get("/audit-logs", deps.AdminHandler.ListAuditLogs)
		})
	})
}
