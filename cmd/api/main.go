package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dinarexchange/dinar-auth/internal/auth"
	"github.com/dinarexchange/dinar-auth/internal/background"
	"github.com/dinarexchange/dinar-auth/internal/config"
	"github.com/dinarexchange/dinar-auth/internal/database"
	"github.com/dinarexchange/dinar-auth/internal/handlers"
	middlewareCustom "github.com/dinarexchange/dinar-auth/internal/middleware"
	"github.com/dinarexchange/dinar-auth/internal/repositories"
	"github.com/dinarexchange/dinar-auth/internal/routes"
	"github.com/dinarexchange/dinar-auth/internal/services"
	"github.com/dinarexchange/dinar-auth/internal/trust"
	pkghttp "github.com/dinarexchange/dinar-auth/pkg/http"
	pkglogger "github.com/dinarexchange/dinar-auth/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Audit log store
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = db.Migrate(migrateCtx)
	migrateCancel()
	if err != nil {
		logger.Error("failed to migrate database", slog.Any("error", err))
		os.Exit(1)
	}

	// Account and admin store. The client is shared process-wide and
	// connects on first use; indexes are ensured once here.
	mongoStore := database.NewMongo(cfg.Mongo, logger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoStore.Disconnect(ctx); err != nil {
			logger.Error("failed to disconnect mongodb", slog.Any("error", err))
		}
	}()

	indexCtx, indexCancel := context.WithTimeout(context.Background(), cfg.Mongo.ConnectTimeout+10*time.Second)
	err = mongoStore.EnsureIndexes(indexCtx)
	indexCancel()
	if err != nil {
		logger.Error("failed to ensure mongodb indexes", slog.Any("error", err))
		os.Exit(1)
	}

	// Session store
	redisClient, err := database.NewRedisClient(cfg.Redis, logger)
	if err != nil {
		logger.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer redisClient.Close()

	// Initialize repositories
	accountRepo := repositories.NewAccountRepository(mongoStore)
	adminRepo := repositories.NewAdminRepository(mongoStore)
	sessionRepo := repositories.NewSessionRepository(redisClient)
	auditLogRepo := repositories.NewAuditLogRepository(db)

	// Initialize security services
	auditLogger := pkglogger.NewAuditLogger(logger)
	auditService := services.NewAuditService(auditLogRepo, logger)
	timingDelay := auth.NewTimingDelay(auth.DefaultTimingConfig())
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AdminTokenExpiry)

	policy := cfg.Policy
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

	// AWS SES notifier
	notifier, err := services.NewSESNotifier(cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
	if err != nil {
		logger.Error("failed to initialize email notifier", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize services
	sessionService := services.NewSessionService(sessionRepo, cfg.Auth.SessionTTL, logger)
	magicLinkService := services.NewMagicLinkService(
		accountRepo,
		notifier,
		governor,
		trustStore,
		timingDelay,
		services.MagicLinkConfig{
			BaseURL:           cfg.Email.BaseURL,
			KeyTTL:            cfg.Auth.MagicKeyTTL,
			KeyBytes:          config.DefaultMagicKeyBytes,
			NotifyTimeout:     cfg.Email.NotifyTimeout,
			StaleWriteRetries: policy.StaleWriteRetries,
		},
		logger,
		auditLogger,
	)
	authService := services.NewAuthService(
		accountRepo,
		sessionService,
		magicLinkService,
		governor,
		matcher,
		trustStore,
		auditService,
		services.AuthConfig{
			CountMagicLinkRequests: policy.CountMagicLinkRequests,
			StaleWriteRetries:      policy.StaleWriteRetries,
		},
		logger,
		auditLogger,
	)
	trustedIPService := services.NewTrustedIPService(
		accountRepo,
		trustStore,
		magicLinkService,
		sessionService,
		policy.StaleWriteRetries,
		logger,
		auditLogger,
	)
	adminService := services.NewAdminService(adminRepo, tokenManager, adminLock, auditService, timingDelay, policy.StaleWriteRetries, logger)

	// Bootstrap first admin if configured
	if cfg.Auth.AdminEmail == "" || cfg.Auth.AdminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin bootstrap")
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := adminService.EnsureBootstrapAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
			logger.Error("failed to ensure bootstrap admin", slog.Any("error", err))
		}
		cancel()
	}

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	sessionCookie := auth.CookieConfig{
		Name:     cfg.Auth.SessionCookieName,
		Domain:   cfg.Auth.CookieDomain,
		Secure:   cfg.IsProduction(),
		SameSite: "lax",
	}
	adminCookie := auth.CookieConfig{
		Name:     cfg.Auth.AdminCookieName,
		Domain:   cfg.Auth.CookieDomain,
		Secure:   cfg.IsProduction(),
		SameSite: "strict",
	}

	authHandler := handlers.NewAuthHandler(authService, ipConfig, sessionCookie, sessionService.TTL())
	trustedIPHandler := handlers.NewTrustedIPHandler(trustedIPService, ipConfig, sessionCookie, sessionService.TTL())
	adminHandler := handlers.NewAdminHandler(adminService, auditService, ipConfig, adminCookie)
	healthHandler := handlers.NewHealthHandler(map[string]handlers.HealthChecker{
		"postgres": db,
		"mongodb":  mongoStore,
		"redis":    handlers.HealthCheckFunc(sessionRepo.Ping),
	})

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.CORSConfig{AllowedOrigins: cfg.Server.AllowedOrigins}))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, routes.Dependencies{
		AuthHandler:       authHandler,
		TrustedIPHandler:  trustedIPHandler,
		AdminHandler:      adminHandler,
		HealthHandler:     healthHandler,
		Sessions:          sessionService,
		Accounts:          accountRepo,
		Admins:            adminRepo,
		TokenManager:      tokenManager,
		IPConfig:          ipConfig,
		SessionCookieName: sessionCookie.Name,
		AdminCookieName:   adminCookie.Name,
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start audit retention task
	cleanupManager := background.NewCleanupManager(auditService, logger, cfg.Auth.CleanupInterval, cfg.Auth.AuditRetention)
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("server error", slog.Any("error", err))
	}

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		return
	}

	logger.Info("server stopped gracefully")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
