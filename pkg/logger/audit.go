package logger

import (
	"context"
	"log/slog"
	"time"
)

// Customer authentication event types
const (
	EventLoginRateLimited  = "login_rate_limited"
	EventAutoLogin         = "auto_login"
	EventMagicLinkSent     = "magic_link_sent"
	EventMagicLinkVerified = "magic_link_verified"
	EventMagicLinkInvalid  = "magic_link_invalid"
	EventLogout            = "logout"
)

// AuthEvent describes a single customer authentication decision
type AuthEvent struct {
	EventType     string
	AccountID     string
	Email         string
	IPAddress     string
	UserAgent     string
	MatchType     string
	Success       bool
	FailureReason string
}

// AuditLogger writes security events to the structured log stream
type AuditLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
		now:    time.Now,
	}
}

// LogAuthAttempt records a login, magic-link or session decision.
// Emails are masked before they reach the log.
func (al *AuditLogger) LogAuthAttempt(ctx context.Context, event AuthEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "auth"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", al.now().UTC().Format(time.RFC3339)),
	}

	if event.AccountID != "" {
		attrs = append(attrs, slog.String("account_id", event.AccountID))
	}
	if event.Email != "" {
		attrs = append(attrs, slog.String("email", SanitizedEmail(event.Email)))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.MatchType != "" {
		attrs = append(attrs, slog.String("match_type", event.MatchType))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}

// LogAccountAction records a self-service change to an account, such as
// trusted IP management.
func (al *AuditLogger) LogAccountAction(ctx context.Context, eventType, accountID, ipAddress string, metadata map[string]string) {
	attrs := []slog.Attr{
		slog.String("audit_type", "account"),
		slog.String("event_type", eventType),
		slog.String("account_id", accountID),
		slog.String("timestamp", al.now().UTC().Format(time.RFC3339)),
	}

	if ipAddress != "" {
		attrs = append(attrs, slog.String("ip_address", ipAddress))
	}

	for key, val := range metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	al.logger.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
}
