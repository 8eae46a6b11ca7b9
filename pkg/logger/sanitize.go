package logger

import (
	"log/slog"
	"strings"
)

// SanitizedEmail masks an email address for logging (e.g., "u***@e***.com")
func SanitizedEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "[invalid-email]"
	}

	username := parts[0]
	domain := parts[1]

	// Mask username: keep first char, mask rest
	if len(username) > 1 {
		username = string(username[0]) + strings.Repeat("*", len(username)-1)
	}

	// Mask domain: keep TLD, mask the rest
	domainParts := strings.Split(domain, ".")
	if len(domainParts) > 1 {
		// Mask all but the TLD
		for i := 0; i < len(domainParts)-1; i++ {
			domainParts[i] = strings.Repeat("*", len(domainParts[i]))
		}
		domain = strings.Join(domainParts, ".")
	}

	return username + "@" + domain
}

// RedactedAttr returns a redacted slog attribute for sensitive values
// In production, returns "[REDACTED]"; in development, returns the actual value
func RedactedAttr(key, value, env string) slog.Attr {
	if env == "production" {
		return slog.String(key, "[REDACTED]")
	}
	return slog.String(key, value)
}

// sensitiveParams must never appear in request logs. Magic-link keys
// travel as ?key= so any query carrying one is redacted wholesale.
var sensitiveParams = []string{
	"key",
	"magickey",
	"password",
	"token",
	"secret",
	"email",
	"auth",
}

// SanitizeQueryString reports whether the query string must be redacted
func SanitizeQueryString(rawQuery string) bool {
	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}

// MaskKey keeps the first four characters of a credential for correlation
func MaskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}
