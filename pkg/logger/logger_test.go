package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizedEmail(t *testing.T) {
	assert.Equal(t, "u***@*******.com", SanitizedEmail("user@example.com"))
	assert.Equal(t, "a@****.io", SanitizedEmail("a@dinr.io"))
	assert.Equal(t, "[invalid-email]", SanitizedEmail("not-an-email"))
}

func TestSanitizeQueryString(t *testing.T) {
	assert.True(t, SanitizeQueryString("key=abc123"))
	assert.True(t, SanitizeQueryString("Token=x"))
	assert.False(t, SanitizeQueryString("limit=10&offset=0"))
	assert.False(t, SanitizeQueryString(""))
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "abcd****", MaskKey("abcdef0123456789"))
	assert.Equal(t, "****", MaskKey("abc"))
}

func TestRedactedAttr(t *testing.T) {
	assert.Equal(t, "[REDACTED]", RedactedAttr("ip", "1.2.3.4", "production").Value.String())
	assert.Equal(t, "1.2.3.4", RedactedAttr("ip", "1.2.3.4", "development").Value.String())
}

func TestAuditLogger_LogAuthAttempt(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))
	al.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	al.LogAuthAttempt(context.Background(), AuthEvent{
		EventType:     EventLoginRateLimited,
		Email:         "user@example.com",
		IPAddress:     "203.0.113.7",
		Success:       false,
		FailureReason: "Account temporarily locked",
	})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "login_rate_limited", entry["event_type"])
	assert.Equal(t, "u***@*******.com", entry["email"])
	assert.Equal(t, "2026-01-02T03:04:05Z", entry["timestamp"])
	assert.NotContains(t, entry, "account_id")
}

func TestAuditLogger_LogAccountAction(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	al.LogAccountAction(context.Background(), "trusted_ips_cleared", "acc-1", "203.0.113.7", map[string]string{"removed_count": "3"})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "account", entry["audit_type"])
	assert.Equal(t, "3", entry["removed_count"])
}
