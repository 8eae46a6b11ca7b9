package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMagicLinkEmail(t *testing.T) {
	body := magicLinkEmail("https://dinarexchange.test/user/magic-login?key=abc", 24*time.Hour)

	assert.Contains(t, body, `href="https://dinarexchange.test/user/magic-login?key=abc"`)
	assert.Contains(t, body, "expires in 24 hours")

	body = magicLinkEmail("https://x.test", 0)
	assert.Contains(t, body, "This link can be used once.")
	assert.NotContains(t, body, "expires")
}

func TestHumanDuration(t *testing.T) {
	tests := map[time.Duration]string{
		24 * time.Hour:   "24 hours",
		72 * time.Hour:   "3 days",
		6 * time.Hour:    "6 hours",
		90 * time.Minute: "90 minutes",
		15 * time.Minute: "15 minutes",
	}
	for d, want := range tests {
		assert.Equal(t, want, humanDuration(d))
	}
}
