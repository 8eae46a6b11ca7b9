package middleware

import (
	"net/http"
	"time"

	pkghttp "github.com/dinarexchange/dinar-auth/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds per-IP request throttling
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// DefaultLoginRateLimit sits in front of the account governor and catches
// spraying across many emails from one address
func DefaultLoginRateLimit() RateLimitConfig {
	return RateLimitConfig{Requests: 20, Window: time.Minute}
}

// DefaultVerifyRateLimit bounds magic key guessing per address
func DefaultVerifyRateLimit() RateLimitConfig {
	return RateLimitConfig{Requests: 10, Window: time.Minute}
}

// DefaultAdminLoginRateLimit throttles password attempts
func DefaultAdminLoginRateLimit() RateLimitConfig {
	return RateLimitConfig{Requests: 5, Window: time.Minute}
}

// RateLimitByIP limits requests per client IP, resolved the same way the
// login flow resolves it
func RateLimitByIP(config RateLimitConfig, ipConfig *pkghttp.IPConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.Requests,
		config.Window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return pkghttp.ExtractClientIP(r, ipConfig), nil
		}, httprate.KeyByEndpoint),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "Too many requests, please try again later")
		}),
	)
}
