package middleware

import (
	"log/slog"
	"net/http"
	"time"

	pkghttp "github.com/dinarexchange/dinar-auth/pkg/http"
	pkglogger "github.com/dinarexchange/dinar-auth/pkg/logger"
	"github.com/go-chi/chi/v5/middleware"
)

// SecureLogger logs one line per request with magic keys and other
// secrets stripped from the query string
func SecureLogger(logger *slog.Logger, ipConfig *pkghttp.IPConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(wrapped, r)

			path := r.URL.Path
			if pkglogger.SanitizeQueryString(r.URL.RawQuery) {
				path += "?[REDACTED]"
			} else if r.URL.RawQuery != "" {
				path += "?" + r.URL.RawQuery
			}

			status := wrapped.Status()
			if status == 0 {
				status = http.StatusOK
			}

			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}

			logger.LogAttrs(r.Context(), level, "http_request",
				slog.String("method", r.Method),
				slog.String("path", path),
				slog.Int("status", status),
				slog.Int("bytes", wrapped.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("client_ip", pkghttp.ExtractClientIP(r, ipConfig)),
			)
		})
	}
}
