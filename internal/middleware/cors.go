package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string
	MaxAge         int
}

// CORS only admits explicitly configured origins. Credentials are allowed
// because the session rides in a cookie.
func CORS(config CORSConfig) func(http.Handler) http.Handler {
	maxAge := config.MaxAge
	if maxAge == 0 {
		maxAge = 3600
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   config.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           maxAge,
	})
}
