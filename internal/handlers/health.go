package handlers

import (
	"context"
	"net/http"
	"time"

	pkghttp "github.com/dinarexchange/dinar-auth/pkg/http"
)

// HealthChecker is any backing store that can be pinged
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheckFunc adapts a ping function to HealthChecker
type HealthCheckFunc func(ctx context.Context) error

func (f HealthCheckFunc) HealthCheck(ctx context.Context) error {
	return f(ctx)
}

// HealthHandler reports the status of every backing store
type HealthHandler struct {
	checks  map[string]HealthChecker
	timeout time.Duration
}

func NewHealthHandler(checks map[string]HealthChecker) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: 2 * time.Second}
}

type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// Check handles GET /health. Any store down yields 503.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp := HealthResponse{Status: "healthy", Services: make(map[string]string, len(h.checks))}
	status := http.StatusOK

	for name, check := range h.checks {
		if err := check.HealthCheck(ctx); err != nil {
			resp.Services[name] = "down"
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Services[name] = "up"
	}

	pkghttp.WriteJSON(w, status, resp)
}
