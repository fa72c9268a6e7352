package handler

import (
	"context"
	"net/http"

	"github.com/medflow/pharmacy-backend/pkg/httputil"
)

// HealthCheck reports one dependency as a status map with at least a
// "status" key of "up" or "down".
type HealthCheck func(ctx context.Context) map[string]string

// HealthHandler reports service and dependency health
type HealthHandler struct {
	service string
	checks  map[string]HealthCheck
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(service string, checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{service: service, checks: checks}
}

// Check answers 200 when every dependency is up and 503 otherwise.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":  "healthy",
		"service": h.service,
	}
	code := http.StatusOK

	for name, check := range h.checks {
		result := check(r.Context())
		body[name] = result
		if result["status"] != "up" {
			body["status"] = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	httputil.JSON(w, code, body)
}
