package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/datamed/datamed-api/internal/core"
)

const healthCheckTimeout = 2 * time.Second

// HealthHandlers serves the readiness/liveness probe.
type HealthHandlers struct {
	// Checks maps a dependency name to its probe; any failure reports 503.
	Checks map[string]core.HealthChecker
	Logger *slog.Logger
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health returns 200 when every dependency answers, 503 otherwise.
// GET|HEAD /healthz.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	code := http.StatusOK

	if len(h.Checks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		resp.Checks = make(map[string]string, len(h.Checks))
		for name, c := range h.Checks {
			if err := c.Health(ctx); err != nil {
				h.logger().WarnContext(ctx, "health check failed", "check", name, "error", err)
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		return
	}
	WriteJSON(w, code, resp)
}

func (h *HealthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
