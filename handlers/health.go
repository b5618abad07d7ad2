package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"checkout-3ds-api/models"
	"checkout-3ds-api/utils"
)

const healthCheckTimeout = 500 * time.Millisecond

// Pinger is a dependency the health check can ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthHandler struct {
	checks map[string]Pinger
}

func NewHealthHandler(checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Health pings every dependency. Any failure reports the service as
// degraded with 503.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := models.HealthResponse{Status: "ok", Checks: make(map[string]string, len(names))}
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := h.checks[name].Ping(ctx)
		cancel()

		if err != nil {
			resp.Status = "degraded"
			resp.Checks[name] = "error"
			continue
		}
		resp.Checks[name] = "connected"
	}
	resp.Duration = time.Since(start).String()

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	utils.SendJSON(w, status, resp)
}
