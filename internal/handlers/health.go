package handlers

import (
	"net/http"
	"time"

	domain "github.com/clearbrook/storefront/internal/domain"
	"github.com/clearbrook/storefront/internal/platform/httpx"
	"github.com/clearbrook/storefront/internal/services"
)

// HealthHandlers serves the liveness and readiness endpoints.
type HealthHandlers struct {
	system services.SystemService
}

// NewHealthHandlers constructs health handlers. The system service may be nil
// for a bare liveness-only configuration.
func NewHealthHandlers(system services.SystemService) *HealthHandlers {
	return &HealthHandlers{system: system}
}

// Healthz reports process liveness only.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type healthCheckPayload struct {
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

type healthReportPayload struct {
	Status      string                        `json:"status"`
	Version     string                        `json:"version,omitempty"`
	Environment string                        `json:"environment,omitempty"`
	UptimeSec   int64                         `json:"uptime_seconds"`
	Checks      map[string]healthCheckPayload `json:"checks"`
	GeneratedAt time.Time                     `json:"generated_at"`
}

// Readyz probes backing dependencies and reports aggregate readiness.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	report, err := h.system.HealthReport(r.Context())
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("health_unavailable", "health report could not be generated", http.StatusServiceUnavailable))
		return
	}

	payload := healthReportPayload{
		Status:      string(report.Status),
		Version:     report.Version,
		Environment: report.Environment,
		UptimeSec:   int64(report.Uptime / time.Second),
		Checks:      make(map[string]healthCheckPayload, len(report.Checks)),
		GeneratedAt: report.GeneratedAt,
	}
	for name, check := range report.Checks {
		payload.Checks[name] = healthCheckPayload{
			Status:    string(check.Status),
			Detail:    check.Detail,
			Error:     check.Error,
			LatencyMS: check.Latency.Milliseconds(),
		}
	}

	status := http.StatusOK
	if report.Status == domain.HealthStatusError {
		status = http.StatusServiceUnavailable
	}
	httpx.WriteJSON(w, status, payload)
}
