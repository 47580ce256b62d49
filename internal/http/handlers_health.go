package httpapi

import (
	"net/http"
	"time"
)

const metricsWindow = 24 * time.Hour

// handleHealth reports the daemon's moving parts in one place: store
// reachability, schema version, which backend is active, breaker state,
// live connections and uptime.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if err := s.store.Health(); err != nil {
		status = "degraded"
	}

	resp := map[string]any{
		"status":         status,
		"backend":        s.recorder.State().String(),
		"uptime_seconds": time.Since(s.startedAt).Seconds(),
	}
	if sv, ok := s.store.(schemaVersioner); ok {
		if v, err := sv.SchemaVersion(); err == nil {
			resp["schema_version"] = v
		}
	}
	if br, ok := s.store.(breakerReporter); ok {
		resp["circuit_breaker"] = br.CircuitBreakerState()
	}
	if s.conns != nil {
		resp["connections"] = s.conns.ClientCount()
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// handleMetricsSummary serves the rolling 24h aggregate view.
func (s *Service) handleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.store.MetricsSummary(metricsWindow)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
