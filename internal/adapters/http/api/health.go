package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/jumptrain/pkg/metrics"
)

type healthResponse struct {
	Status  string `json:"status"`
	Session string `json:"session_id"`
	State   string `json:"state"`
}

// handleHealth handles GET /healthz with a JSON liveness report.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := s.deps.Status()
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Session: st.SessionID, State: string(st.State)})
}

// metricsHandler serves the custom Prometheus registry.
func metricsHandler() http.Handler {
	return promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})
}
