package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/jumptrain/internal/adapters/repository"
	"github.com/okian/jumptrain/internal/domain/orchestrator"
)

type statusResponse struct {
	orchestrator.Status
	RecordCount int `json:"record_count"`
}

// handleStatus handles GET /status.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := s.deps.Status()
	writeJSON(w, http.StatusOK, statusResponse{Status: st, RecordCount: len(st.Records)})
}

// handleEvaluations handles GET /evaluations?participant_id=&session_id=&limit=.
func (s *Server) handleEvaluations(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_evaluations"
	q := repository.Query{
		ParticipantID: r.URL.Query().Get("participant_id"),
		SessionID:     r.URL.Query().Get("session_id"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		q.Limit = n
	}
	records, err := s.deps.Evaluations(r.Context(), q)
	switch {
	case errors.Is(err, repository.ErrInvalidLimit):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal", WrapKind(op, ErrUpstream, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})
}
