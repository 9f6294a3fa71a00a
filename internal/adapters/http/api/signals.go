package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/jumptrain/internal/domain/model"
)

// signalRequest mirrors the OpenAPI schema for POST /signals. External
// worlds and sensors report their callbacks here.
type signalRequest struct {
	Kind        model.SignalKind `json:"kind"`
	ProcedureID string           `json:"procedure_id"`
	Item        string           `json:"item"`
	Altitude    float64          `json:"altitude"`
	Milestone   int              `json:"milestone"`
}

// handleSignal handles POST /signals.
func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_signal"
	var req signalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if !req.Kind.Valid() {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, fmt.Errorf("unknown kind %q", req.Kind)))
		return
	}
	sig := model.Signal{
		Kind:        req.Kind,
		ProcedureID: req.ProcedureID,
		Item:        req.Item,
		Altitude:    req.Altitude,
		Milestone:   req.Milestone,
		At:          time.Now().UTC(),
	}
	if !s.deps.Enqueue(r.Context(), model.SignalInput(sig)) {
		writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}
