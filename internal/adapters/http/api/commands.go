package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/okian/jumptrain/internal/domain/model"
	"github.com/okian/jumptrain/pkg/logger"
	"github.com/okian/jumptrain/pkg/metrics"
)

// commandRequest mirrors the OpenAPI schema for POST /commands.
type commandRequest struct {
	ID          string              `json:"id"`
	Kind        model.CommandKind   `json:"kind"`
	ProcedureID string              `json:"procedure_id"`
	TimelineID  string              `json:"timeline_id"`
	State       model.TrainingState `json:"state"`
	Force       model.ForceKind     `json:"force"`
}

func (c commandRequest) validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return errors.New("missing id")
	}
	switch c.Kind {
	case model.CommandAdvanceProcedure:
		if strings.TrimSpace(c.ProcedureID) == "" {
			return errors.New("missing procedure_id")
		}
	case model.CommandAdvanceTimeline:
		if strings.TrimSpace(c.TimelineID) == "" {
			return errors.New("missing timeline_id")
		}
	case model.CommandSetState:
		if !c.State.Valid() {
			return fmt.Errorf("invalid state %q", c.State)
		}
	case model.CommandForceOverride:
		if !c.Force.Valid() {
			return fmt.Errorf("invalid force %q", c.Force)
		}
	default:
		return fmt.Errorf("unknown kind %q", c.Kind)
	}
	return nil
}

func (c commandRequest) command(now time.Time) model.Command {
	return model.Command{
		ID:          c.ID,
		Kind:        c.Kind,
		ProcedureID: c.ProcedureID,
		TimelineID:  c.TimelineID,
		State:       c.State,
		Force:       c.Force,
		ReceivedAt:  now,
	}
}

// handleCommand handles POST /commands. Commands are applied asynchronously
// by the engine; the outcome arrives on the event feed.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_command"
	if s.limiter != nil && !s.limiter.Allow() {
		metrics.RecordCommand("any", "rate_limited")
		writeError(w, http.StatusTooManyRequests, "rate_limited", NewKind(op, ErrRateLimited))
		return
	}
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	// Idempotency check - mark as seen first
	if s.deps.SeenAndRecord(r.Context(), req.ID) {
		metrics.RecordCommandDuplicate()
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
		return
	}

	if ok := s.deps.Enqueue(r.Context(), model.CommandInput(req.command(time.Now().UTC()))); !ok {
		// Rollback the "seen" status so the instructor can retry the same id.
		s.deps.Unrecord(r.Context(), req.ID)
		s.log.Warn(r.Context(), "command dropped, input queue full", logger.String("id", req.ID))
		writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}
