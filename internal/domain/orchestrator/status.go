package orchestrator

import (
	"time"

	"github.com/okian/jumptrain/internal/domain/model"
)

// Status is a read-only snapshot of the engine, safe to read from any goroutine.
type Status struct {
	SessionID     string                   `json:"session_id"`
	ParticipantID string                   `json:"participant_id"`
	State         State                    `json:"state"`
	Paused        bool                     `json:"paused"`
	Cursor        model.Cursor             `json:"cursor"`
	Active        string                   `json:"active_procedure,omitempty"`
	Timeline      string                   `json:"timeline,omitempty"`
	Phase         string                   `json:"phase,omitempty"`
	PendingTarget string                   `json:"pending_target,omitempty"`
	Reloading     string                   `json:"reloading,omitempty"`
	Milestone     int                      `json:"actor_milestone"`
	ActorHeld     bool                     `json:"actor_held"`
	Records       []model.EvaluationRecord `json:"-"`
	UpdatedAt     time.Time                `json:"updated_at"`
}

// Status returns the latest published snapshot.
func (o *Orchestrator) Status() Status {
	if s := o.status.Load(); s != nil {
		return *s
	}
	return Status{}
}

// publish stores a snapshot of the engine.
func (o *Orchestrator) publish() {
	s := &Status{
		SessionID:     o.session,
		ParticipantID: o.participant,
		State:         o.state,
		Paused:        o.paused,
		Cursor:        o.cursor,
		Reloading:     o.reloading,
		Milestone:     o.router.Position(),
		ActorHeld:     o.router.Held(),
		// Records only grow by append; a clipped slice never sees later writes.
		Records:   o.records[:len(o.records):len(o.records)],
		UpdatedAt: o.clock.Now(),
	}
	if cur, ok := o.current(); ok {
		s.Active = cur.Procedure.ID
		s.Timeline = cur.Procedure.TimelineID
		s.Phase = string(o.dispatcher.Phase())
	}
	if t, ok := o.skipper.Pending(); ok {
		s.PendingTarget = t.Procedure.ID
	}
	o.status.Store(s)
}
