package orchestrator

import (
	"context"
	"maps"

	"github.com/okian/jumptrain/internal/domain/clock"
	"github.com/okian/jumptrain/internal/domain/model"
	"github.com/okian/jumptrain/internal/domain/scoring"
	"github.com/okian/jumptrain/pkg/logger"
)

// Emitter carries outbound events to the command channel.
type Emitter interface {
	Emit(ctx context.Context, ev model.Event)
}

// Store receives a session's evaluation records at session end.
type Store interface {
	Save(ctx context.Context, participantID, sessionID string, records []model.EvaluationRecord) error
}

// Gate names the procedure an override is valid for: a step name, a
// condition, or (both empty) any active procedure.
type Gate struct {
	StepName  string
	Condition model.ConditionKind
}

func (g Gate) matches(p model.Procedure) bool {
	switch {
	case g.StepName != "":
		return p.StepName == g.StepName
	case g.Condition != "":
		return p.Condition == g.Condition
	}
	return true
}

// DefaultGates is the override gate table.
func DefaultGates() map[model.ForceKind]Gate {
	return map[model.ForceKind]Gate{
		model.ForceExit:          {StepName: "GoJump"},
		model.ForceMainParachute: {Condition: model.ConditionPullCord},
		model.ForceTrainingEnd:   {},
	}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEmitter sets the outbound event sink.
func WithEmitter(e Emitter) Option {
	return func(o *Orchestrator) {
		if e != nil {
			o.emitter = e
		}
	}
}

// WithStore sets the evaluation store.
func WithStore(s Store) Option {
	return func(o *Orchestrator) {
		o.store = s
	}
}

// WithScorer sets the scorer.
func WithScorer(s scoring.Scorer) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.scorer = s
		}
	}
}

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithParticipant sets the participant the session records belong to.
func WithParticipant(id string) Option {
	return func(o *Orchestrator) {
		o.participant = id
	}
}

// WithGates overrides entries of the override gate table.
func WithGates(gates map[model.ForceKind]Gate) Option {
	return func(o *Orchestrator) {
		maps.Copy(o.gates, gates)
	}
}

// WithOffsets overrides route offsets on top of the catalog's.
func WithOffsets(offsets map[string]int) Option {
	return func(o *Orchestrator) {
		maps.Copy(o.offsets, offsets)
	}
}

// WithSessionIDs sets the session id generator.
func WithSessionIDs(next func() string) Option {
	return func(o *Orchestrator) {
		if next != nil {
			o.newSessionID = next
		}
	}
}

type nopEmitter struct{}

func (nopEmitter) Emit(context.Context, model.Event) {}
