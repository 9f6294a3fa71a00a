package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/jumptrain/internal/domain/model"
	"github.com/okian/jumptrain/internal/domain/scoring"
	"github.com/okian/jumptrain/pkg/logger"
	"github.com/okian/jumptrain/pkg/metrics"
)

// SetTrainingState applies an instructor state change and acknowledges it.
//
//	Ready   new session, cursor back to origin (the only backwards move)
//	Start   enter the first timeline
//	Pause   freeze waits and hold the actor
//	Resume  continue from where Pause left off
//	End     end the session and hand records to the store
func (o *Orchestrator) SetTrainingState(ctx context.Context, st model.TrainingState) error {
	defer o.publish()
	if !st.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidState, st)
	}
	if o.state == StateSessionEnded && st != model.StateReady && st != model.StateEnd {
		return ErrSessionEnded
	}
	now := o.clock.Now()

	switch st {
	case model.StateReady:
		if len(o.records) > 0 && !o.persisted {
			o.persist(ctx)
		}
		o.abandon(ctx)
		o.reset()
		o.router.Reset(ctx)
		metrics.RecordSession("ready")
		o.log.Info(ctx, "session ready", logger.String("session", o.session))
	case model.StateStart:
		if o.cursor.IsOrigin() && !o.open && !o.skipper.Parked() {
			metrics.RecordSession("started")
			if err := o.StartTimeline(ctx, 0); err != nil {
				return err
			}
		}
		if o.paused {
			o.resume(now)
		}
	case model.StatePause:
		if !o.paused {
			o.paused = true
			o.dispatcher.Pause(now)
		}
	case model.StateResume:
		o.resume(now)
	case model.StateEnd:
		o.endSession(ctx, "instructor")
	}
	o.updateHold(ctx)

	o.emit(ctx, model.Event{Kind: model.EventTrainingStateAck, State: st})
	return nil
}

func (o *Orchestrator) resume(now time.Time) {
	if !o.paused {
		return
	}
	o.paused = false
	o.dispatcher.Resume(now)
}

// reset starts a fresh session at the origin. A reload in flight belongs to
// the world, not the session, and stays tracked until the world is ready.
func (o *Orchestrator) reset() {
	o.session = o.newSessionID()
	o.state = StateIdle
	o.paused = false
	o.cursor = model.Origin
	o.open = false
	o.recorded = map[string]bool{}
	o.records = nil
	o.failed = map[int]bool{}
	o.completed = map[int]bool{}
	o.persisted = false
}

// abandon tears down whatever is in flight without recording anything.
func (o *Orchestrator) abandon(ctx context.Context) {
	o.skipper.Abort(ctx)
	if cur, open := o.current(); open {
		o.leave(ctx, cur)
		o.open = false
	}
	o.dispatcher.Cancel()
}

// endSession moves to SessionEnded and persists the records.
func (o *Orchestrator) endSession(ctx context.Context, reason string) {
	if o.state == StateSessionEnded {
		return
	}
	o.abandon(ctx)
	o.state = StateSessionEnded
	o.updateHold(ctx)
	metrics.RecordSession("ended")
	o.log.Info(ctx, "session ended", logger.String("session", o.session),
		logger.String("reason", reason), logger.Int("records", len(o.records)))
	o.persist(ctx)
}

func (o *Orchestrator) persist(ctx context.Context) {
	if o.store == nil {
		o.persisted = true
		return
	}
	if err := o.store.Save(ctx, o.participant, o.session, o.Records()); err != nil {
		o.log.Error(ctx, "persist evaluations failed", logger.String("session", o.session), logger.Error(err))
		metrics.RecordEvaluationsPersisted("error")
		return
	}
	o.persisted = true
	metrics.RecordEvaluationsPersisted("ok")
}

// beginReload announces and triggers a world reload. A reload already in
// flight is not triggered twice.
func (o *Orchestrator) beginReload(ctx context.Context, procedureID string) {
	if o.reloading != "" {
		o.log.Debug(ctx, "reload already in flight", logger.String("reload_for", o.reloading), logger.String("procedure", procedureID))
		return
	}
	o.reloading = procedureID
	metrics.RecordSceneReload()
	o.emit(ctx, model.Event{Kind: model.EventSceneState, Scene: model.SceneLoading, ProcedureID: procedureID})
	if err := o.stage.ReloadWorld(ctx, procedureID); err != nil {
		o.log.Error(ctx, "reload world failed", logger.String("procedure", procedureID), logger.Error(err))
		metrics.RecordErrorByComponent("orchestrator", "reload")
	}
}

func scoringInput(p model.Procedure, outcome model.Outcome) scoring.Input {
	return scoring.Input{Procedure: p, Outcome: outcome}
}
