// Package completion arms and resolves the single wait of the active procedure.
//
// A wait is a state-plus-deadline record. Callbacks only mark it; the engine
// collects the result with Poll once per tick, so nothing re-enters the
// orchestrator from inside a callback.
package completion

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/jumptrain/internal/domain/model"
	"github.com/okian/jumptrain/internal/domain/route"
	"github.com/okian/jumptrain/pkg/logger"
	"github.com/okian/jumptrain/pkg/metrics"
)

// Phase of an armed wait.
type Phase string

// Wait phases.
const (
	PhasePrimary Phase = "primary"
	PhaseReload  Phase = "reload"
	PhaseDone    Phase = "done"
)

// Resolution is the outcome of a finished wait.
type Resolution struct {
	ProcedureID string
	Outcome     model.Outcome
	Reason      string
}

type wait struct {
	proc      model.Procedure
	phase     Phase
	countdown time.Time
	deadline  time.Time
	pausedAt  time.Time
	sub       *route.Subscription
	result    *Resolution
}

// Dispatcher owns at most one live wait.
type Dispatcher struct {
	stage     Stage
	presenter Presenter
	router    Router
	reloader  Reloader
	log       logger.Logger

	active *wait
}

// New creates a dispatcher.
func New(stage Stage, presenter Presenter, router Router, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		stage:     stage,
		presenter: presenter,
		router:    router,
		log:       logger.Discard(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.reloader == nil {
		d.reloader = stageReloader{d}
	}
	return d
}

// Arm cancels any outstanding wait and starts the wait strategy for p.
func (d *Dispatcher) Arm(ctx context.Context, p model.Procedure, now time.Time) {
	d.Cancel()
	w := &wait{proc: p, phase: PhasePrimary}
	if p.HasDeadline() {
		w.deadline = now.Add(p.TimeLimit)
	}
	// Active before any entry effect, so synchronous callbacks see this wait.
	d.active = w

	switch p.Condition {
	case model.ConditionNone:
		d.resolve(w, model.OutcomeSuccess, "immediate")
	case model.ConditionTime:
		w.countdown = now.Add(p.Params.Duration)
	case model.ConditionAnimation:
		d.effect(ctx, p, "play animation", d.stage.PlayAnimation(ctx, p.ID))
	case model.ConditionPoint:
		m, ok := d.router.MilestoneFor(p)
		if !ok {
			d.log.Warn(ctx, "point procedure without milestone resolves immediately", logger.String("procedure", p.ID))
			d.resolve(w, model.OutcomeSuccess, "no milestone")
			break
		}
		w.sub = d.router.AwaitMilestone(m, func(int) { d.primaryDone(ctx, w) })
	case model.ConditionItem:
		d.effect(ctx, p, "prompt equip", d.presenter.Prompt(ctx, p.ID, fmt.Sprintf("please equip %s", p.Params.Item)))
	case model.ConditionSitDown, model.ConditionStand:
		posture, _ := PostureFor(p.Condition)
		d.effect(ctx, p, "request posture", d.stage.RequestPosture(ctx, p.ID, posture))
	case model.ConditionSceneLoading:
		w.phase = PhaseReload
		d.reloader.BeginReload(ctx, p.ID)
	case model.ConditionPullCord:
		d.effect(ctx, p, "arm release", d.stage.ArmRelease(ctx, p.ID, p.Params.Altitude))
	case model.ConditionLanding:
		d.effect(ctx, p, "watch ground", d.stage.WatchGround(ctx, p.ID))
	}
}

// Signal feeds an external callback to the active wait. It reports whether
// the signal was consumed; signals for another procedure are discarded.
func (d *Dispatcher) Signal(ctx context.Context, sig model.Signal) bool {
	w := d.active
	if w == nil || w.result != nil {
		return false
	}
	if sig.ProcedureID != "" && sig.ProcedureID != w.proc.ID {
		d.log.Debug(ctx, "discarding signal for another procedure",
			logger.String("signal", string(sig.Kind)), logger.String("for", sig.ProcedureID), logger.String("active", w.proc.ID))
		return false
	}
	if w.phase == PhasePrimary && !w.deadline.IsZero() && w.pausedAt.IsZero() &&
		!sig.At.IsZero() && !sig.At.Before(w.deadline) {
		// Observed at or after the deadline: the deadline wins on the next poll.
		return false
	}

	p := w.proc
	switch sig.Kind {
	case model.SignalPlaybackFinished:
		if p.Condition == model.ConditionAnimation && w.phase == PhasePrimary {
			d.primaryDone(ctx, w)
			return true
		}
	case model.SignalPostureConfirmed:
		if _, ok := PostureFor(p.Condition); ok && w.phase == PhasePrimary {
			d.resolve(w, model.OutcomeSuccess, "posture confirmed")
			return true
		}
	case model.SignalWorldReady:
		if w.phase == PhaseReload {
			d.resolve(w, model.OutcomeSuccess, "world ready")
			return true
		}
	case model.SignalEquip:
		if p.Condition == model.ConditionItem && (sig.Item == "" || sig.Item == p.Params.Item) {
			d.resolve(w, model.OutcomeSuccess, "equipped")
			return true
		}
	case model.SignalCordReleased:
		if p.Condition == model.ConditionPullCord {
			d.resolve(w, model.OutcomeSuccess, "cord released")
			return true
		}
	case model.SignalAltitude:
		if p.Condition == model.ConditionPullCord && sig.Altitude <= p.Params.Altitude {
			d.effect(ctx, p, "deploy canopy", d.stage.DeployCanopy(ctx))
			d.resolve(w, model.OutcomeSuccess, "altitude auto-trigger")
			return true
		}
	case model.SignalGroundContact:
		if p.Condition == model.ConditionLanding {
			d.resolve(w, model.OutcomeSuccess, "ground contact")
			return true
		}
	}
	return false
}

// Poll returns the resolution of the active wait once it is available.
// A countdown and a deadline elapsing in the same poll resolve by whichever
// was due first; ties go to the countdown.
func (d *Dispatcher) Poll(ctx context.Context, now time.Time) (Resolution, bool) {
	w := d.active
	if w == nil {
		return Resolution{}, false
	}
	if w.result == nil && w.pausedAt.IsZero() && w.phase == PhasePrimary {
		countdownDue := !w.countdown.IsZero() && !now.Before(w.countdown)
		deadlineDue := !w.deadline.IsZero() && !now.Before(w.deadline)
		switch {
		case countdownDue && (!deadlineDue || !w.deadline.Before(w.countdown)):
			d.resolve(w, model.OutcomeSuccess, "countdown elapsed")
		case deadlineDue:
			if w.proc.Condition == model.ConditionItem {
				d.effect(ctx, w.proc, "force equip", d.stage.ForceEquip(ctx, w.proc.Params.Item))
			}
			d.resolve(w, model.OutcomeFail, "time limit")
		}
	}
	if w.result == nil {
		return Resolution{}, false
	}
	res := *w.result
	w.phase = PhaseDone
	w.sub.Cancel()
	d.active = nil
	return res, true
}

// Pause freezes countdown and deadline.
func (d *Dispatcher) Pause(now time.Time) {
	if w := d.active; w != nil && w.pausedAt.IsZero() {
		w.pausedAt = now
	}
}

// Resume shifts countdown and deadline by the paused duration.
func (d *Dispatcher) Resume(now time.Time) {
	w := d.active
	if w == nil || w.pausedAt.IsZero() {
		return
	}
	shift := now.Sub(w.pausedAt)
	if !w.countdown.IsZero() {
		w.countdown = w.countdown.Add(shift)
	}
	if !w.deadline.IsZero() {
		w.deadline = w.deadline.Add(shift)
	}
	w.pausedAt = time.Time{}
}

// Cancel tears down the active wait and its route subscription.
func (d *Dispatcher) Cancel() {
	if d.active == nil {
		return
	}
	d.active.sub.Cancel()
	d.active.phase = PhaseDone
	d.active = nil
}

// Active returns the procedure whose wait is armed.
func (d *Dispatcher) Active() (model.Procedure, bool) {
	if d.active == nil {
		return model.Procedure{}, false
	}
	return d.active.proc, true
}

// Phase returns the phase of the active wait, or PhaseDone when idle.
func (d *Dispatcher) Phase() Phase {
	if d.active == nil {
		return PhaseDone
	}
	return d.active.phase
}

// Reloading reports whether the active wait is waiting for the world.
func (d *Dispatcher) Reloading() bool {
	return d.active != nil && d.active.phase == PhaseReload && d.active.result == nil
}

func (d *Dispatcher) primaryDone(ctx context.Context, w *wait) {
	if d.active != w || w.result != nil || w.phase != PhasePrimary {
		return
	}
	if d.router.IsReloadGate(w.proc) {
		w.phase = PhaseReload
		d.reloader.BeginReload(ctx, w.proc.ID)
		return
	}
	d.resolve(w, model.OutcomeSuccess, "primary condition met")
}

func (d *Dispatcher) resolve(w *wait, outcome model.Outcome, reason string) {
	if w.result != nil {
		return
	}
	w.result = &Resolution{ProcedureID: w.proc.ID, Outcome: outcome, Reason: reason}
}

func (d *Dispatcher) effect(ctx context.Context, p model.Procedure, what string, err error) {
	if err == nil {
		return
	}
	d.log.Error(ctx, "completion side effect failed",
		logger.String("procedure", p.ID), logger.String("effect", what), logger.Error(err))
	metrics.RecordErrorByComponent("completion", what)
}

// stageReloader asks the stage for the reload directly when no reloader is
// injected.
type stageReloader struct{ d *Dispatcher }

func (r stageReloader) BeginReload(ctx context.Context, procedureID string) {
	r.d.effect(ctx, model.Procedure{ID: procedureID}, "reload world", r.d.stage.ReloadWorld(ctx, procedureID))
}
