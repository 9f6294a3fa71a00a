package orchestrator

import (
	"context"
	"fmt"

	"github.com/okian/jumptrain/internal/domain/catalog"
	"github.com/okian/jumptrain/internal/domain/model"
	"github.com/okian/jumptrain/pkg/logger"
	"github.com/okian/jumptrain/pkg/metrics"
)

// StartTimeline enters the first procedure of timeline index. Out of range,
// current and earlier timelines are no-ops. When procedures before it are
// still unprocessed the jump goes through the skip path.
func (o *Orchestrator) StartTimeline(ctx context.Context, index int) error {
	defer o.publish()
	if o.state == StateSessionEnded {
		return ErrSessionEnded
	}
	first, ok := o.idx.FirstOf(index)
	if !ok {
		return fmt.Errorf("%w: index %d", ErrUnknownTimeline, index)
	}
	switch {
	case index == o.cursor.Timeline:
		return fmt.Errorf("%w: timeline %d", ErrAlreadyCurrent, index)
	case index < o.cursor.Timeline:
		return fmt.Errorf("%w: timeline %d behind cursor %s", ErrStaleCommand, index, o.cursor)
	}

	if o.skipper.Parked() || o.unprocessedBefore(first.Flat) {
		return o.RequestAdvance(ctx, first.Procedure.ID)
	}
	o.dispatcher.Cancel()
	o.enterWhenReady(ctx, first)
	return nil
}

// AdvanceToTimeline resolves a timeline id and starts it.
func (o *Orchestrator) AdvanceToTimeline(ctx context.Context, timelineID string) error {
	ti, ok := o.idx.TimelineIndex(timelineID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTimeline, timelineID)
	}
	return o.StartTimeline(ctx, ti)
}

// RequestAdvance moves the cursor to procedureID: a normal step for the next
// procedure of the current timeline, a skip for anything further ahead.
func (o *Orchestrator) RequestAdvance(ctx context.Context, procedureID string) error {
	defer o.publish()
	if o.state == StateSessionEnded {
		return ErrSessionEnded
	}
	target, ok := o.idx.Locate(procedureID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProcedure, procedureID)
	}

	if o.skipper.Parked() {
		if _, err := o.skipper.Execute(ctx, o.cursor, false, procedureID); err != nil {
			return fmt.Errorf("%w: %w", ErrStaleCommand, err)
		}
		return nil
	}

	cur, open := o.current()
	switch {
	case open && target.Flat == cur.Flat:
		return fmt.Errorf("%w: %q", ErrAlreadyCurrent, procedureID)
	case o.recorded[procedureID] || target.Flat <= o.idx.Flat(o.cursor):
		return fmt.Errorf("%w: %q at or before cursor %s", ErrStaleCommand, procedureID, o.cursor)
	}

	if open && target.Cursor.Timeline == cur.Cursor.Timeline && target.Flat == cur.Flat+1 &&
		!o.router.IsReloadGate(cur.Procedure) {
		o.leave(ctx, cur)
		o.close(ctx, cur, model.OutcomeSkipped)
		o.enter(ctx, target)
		return nil
	}

	if open {
		o.leave(ctx, cur)
	}
	o.state = StateSkipping
	res, err := o.skipper.Execute(ctx, o.cursor, open, procedureID)
	o.updateHold(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStaleCommand, err)
	}
	if res.Settled {
		o.settle(ctx, res.Target)
	}
	return nil
}

// CompleteProcedure finishes the active procedure with outcome and moves on:
// the next procedure of the timeline, idle after a timeline, or session end
// after the last timeline.
func (o *Orchestrator) CompleteProcedure(ctx context.Context, outcome model.Outcome) error {
	defer o.publish()
	cur, open := o.current()
	if !open {
		return ErrNoActiveProcedure
	}
	o.state = StateCompleting
	o.leave(ctx, cur)
	o.close(ctx, cur, outcome)
	o.moveOn(ctx, cur)
	return nil
}

// moveOn follows a closed procedure: the next one in its timeline, idle after
// the timeline or session end after the last one.
func (o *Orchestrator) moveOn(ctx context.Context, done catalog.Entry) {
	if !done.Last {
		next, _ := o.idx.Next(done.Cursor)
		o.enterWhenReady(ctx, next)
		return
	}
	if done.Cursor.Timeline == o.idx.TimelineCount()-1 {
		o.endSession(ctx, "curriculum complete")
		return
	}
	o.state = StateIdle
}

// ForceOverride completes the active procedure with the forced outcome when
// it matches the override's gate. Anything else is ignored.
func (o *Orchestrator) ForceOverride(ctx context.Context, kind model.ForceKind) error {
	defer o.publish()
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidOverride, kind)
	}
	if o.state == StateSessionEnded {
		return ErrSessionEnded
	}
	cur, open := o.current()
	gate := o.gates[kind]
	if !open || !gate.matches(cur.Procedure) {
		metrics.RecordOverride(string(kind), "ignored")
		return fmt.Errorf("%w: %s", ErrInvalidOverride, kind)
	}
	metrics.RecordOverride(string(kind), "applied")
	o.log.Info(ctx, "override applied", logger.String("override", string(kind)), logger.String("procedure", cur.Procedure.ID))

	if kind != model.ForceTrainingEnd && o.router.IsReloadGate(cur.Procedure) {
		o.forceThroughGate(ctx, cur)
		return nil
	}

	switch kind {
	case model.ForceMainParachute:
		if err := o.stage.DeployCanopy(ctx); err != nil {
			o.log.Error(ctx, "deploy canopy failed", logger.Error(err))
		}
	case model.ForceTrainingEnd:
		o.state = StateCompleting
		o.leave(ctx, cur)
		o.close(ctx, cur, model.OutcomeForced)
		o.endSession(ctx, "forced training end")
		return nil
	}
	return o.CompleteProcedure(ctx, model.OutcomeForced)
}

// forceThroughGate closes a reload gate procedure as forced. The actor is
// put at the gate and the world reloads before anything after it is entered.
func (o *Orchestrator) forceThroughGate(ctx context.Context, cur catalog.Entry) {
	o.state = StateCompleting
	o.leave(ctx, cur)
	o.skipper.ApplyEssential(ctx, cur.Procedure)
	o.close(ctx, cur, model.OutcomeForced)
	o.beginReload(ctx, cur.Procedure.ID)
	o.moveOn(ctx, cur)
}

// enterWhenReady enters e, or parks it behind a world reload in flight.
func (o *Orchestrator) enterWhenReady(ctx context.Context, e catalog.Entry) {
	if o.reloading == "" {
		o.enter(ctx, e)
		return
	}
	if _, err := o.skipper.Park(ctx, o.reloading, e); err != nil {
		o.log.Warn(ctx, "park behind reload failed", logger.String("procedure", e.Procedure.ID), logger.Error(err))
		return
	}
	o.state = StateSkipping
	o.updateHold(ctx)
}

// updateHold holds the actor while paused, skipping or ended.
func (o *Orchestrator) updateHold(ctx context.Context) {
	o.router.SetHold(ctx, o.paused || o.state == StateSkipping || o.state == StateSessionEnded)
}

// enter makes e the active procedure and arms its wait.
func (o *Orchestrator) enter(ctx context.Context, e catalog.Entry) {
	if e.Cursor.Before(o.cursor) {
		o.log.Error(ctx, "refusing to move cursor backwards",
			logger.String("cursor", o.cursor.String()), logger.String("target", e.Cursor.String()))
		return
	}
	o.state = StateEntering
	o.cursor = e.Cursor
	o.open = true
	o.log.Info(ctx, "entering procedure",
		logger.String("procedure", e.Procedure.ID), logger.String("step", e.Procedure.StepName),
		logger.String("condition", string(e.Procedure.Condition)), logger.String("cursor", e.Cursor.String()))
	if err := o.presenter.Show(ctx, e.Procedure); err != nil {
		o.log.Error(ctx, "show failed", logger.String("procedure", e.Procedure.ID), logger.Error(err))
	}
	now := o.clock.Now()
	o.dispatcher.Arm(ctx, e.Procedure, now)
	if o.paused {
		o.dispatcher.Pause(now)
	}
	o.state = StateWaiting
	o.updateHold(ctx)
}

// leave tears down the active wait and its presentation.
func (o *Orchestrator) leave(ctx context.Context, e catalog.Entry) {
	o.dispatcher.Cancel()
	if err := o.presenter.Hide(ctx, e.Procedure.ID); err != nil {
		o.log.Error(ctx, "hide failed", logger.String("procedure", e.Procedure.ID), logger.Error(err))
	}
}

// settle finishes a skip by entering its target, unless another reload has
// started meanwhile.
func (o *Orchestrator) settle(ctx context.Context, target catalog.Entry) {
	o.log.Info(ctx, "skip settled", logger.String("procedure", target.Procedure.ID))
	o.enterWhenReady(ctx, target)
}

// close records e exactly once, acknowledges it and completes its timeline
// when it was the last procedure there.
func (o *Orchestrator) close(ctx context.Context, e catalog.Entry, outcome model.Outcome) {
	p := e.Procedure
	if o.recorded[p.ID] {
		o.log.Warn(ctx, "procedure already recorded", logger.String("procedure", p.ID))
		return
	}
	if o.open && e.Cursor == o.cursor {
		o.open = false
	}
	if !e.Cursor.Before(o.cursor) {
		o.cursor = e.Cursor
	}
	if p.Condition == model.ConditionPoint {
		if m, ok := o.router.MilestoneFor(p); ok {
			o.router.ReleaseGate(ctx, m)
		}
	}

	res := o.scorer.Score(scoringInput(p, outcome))
	o.recorded[p.ID] = true
	o.records = append(o.records, model.EvaluationRecord{
		SessionID:     o.session,
		ParticipantID: o.participant,
		ProcedureID:   p.ID,
		EvaluationID:  p.EvaluationID,
		TimelineID:    p.TimelineID,
		Outcome:       outcome,
		Score:         res.Score,
		Weight:        res.Weight,
		RecordedAt:    o.clock.Now(),
	})
	metrics.RecordProcedure(string(outcome))
	o.log.Info(ctx, "procedure complete", logger.String("procedure", p.ID), logger.String("outcome", string(outcome)))
	o.emit(ctx, model.Event{Kind: model.EventProcedureComplete, ProcedureID: p.ID, TimelineID: p.TimelineID, Outcome: outcome})

	if outcome == model.OutcomeFail {
		o.failed[e.Cursor.Timeline] = true
	}
	if e.Last {
		o.completeTimeline(ctx, e.Cursor.Timeline)
	}
}

func (o *Orchestrator) completeTimeline(ctx context.Context, ti int) {
	if o.completed[ti] {
		return
	}
	o.completed[ti] = true
	t, _ := o.idx.Timeline(ti)
	success := !o.failed[ti]
	if o.state != StateSkipping {
		o.state = StateTimelineComplete
	}
	metrics.RecordTimelineComplete(success)
	o.log.Info(ctx, "timeline complete", logger.String("timeline", t.ID), logger.Bool("success", success))
	o.emit(ctx, model.Event{Kind: model.EventTimelineComplete, TimelineID: t.ID, Success: success})
}

// unprocessedBefore reports whether any procedure before flat is still open
// or not yet reached.
func (o *Orchestrator) unprocessedBefore(flat int) bool {
	next := o.idx.Flat(o.cursor) + 1
	if o.open {
		next--
	}
	return next < flat
}
