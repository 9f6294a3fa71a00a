// Package skip jumps the cursor forward over intervening procedures, applying
// only their essential actions and recording each as skipped.
package skip

import (
	"context"
	"fmt"

	"github.com/okian/jumptrain/internal/domain/catalog"
	"github.com/okian/jumptrain/internal/domain/completion"
	"github.com/okian/jumptrain/internal/domain/model"
	"github.com/okian/jumptrain/pkg/logger"
	"github.com/okian/jumptrain/pkg/metrics"
)

// Essentials are the minimal idempotent side effects of skipped procedures.
type Essentials interface {
	ForceEquip(ctx context.Context, item string) error
	SetPosture(ctx context.Context, posture model.Posture) error
	DeployCanopy(ctx context.Context) error
}

// Recorder closes a skipped procedure: one evaluation record, one
// acknowledgement, and timeline completion when it was the last one.
type Recorder interface {
	Close(ctx context.Context, e catalog.Entry, outcome model.Outcome)
}

// Router is the part of the route synchronizer the executor drives.
type Router interface {
	MilestoneFor(p model.Procedure) (int, bool)
	IsReloadGate(p model.Procedure) bool
	Position() int
	ForceActorTo(ctx context.Context, index int)
	ReleaseGate(ctx context.Context, index int)
	Verify(ctx context.Context, expected int) bool
}

// Result of an Execute, Resume or retarget.
type Result struct {
	// Settled is true once every intervening procedure is processed; the
	// caller then enters Target. False means the skip is parked on a reload.
	Settled bool
	Target  catalog.Entry
}

type plan struct {
	target catalog.Entry
	next   int // flat position of the first unprocessed procedure
	parkOn string
}

// Executor runs skips. At most one skip is pending at a time.
type Executor struct {
	index      *catalog.Index
	router     Router
	essentials Essentials
	recorder   Recorder
	reloader   completion.Reloader
	log        logger.Logger

	pending *plan
}

// New creates an executor over the flattened catalog index.
func New(index *catalog.Index, router Router, essentials Essentials, recorder Recorder, reloader completion.Reloader, opts ...Option) *Executor {
	x := &Executor{
		index:      index,
		router:     router,
		essentials: essentials,
		recorder:   recorder,
		reloader:   reloader,
		log:        logger.Discard(),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Execute skips from the cursor to targetID. When includeFrom is set the
// procedure under the cursor is still open and is skipped too. A call while
// a skip is parked retargets it instead.
func (x *Executor) Execute(ctx context.Context, from model.Cursor, includeFrom bool, targetID string) (Result, error) {
	target, ok := x.index.Locate(targetID)
	if !ok {
		return Result{}, fmt.Errorf("skip to %q: %w", targetID, ErrUnknownTarget)
	}
	if x.pending != nil {
		return x.retarget(ctx, target)
	}
	start := x.index.Flat(from) + 1
	if includeFrom {
		start--
	}
	if target.Flat < start || (target.Flat == start && includeFrom) {
		return Result{}, fmt.Errorf("skip from %s to %q: %w", from, targetID, ErrStale)
	}
	x.pending = &plan{target: target, next: start}
	metrics.RecordSkip("started")
	x.log.Info(ctx, "skip started",
		logger.String("from", from.String()), logger.String("target", targetID),
		logger.Int("intervening", target.Flat-start))
	return x.run(ctx), nil
}

// Resume continues a parked skip once the world is ready again.
func (x *Executor) Resume(ctx context.Context) (Result, error) {
	if x.pending == nil {
		return Result{}, ErrNotParked
	}
	metrics.RecordSkip("resumed")
	x.log.Info(ctx, "skip resumed", logger.String("after", x.pending.parkOn), logger.String("target", x.pending.target.Procedure.ID))
	x.pending.parkOn = ""
	// A reload may have reset the actor; align it with the processed segment.
	if next, ok := x.index.EntryAt(x.pending.next); ok {
		if m, ok := x.expectedBefore(next.Cursor); ok {
			x.router.ForceActorTo(ctx, m)
		}
	}
	return x.run(ctx), nil
}

// Park holds target until the reload already started for gateID finishes;
// Resume then enters it. A call while a skip is parked retargets it instead.
func (x *Executor) Park(ctx context.Context, gateID string, target catalog.Entry) (Result, error) {
	if x.pending != nil {
		return x.retarget(ctx, target)
	}
	x.pending = &plan{target: target, next: target.Flat, parkOn: gateID}
	metrics.RecordSkip("parked")
	x.log.Info(ctx, "entry parked on world reload",
		logger.String("gate", gateID), logger.String("target", target.Procedure.ID))
	return Result{Target: target}, nil
}

// Parked reports whether a skip waits for a world reload.
func (x *Executor) Parked() bool { return x.pending != nil }

// Pending returns the target of the parked skip.
func (x *Executor) Pending() (catalog.Entry, bool) {
	if x.pending == nil {
		return catalog.Entry{}, false
	}
	return x.pending.target, true
}

// Abort drops a parked skip without processing the rest.
func (x *Executor) Abort(ctx context.Context) {
	if x.pending == nil {
		return
	}
	x.log.Info(ctx, "skip aborted", logger.String("target", x.pending.target.Procedure.ID))
	metrics.RecordSkip("aborted")
	x.pending = nil
}

// ApplyEssential applies the essential action of p.
func (x *Executor) ApplyEssential(ctx context.Context, p model.Procedure) {
	var err error
	switch p.Condition {
	case model.ConditionItem:
		err = x.essentials.ForceEquip(ctx, p.Params.Item)
	case model.ConditionPoint:
		if m, ok := x.router.MilestoneFor(p); ok {
			if x.router.Position() < m {
				x.router.ForceActorTo(ctx, m)
			} else {
				x.router.ReleaseGate(ctx, m)
			}
		}
	case model.ConditionSitDown, model.ConditionStand:
		posture, _ := completion.PostureFor(p.Condition)
		err = x.essentials.SetPosture(ctx, posture)
	case model.ConditionPullCord:
		err = x.essentials.DeployCanopy(ctx)
	}
	if err != nil {
		x.log.Error(ctx, "essential action failed", logger.String("procedure", p.ID), logger.Error(err))
		metrics.RecordErrorByComponent("skip", "essential")
	}
}

func (x *Executor) retarget(ctx context.Context, target catalog.Entry) (Result, error) {
	if target.Flat <= x.pending.target.Flat {
		return Result{}, fmt.Errorf("retarget to %q behind %q: %w",
			target.Procedure.ID, x.pending.target.Procedure.ID, ErrStale)
	}
	x.log.Info(ctx, "parked skip retargeted",
		logger.String("from", x.pending.target.Procedure.ID), logger.String("to", target.Procedure.ID))
	metrics.RecordSkip("retargeted")
	x.pending.target = target
	return Result{Target: target}, nil
}

func (x *Executor) run(ctx context.Context) Result {
	p := x.pending
	for p.next < p.target.Flat {
		e, _ := x.index.EntryAt(p.next)
		p.next++
		x.ApplyEssential(ctx, e.Procedure)
		x.recorder.Close(ctx, e, model.OutcomeSkipped)
		if x.router.IsReloadGate(e.Procedure) {
			p.parkOn = e.Procedure.ID
			metrics.RecordSkip("parked")
			x.log.Info(ctx, "skip parked on world reload",
				logger.String("gate", e.Procedure.ID), logger.String("target", p.target.Procedure.ID))
			x.reloader.BeginReload(ctx, e.Procedure.ID)
			return Result{Target: p.target}
		}
	}
	if m, ok := x.expectedBefore(p.target.Cursor); ok {
		x.router.Verify(ctx, m)
	}
	x.pending = nil
	metrics.RecordSkip("settled")
	x.log.Info(ctx, "skip settled", logger.String("target", p.target.Procedure.ID))
	return Result{Settled: true, Target: p.target}
}

// expectedBefore returns the milestone step-by-step progression leaves the
// actor at once every procedure before to is done: the furthest Point.
func (x *Executor) expectedBefore(to model.Cursor) (int, bool) {
	best, found := 0, false
	for _, e := range x.index.Between(model.Origin, to) {
		if e.Procedure.Condition != model.ConditionPoint {
			continue
		}
		if m, ok := x.router.MilestoneFor(e.Procedure); ok && (!found || m > best) {
			best, found = m, true
		}
	}
	return best, found
}
