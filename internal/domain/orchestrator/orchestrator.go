// Package orchestrator is the training state machine. It owns the cursor,
// sequences timelines and procedures, arms completion waits, runs skips for
// out-of-order commands and reports progress on the command channel.
//
// An Orchestrator is not safe for concurrent use: every method runs on the
// single engine thread. Status is the only method other goroutines may call.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/okian/jumptrain/internal/domain/catalog"
	"github.com/okian/jumptrain/internal/domain/clock"
	"github.com/okian/jumptrain/internal/domain/completion"
	"github.com/okian/jumptrain/internal/domain/model"
	"github.com/okian/jumptrain/internal/domain/route"
	"github.com/okian/jumptrain/internal/domain/scoring"
	"github.com/okian/jumptrain/internal/domain/skip"
	"github.com/okian/jumptrain/pkg/logger"
	"github.com/okian/jumptrain/pkg/metrics"
)

// State of the engine.
type State string

// Engine states.
const (
	StateIdle             State = "idle"
	StateEntering         State = "entering"
	StateWaiting          State = "waiting"
	StateCompleting       State = "completing"
	StateSkipping         State = "skipping"
	StateTimelineComplete State = "timeline_complete"
	StateSessionEnded     State = "session_ended"
)

// Orchestrator is the central training state machine.
type Orchestrator struct {
	idx        *catalog.Index
	router     *route.Synchronizer
	dispatcher *completion.Dispatcher
	skipper    *skip.Executor
	stage      completion.Stage
	presenter  completion.Presenter

	emitter      Emitter
	store        Store
	scorer       scoring.Scorer
	clock        clock.Clock
	log          logger.Logger
	participant  string
	gates        map[model.ForceKind]Gate
	offsets      map[string]int
	newSessionID func() string

	session   string
	state     State
	paused    bool
	cursor    model.Cursor
	open      bool // procedure under the cursor entered and not yet recorded
	recorded  map[string]bool
	records   []model.EvaluationRecord
	failed    map[int]bool
	completed map[int]bool
	reloading string
	persisted bool

	status atomic.Pointer[Status]
}

// New builds the engine and its collaborators around a catalog.
// A missing or malformed catalog is fatal and reported as ErrCatalogUnavailable.
func New(cat catalog.Catalog, stage completion.Stage, presenter completion.Presenter, actor route.Actor, opts ...Option) (*Orchestrator, error) {
	if cat == nil {
		return nil, ErrCatalogUnavailable
	}
	idx, err := catalog.NewIndex(cat)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}

	o := &Orchestrator{
		idx:          idx,
		stage:        stage,
		presenter:    presenter,
		emitter:      nopEmitter{},
		scorer:       scoring.NewOutcomeScorer(),
		clock:        clock.Real{},
		log:          logger.Discard(),
		gates:        DefaultGates(),
		offsets:      cat.Offsets(),
		newSessionID: uuid.NewString,
	}
	if o.offsets == nil {
		o.offsets = map[string]int{}
	}
	for _, opt := range opts {
		opt(o)
	}

	o.router = route.New(actor, cat.Route(), route.WithOffsets(o.offsets), route.WithLogger(o.log.Named("route")))
	procs := make([]model.Procedure, 0, idx.Len())
	for i := range idx.Len() {
		e, _ := idx.EntryAt(i)
		procs = append(procs, e.Procedure)
	}
	if err := o.router.CheckGates(procs); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}

	o.dispatcher = completion.New(stage, presenter, o.router,
		completion.WithReloader(sceneLoader{o}), completion.WithLogger(o.log.Named("completion")))
	o.skipper = skip.New(idx, o.router, stage, closer{o}, sceneLoader{o}, skip.WithLogger(o.log.Named("skip")))

	o.reset()
	o.publish()
	return o, nil
}

// Handle processes one input from the handoff queue.
func (o *Orchestrator) Handle(ctx context.Context, in model.Input) error {
	switch {
	case in.Command != nil:
		return o.HandleCommand(ctx, *in.Command)
	case in.Signal != nil:
		return o.HandleSignal(ctx, *in.Signal)
	}
	return nil
}

// HandleCommand applies an instructor command. Errors are non-fatal: they
// describe why the command changed nothing.
func (o *Orchestrator) HandleCommand(ctx context.Context, cmd model.Command) error {
	var err error
	switch cmd.Kind {
	case model.CommandAdvanceProcedure:
		err = o.RequestAdvance(ctx, cmd.ProcedureID)
	case model.CommandAdvanceTimeline:
		err = o.AdvanceToTimeline(ctx, cmd.TimelineID)
	case model.CommandSetState:
		err = o.SetTrainingState(ctx, cmd.State)
	case model.CommandForceOverride:
		err = o.ForceOverride(ctx, cmd.Force)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Kind)
	}
	result := resultOf(err)
	metrics.RecordCommand(string(cmd.Kind), result)
	fields := []logger.Field{
		logger.String("command", string(cmd.Kind)), logger.String("id", cmd.ID),
		logger.String("result", result), logger.String("cursor", o.cursor.String()),
	}
	switch result {
	case "ok":
		o.log.Info(ctx, "command applied", fields...)
	case "stale", "current", "ended":
		o.log.Info(ctx, "command ignored", append(fields, logger.Error(err))...)
	default:
		o.log.Warn(ctx, "command rejected", append(fields, logger.Error(err))...)
		metrics.RecordErrorByComponent("orchestrator", result)
	}
	return err
}

// HandleSignal feeds an external callback to the engine.
func (o *Orchestrator) HandleSignal(ctx context.Context, sig model.Signal) error {
	if o.state == StateSessionEnded && sig.Kind != model.SignalWorldReady && sig.Kind != model.SignalMilestone {
		metrics.RecordSignal(string(sig.Kind), "ended")
		return ErrSessionEnded
	}
	consumed := false
	switch sig.Kind {
	case model.SignalMilestone:
		o.router.OnMilestone(ctx, sig.Milestone)
		consumed = true
	case model.SignalWorldReady:
		consumed = o.worldReady(ctx, sig)
	default:
		consumed = o.dispatcher.Signal(ctx, sig)
	}
	if consumed {
		metrics.RecordSignal(string(sig.Kind), "consumed")
	} else {
		metrics.RecordSignal(string(sig.Kind), "ignored")
	}
	o.publish()
	return nil
}

// Tick collects resolved waits and completes their procedures. A chain of
// immediately resolving procedures settles within one tick.
func (o *Orchestrator) Tick(ctx context.Context) {
	if o.paused || o.state == StateSessionEnded {
		return
	}
	for range o.idx.Len() + 1 {
		res, ok := o.dispatcher.Poll(ctx, o.clock.Now())
		if !ok {
			break
		}
		cur, open := o.current()
		if !open || cur.Procedure.ID != res.ProcedureID {
			o.log.Warn(ctx, "dropping resolution for a procedure that is no longer current",
				logger.String("resolved", res.ProcedureID), logger.String("cursor", o.cursor.String()))
			continue
		}
		o.log.Debug(ctx, "wait resolved", logger.String("procedure", res.ProcedureID),
			logger.String("outcome", string(res.Outcome)), logger.String("reason", res.Reason))
		if err := o.CompleteProcedure(ctx, res.Outcome); err != nil {
			o.log.Error(ctx, "complete procedure failed", logger.Error(err))
		}
	}
}

// Cursor returns the current cursor.
func (o *Orchestrator) Cursor() model.Cursor { return o.cursor }

// State returns the engine state.
func (o *Orchestrator) State() State { return o.state }

// Session returns the session id.
func (o *Orchestrator) Session() string { return o.session }

// Records returns a copy of the session's evaluation records.
func (o *Orchestrator) Records() []model.EvaluationRecord {
	out := make([]model.EvaluationRecord, len(o.records))
	copy(out, o.records)
	return out
}

// Active returns the procedure awaiting completion.
func (o *Orchestrator) Active() (model.Procedure, bool) {
	e, ok := o.current()
	return e.Procedure, ok
}

func (o *Orchestrator) current() (catalog.Entry, bool) {
	if !o.open {
		return catalog.Entry{}, false
	}
	return o.idx.At(o.cursor)
}

func (o *Orchestrator) worldReady(ctx context.Context, sig model.Signal) bool {
	consumed := false
	if o.reloading != "" {
		o.log.Info(ctx, "world ready", logger.String("reload_for", o.reloading))
		o.reloading = ""
		o.emit(ctx, model.Event{Kind: model.EventSceneState, Scene: model.SceneComplete})
		consumed = true
	}
	if o.state == StateSessionEnded {
		return consumed
	}
	if o.skipper.Parked() {
		res, err := o.skipper.Resume(ctx)
		if err != nil {
			o.log.Error(ctx, "resume skip failed", logger.Error(err))
			return consumed
		}
		if res.Settled {
			o.settle(ctx, res.Target)
		}
		return true
	}
	return o.dispatcher.Signal(ctx, sig) || consumed
}

func (o *Orchestrator) emit(ctx context.Context, ev model.Event) {
	ev.SessionID = o.session
	ev.At = o.clock.Now()
	o.emitter.Emit(ctx, ev)
	metrics.RecordEventEmitted(string(ev.Kind))
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrStaleCommand):
		return "stale"
	case errors.Is(err, ErrAlreadyCurrent):
		return "current"
	case errors.Is(err, ErrSessionEnded):
		return "ended"
	case errors.Is(err, ErrUnknownProcedure), errors.Is(err, ErrUnknownTimeline):
		return "unknown"
	case errors.Is(err, ErrInvalidOverride), errors.Is(err, ErrInvalidState), errors.Is(err, ErrUnknownCommand):
		return "invalid"
	}
	return "error"
}

// closer adapts the orchestrator to skip.Recorder.
type closer struct{ o *Orchestrator }

func (c closer) Close(ctx context.Context, e catalog.Entry, outcome model.Outcome) {
	c.o.close(ctx, e, outcome)
}

// sceneLoader adapts the orchestrator to completion.Reloader.
type sceneLoader struct{ o *Orchestrator }

func (s sceneLoader) BeginReload(ctx context.Context, procedureID string) {
	s.o.beginReload(ctx, procedureID)
}
