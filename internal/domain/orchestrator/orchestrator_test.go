package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/okian/jumptrain/internal/domain/catalog"
	"github.com/okian/jumptrain/internal/domain/clock"
	"github.com/okian/jumptrain/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type calls struct{ log []string }

func (c *calls) add(format string, args ...any) error {
	c.log = append(c.log, fmt.Sprintf(format, args...))
	return nil
}

func (c *calls) count(entry string) int {
	n := 0
	for _, l := range c.log {
		if l == entry {
			n++
		}
	}
	return n
}

type stage struct{ *calls }

func (s stage) PlayAnimation(_ context.Context, id string) error { return s.add("play %s", id) }
func (s stage) RequestPosture(_ context.Context, id string, p model.Posture) error {
	return s.add("posture %s %s", id, p)
}
func (s stage) ArmRelease(_ context.Context, id string, alt float64) error {
	return s.add("arm %s %.0f", id, alt)
}
func (s stage) WatchGround(_ context.Context, id string) error  { return s.add("ground %s", id) }
func (s stage) ReloadWorld(_ context.Context, id string) error  { return s.add("reload %s", id) }
func (s stage) ForceEquip(_ context.Context, item string) error { return s.add("force-equip %s", item) }
func (s stage) SetPosture(_ context.Context, p model.Posture) error {
	return s.add("set-posture %s", p)
}
func (s stage) DeployCanopy(context.Context) error { return s.add("deploy") }

type presenter struct{ *calls }

func (p presenter) Show(_ context.Context, proc model.Procedure) error {
	return p.add("show %s", proc.ID)
}
func (p presenter) Hide(_ context.Context, id string) error { return p.add("hide %s", id) }
func (p presenter) Prompt(_ context.Context, id, msg string) error {
	return p.add("prompt %s %s", id, msg)
}

type actor struct {
	teleports []int
	held      bool
}

func (a *actor) Teleport(_ context.Context, m int) error {
	a.teleports = append(a.teleports, m)
	return nil
}

func (a *actor) Hold(_ context.Context, hold bool) error {
	a.held = hold
	return nil
}

type events struct{ got []model.Event }

func (e *events) Emit(_ context.Context, ev model.Event) { e.got = append(e.got, ev) }

func (e *events) of(kind model.EventKind) []model.Event {
	var out []model.Event
	for _, ev := range e.got {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

type store struct {
	saved map[string][]model.EvaluationRecord
	err   error
}

func (s *store) Save(_ context.Context, _, sessionID string, records []model.EvaluationRecord) error {
	if s.err != nil {
		return s.err
	}
	s.saved[sessionID] = records
	return nil
}

type harness struct {
	o      *Orchestrator
	clock  *clock.Manual
	calls  *calls
	actor  *actor
	events *events
	store  *store
}

func sessions(ids ...string) func() string {
	i := 0
	return func() string {
		id := ids[i%len(ids)]
		i++
		return id
	}
}

// A=[P0 None, P1 Time 2s, P2 Point gate], B=[P3 Item]
func sceneCatalog() *catalog.Static {
	return catalog.NewStatic("scene", model.Route{Anchor: 8, Length: 12, Gates: []int{8}},
		[]model.Timeline{{ID: "A"}, {ID: "B"}},
		map[string][]model.Procedure{
			"A": {
				{ID: "P0", StepName: "brief", Condition: model.ConditionNone, EvaluationID: "P0"},
				{ID: "P1", StepName: "climb", Condition: model.ConditionTime, Params: model.Params{Duration: 2 * time.Second}, EvaluationID: "P1"},
				{ID: "P2", StepName: "GoJump", Condition: model.ConditionPoint, EvaluationID: "P2"},
			},
			"B": {
				{ID: "P3", StepName: "equip", Condition: model.ConditionItem, Params: model.Params{Item: "helmet"},
					Failure: model.FailureTimeLimit, TimeLimit: 30 * time.Second, EvaluationID: "P3"},
			},
		})
}

func newHarness(cat catalog.Catalog) harness {
	h := harness{
		clock:  clock.NewManual(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)),
		calls:  &calls{},
		actor:  &actor{},
		events: &events{},
		store:  &store{saved: map[string][]model.EvaluationRecord{}},
	}
	o, err := New(cat, stage{h.calls}, presenter{h.calls}, h.actor,
		WithClock(h.clock), WithEmitter(h.events), WithStore(h.store),
		WithParticipant("jumper-1"), WithSessionIDs(sessions("s1", "s2", "s3")))
	So(err, ShouldBeNil)
	h.o = o
	return h
}

func outcomes(records []model.EvaluationRecord) map[string]model.Outcome {
	out := map[string]model.Outcome{}
	for _, r := range records {
		out[r.ProcedureID] = r.Outcome
	}
	return out
}

func TestNew(t *testing.T) {
	Convey("New rejects an unusable catalog", t, func() {
		_, err := New(nil, stage{&calls{}}, presenter{&calls{}}, &actor{})
		So(errors.Is(err, ErrCatalogUnavailable), ShouldBeTrue)

		empty := catalog.NewStatic("empty", model.Route{}, nil, nil)
		_, err = New(empty, stage{&calls{}}, presenter{&calls{}}, &actor{})
		So(errors.Is(err, ErrCatalogUnavailable), ShouldBeTrue)
	})

	Convey("New rejects a gate without a Point procedure", t, func() {
		c := catalog.NewStatic("gates", model.Route{Anchor: 8, Length: 12, Gates: []int{3}},
			[]model.Timeline{{ID: "A"}},
			map[string][]model.Procedure{"A": {{ID: "P0", Condition: model.ConditionNone}}})
		_, err := New(c, stage{&calls{}}, presenter{&calls{}}, &actor{})
		So(errors.Is(err, ErrCatalogUnavailable), ShouldBeTrue)
	})

	Convey("A new engine waits at the origin", t, func() {
		h := newHarness(sceneCatalog())
		So(h.o.Cursor(), ShouldResemble, model.Origin)
		So(h.o.State(), ShouldEqual, StateIdle)
		So(h.o.Session(), ShouldEqual, "s1")
		_, ok := h.o.Active()
		So(ok, ShouldBeFalse)
		So(h.o.Status().SessionID, ShouldEqual, "s1")
	})
}

func TestOrchestrator_StepByStep(t *testing.T) {
	Convey("Given a session that runs every procedure in order", t, func() {
		ctx := context.Background()
		h := newHarness(sceneCatalog())
		o := h.o

		So(o.SetTrainingState(ctx, model.StateStart), ShouldBeNil)
		So(o.Cursor(), ShouldResemble, model.Cursor{Timeline: 0, Procedure: 0})
		So(o.Status().Active, ShouldEqual, "P0")

		Convey("None resolves on the next tick and the countdown runs", func() {
			o.Tick(ctx)
			So(o.Cursor(), ShouldResemble, model.Cursor{Timeline: 0, Procedure: 1})

			h.clock.Advance(1999 * time.Millisecond)
			o.Tick(ctx)
			So(o.Cursor().Procedure, ShouldEqual, 1)

			h.clock.Advance(time.Millisecond)
			o.Tick(ctx)
			So(o.Cursor(), ShouldResemble, model.Cursor{Timeline: 0, Procedure: 2})
			So(o.Status().Phase, ShouldEqual, "primary")

			Convey("The gate reloads the world before the timeline completes", func() {
				So(o.HandleSignal(ctx, model.Signal{Kind: model.SignalMilestone, Milestone: 8}), ShouldBeNil)
				So(h.calls.count("reload P2"), ShouldEqual, 1)
				So(o.Status().Reloading, ShouldEqual, "P2")
				So(h.actor.held, ShouldBeTrue)
				loading := h.events.of(model.EventSceneState)
				So(loading, ShouldHaveLength, 1)
				So(loading[0].Scene, ShouldEqual, model.SceneLoading)

				o.Tick(ctx)
				So(o.Cursor().Procedure, ShouldEqual, 2)

				So(o.HandleSignal(ctx, model.Signal{Kind: model.SignalWorldReady}), ShouldBeNil)
				o.Tick(ctx)
				So(o.State(), ShouldEqual, StateIdle)
				So(h.actor.held, ShouldBeFalse)

				done := h.events.of(model.EventTimelineComplete)
				So(done, ShouldHaveLength, 1)
				So(done[0].TimelineID, ShouldEqual, "A")
				So(done[0].Success, ShouldBeTrue)

				Convey("The last timeline ends the session and persists the records", func() {
					So(o.AdvanceToTimeline(ctx, "B"), ShouldBeNil)
					So(h.calls.log, ShouldContain, "prompt P3 please equip helmet")
					So(o.HandleSignal(ctx, model.Signal{Kind: model.SignalEquip, Item: "helmet", At: h.clock.Now()}), ShouldBeNil)
					o.Tick(ctx)

					So(o.State(), ShouldEqual, StateSessionEnded)
					saved := h.store.saved["s1"]
					So(saved, ShouldHaveLength, 4)
					So(outcomes(saved), ShouldResemble, map[string]model.Outcome{
						"P0": model.OutcomeSuccess, "P1": model.OutcomeSuccess,
						"P2": model.OutcomeSuccess, "P3": model.OutcomeSuccess,
					})
					for _, r := range saved {
						So(r.ParticipantID, ShouldEqual, "jumper-1")
						So(r.SessionID, ShouldEqual, "s1")
					}
					So(errors.Is(o.RequestAdvance(ctx, "P3"), ErrSessionEnded), ShouldBeTrue)
				})
			})
		})

		Convey("Acknowledgements carry the session id", func() {
			acks := h.events.of(model.EventTrainingStateAck)
			So(acks, ShouldHaveLength, 1)
			So(acks[0].State, ShouldEqual, model.StateStart)
			So(acks[0].SessionID, ShouldEqual, "s1")
		})
	})
}

func TestOrchestrator_SceneBoundarySkip(t *testing.T) {
	Convey("Given the cursor on P0 and an advance to P3 across a gate", t, func() {
		ctx := context.Background()
		h := newHarness(sceneCatalog())
		o := h.o
		So(o.SetTrainingState(ctx, model.StateStart), ShouldBeNil)
		So(o.Cursor(), ShouldResemble, model.Cursor{Timeline: 0, Procedure: 0})

		So(o.RequestAdvance(ctx, "P3"), ShouldBeNil)

		Convey("Intervening procedures are skipped and the skip parks on the reload", func() {
			So(outcomes(o.Records()), ShouldResemble, map[string]model.Outcome{
				"P0": model.OutcomeSkipped, "P1": model.OutcomeSkipped, "P2": model.OutcomeSkipped,
			})
			So(h.calls.count("reload P2"), ShouldEqual, 1)
			So(o.State(), ShouldEqual, StateSkipping)
			So(o.Status().PendingTarget, ShouldEqual, "P3")
			_, active := o.Active()
			So(active, ShouldBeFalse)
			So(h.actor.held, ShouldBeTrue)

			done := h.events.of(model.EventTimelineComplete)
			So(done, ShouldHaveLength, 1)
			So(done[0].Success, ShouldBeTrue)
		})

		Convey("World ready resumes the skip, forces the actor and enters P3", func() {
			before := len(h.actor.teleports)
			So(o.HandleSignal(ctx, model.Signal{Kind: model.SignalWorldReady}), ShouldBeNil)

			So(o.Cursor(), ShouldResemble, model.Cursor{Timeline: 1, Procedure: 0})
			p, ok := o.Active()
			So(ok, ShouldBeTrue)
			So(p.ID, ShouldEqual, "P3")
			So(len(h.actor.teleports), ShouldBeGreaterThan, before)
			So(h.actor.teleports[len(h.actor.teleports)-1], ShouldEqual, 8)
			So(h.actor.held, ShouldBeFalse)

			scenes := h.events.of(model.EventSceneState)
			So(scenes, ShouldHaveLength, 2)
			So(scenes[1].Scene, ShouldEqual, model.SceneComplete)
		})

		Convey("Ready before the world is back still closes the reload", func() {
			So(o.SetTrainingState(ctx, model.StateReady), ShouldBeNil)
			So(o.Session(), ShouldEqual, "s2")
			So(o.Status().PendingTarget, ShouldBeEmpty)
			So(o.Status().Reloading, ShouldEqual, "P2")

			So(o.HandleSignal(ctx, model.Signal{Kind: model.SignalWorldReady}), ShouldBeNil)
			scenes := h.events.of(model.EventSceneState)
			So(scenes, ShouldHaveLength, 2)
			So(scenes[0].Scene, ShouldEqual, model.SceneLoading)
			So(scenes[0].SessionID, ShouldEqual, "s1")
			So(scenes[1].Scene, ShouldEqual, model.SceneComplete)
			So(scenes[1].SessionID, ShouldEqual, "s2")
			So(o.Status().Reloading, ShouldBeEmpty)
			So(o.State(), ShouldEqual, StateIdle)
			So(h.actor.held, ShouldBeFalse)
		})

		Convey("Skipped procedures fire no real entry side effects", func() {
			So(o.HandleSignal(ctx, model.Signal{Kind: model.SignalWorldReady}), ShouldBeNil)
			So(h.calls.count("show P1"), ShouldEqual, 0)
			So(h.calls.count("show P2"), ShouldEqual, 0)
			So(h.calls.count("show P0"), ShouldEqual, 1)
			So(h.calls.count("show P3"), ShouldEqual, 1)
			So(h.calls.count("prompt P3 please equip helmet"), ShouldEqual, 1)
			o.Tick(ctx)
			So(h.calls.count("show P3"), ShouldEqual, 1)
		})

		Convey("An earlier target while parked is stale", func() {
			err := o.RequestAdvance(ctx, "P1")
			So(errors.Is(err, ErrStaleCommand), ShouldBeTrue)
			So(o.Status().PendingTarget, ShouldEqual, "P3")
		})
	})
}

func TestOrchestrator_Idempotence(t *testing.T) {
	Convey("Given an engine on P1", t, func() {
		ctx := context.Background()
		h := newHarness(sceneCatalog())
		o := h.o
		So(o.SetTrainingState(ctx, model.StateStart), ShouldBeNil)
		o.Tick(ctx)
		cursor := o.Cursor()
		records := len(o.Records())

		Convey("Advancing to the current procedure is a no-op", func() {
			err := o.RequestAdvance(ctx, "P1")
			So(errors.Is(err, ErrAlreadyCurrent), ShouldBeTrue)
			So(o.Cursor(), ShouldResemble, cursor)
			So(o.Records(), ShouldHaveLength, records)
		})

		Convey("Advancing to a passed procedure is a no-op", func() {
			err := o.RequestAdvance(ctx, "P0")
			So(errors.Is(err, ErrStaleCommand), ShouldBeTrue)
			So(o.Cursor(), ShouldResemble, cursor)
		})

		Convey("Unknown ids change nothing", func() {
			So(errors.Is(o.RequestAdvance(ctx, "nope"), ErrUnknownProcedure), ShouldBeTrue)
			So(errors.Is(o.AdvanceToTimeline(ctx, "nope"), ErrUnknownTimeline), ShouldBeTrue)
			So(errors.Is(o.StartTimeline(ctx, 9), ErrUnknownTimeline), ShouldBeTrue)
			So(o.Cursor(), ShouldResemble, cursor)
		})

		Convey("Starting the current timeline again is a no-op", func() {
			So(errors.Is(o.StartTimeline(ctx, 0), ErrAlreadyCurrent), ShouldBeTrue)
			So(o.Cursor(), ShouldResemble, cursor)
		})

		Convey("Advancing to the next procedure records the open one as skipped", func() {
			So(o.RequestAdvance(ctx, "P2"), ShouldBeNil)
			So(outcomes(o.Records())["P1"], ShouldEqual, model.OutcomeSkipped)
			So(o.Cursor(), ShouldResemble, model.Cursor{Timeline: 0, Procedure: 2})
			So(errors.Is(o.RequestAdvance(ctx, "P1"), ErrStaleCommand), ShouldBeTrue)
		})
	})
}

func TestOrchestrator_Monotonic(t *testing.T) {
	Convey("The cursor never moves backwards except on Ready", t, func() {
		ctx := context.Background()
		h := newHarness(sceneCatalog())
		o := h.o
		prev := o.Cursor()
		check := func() {
			So(o.Cursor().Before(prev), ShouldBeFalse)
			prev = o.Cursor()
		}

		inputs := []model.Input{
			model.CommandInput(model.Command{Kind: model.CommandSetState, State: model.StateStart}),
			model.CommandInput(model.Command{Kind: model.CommandAdvanceProcedure, ProcedureID: "P2"}),
			model.CommandInput(model.Command{Kind: model.CommandAdvanceProcedure, ProcedureID: "P0"}),
			model.SignalInput(model.Signal{Kind: model.SignalMilestone, Milestone: 8}),
			model.CommandInput(model.Command{Kind: model.CommandAdvanceTimeline, TimelineID: "A"}),
			model.SignalInput(model.Signal{Kind: model.SignalWorldReady}),
			model.CommandInput(model.Command{Kind: model.CommandAdvanceProcedure, ProcedureID: "P1"}),
			model.CommandInput(model.Command{Kind: model.CommandAdvanceTimeline, TimelineID: "B"}),
		}
		for _, in := range inputs {
			_ = o.Handle(ctx, in)
			check()
			o.Tick(ctx)
			check()
		}
		So(o.Cursor(), ShouldResemble, model.Cursor{Timeline: 1, Procedure: 0})

		So(o.SetTrainingState(ctx, model.StateReady), ShouldBeNil)
		So(o.Cursor(), ShouldResemble, model.Origin)
		So(o.Session(), ShouldEqual, "s2")
		So(o.Records(), ShouldBeEmpty)
		So(h.store.saved["s1"], ShouldNotBeEmpty)
	})
}

func TestOrchestrator_TimeoutRace(t *testing.T) {
	Convey("Given P3 armed with a 30s limit", t, func() {
		ctx := context.Background()
		h := newHarness(sceneCatalog())
		o := h.o
		So(o.SetTrainingState(ctx, model.StateStart), ShouldBeNil)
		So(o.AdvanceToTimeline(ctx, "B"), ShouldBeNil)
		So(o.HandleSignal(ctx, model.Signal{Kind: model.SignalWorldReady}), ShouldBeNil)
		p, _ := o.Active()
		So(p.ID, ShouldEqual, "P3")
		deadline := h.clock.Now().Add(30 * time.Second)
		h.clock.Set(deadline)

		Convey("A success observed before the deadline wins", func() {
			So(o.HandleSignal(ctx, model.Signal{Kind: model.SignalEquip, At: deadline.Add(-time.Millisecond)}), ShouldBeNil)
			o.Tick(ctx)
			So(outcomes(o.Records())["P3"], ShouldEqual, model.OutcomeSuccess)
			So(h.calls.count("force-equip helmet"), ShouldEqual, 0)
		})

		Convey("A success observed at the deadline loses and one fail is recorded", func() {
			So(o.HandleSignal(ctx, model.Signal{Kind: model.SignalEquip, At: deadline}), ShouldBeNil)
			o.Tick(ctx)
			o.Tick(ctx)

			n := 0
			for _, r := range o.Records() {
				if r.ProcedureID == "P3" {
					n++
					So(r.Outcome, ShouldEqual, model.OutcomeFail)
				}
			}
			So(n, ShouldEqual, 1)
			So(h.calls.count("force-equip helmet"), ShouldEqual, 1)

			done := h.events.of(model.EventTimelineComplete)
			So(done[len(done)-1].TimelineID, ShouldEqual, "B")
			So(done[len(done)-1].Success, ShouldBeFalse)
		})
	})
}

func TestOrchestrator_ForceOverride(t *testing.T) {
	Convey("Given a started session", t, func() {
		ctx := context.Background()
		h := newHarness(sceneCatalog())
		o := h.o
		So(o.SetTrainingState(ctx, model.StateStart), ShouldBeNil)

		Convey("ForceExit outside GoJump is a no-op", func() {
			err := o.ForceOverride(ctx, model.ForceExit)
			So(errors.Is(err, ErrInvalidOverride), ShouldBeTrue)
			So(o.Cursor(), ShouldResemble, model.Cursor{Timeline: 0, Procedure: 0})
			So(o.Records(), ShouldBeEmpty)
		})

		Convey("ForceExit on GoJump completes it as forced", func() {
			So(o.RequestAdvance(ctx, "P2"), ShouldBeNil)
			p, _ := o.Active()
			So(p.StepName, ShouldEqual, "GoJump")

			So(o.ForceOverride(ctx, model.ForceExit), ShouldBeNil)
			So(outcomes(o.Records())["P2"], ShouldEqual, model.OutcomeForced)
			So(o.State(), ShouldEqual, StateIdle)
			So(o.Cursor(), ShouldResemble, model.Cursor{Timeline: 0, Procedure: 2})

			Convey("The gate still reloads the world with the actor placed on it", func() {
				So(h.calls.count("reload P2"), ShouldEqual, 1)
				So(o.Status().Reloading, ShouldEqual, "P2")
				scenes := h.events.of(model.EventSceneState)
				So(scenes, ShouldHaveLength, 1)
				So(scenes[0].Scene, ShouldEqual, model.SceneLoading)
				So(h.actor.teleports, ShouldNotBeEmpty)
				So(h.actor.teleports[len(h.actor.teleports)-1], ShouldEqual, 8)
			})

			Convey("The next timeline waits for the world before entering", func() {
				So(o.StartTimeline(ctx, 1), ShouldBeNil)
				So(o.State(), ShouldEqual, StateSkipping)
				So(o.Status().PendingTarget, ShouldEqual, "P3")
				_, active := o.Active()
				So(active, ShouldBeFalse)
				So(h.actor.held, ShouldBeTrue)

				So(o.HandleSignal(ctx, model.Signal{Kind: model.SignalWorldReady}), ShouldBeNil)
				p, ok := o.Active()
				So(ok, ShouldBeTrue)
				So(p.ID, ShouldEqual, "P3")
				So(h.actor.held, ShouldBeFalse)
				So(h.actor.teleports[len(h.actor.teleports)-1], ShouldEqual, 8)
				scenes := h.events.of(model.EventSceneState)
				So(scenes, ShouldHaveLength, 2)
				So(scenes[1].Scene, ShouldEqual, model.SceneComplete)
				So(h.calls.count("reload P2"), ShouldEqual, 1)
			})
		})

		Convey("ForceMainParachute needs a pull cord procedure", func() {
			err := o.ForceOverride(ctx, model.ForceMainParachute)
			So(errors.Is(err, ErrInvalidOverride), ShouldBeTrue)
			So(h.calls.count("deploy"), ShouldEqual, 0)
		})

		Convey("ForceTrainingEnd closes the active procedure and ends the session", func() {
			So(o.ForceOverride(ctx, model.ForceTrainingEnd), ShouldBeNil)
			So(o.State(), ShouldEqual, StateSessionEnded)
			So(outcomes(h.store.saved["s1"]), ShouldResemble, map[string]model.Outcome{"P0": model.OutcomeForced})
		})

		Convey("Unknown override kinds are rejected", func() {
			So(errors.Is(o.ForceOverride(ctx, "bogus"), ErrInvalidOverride), ShouldBeTrue)
		})
	})
}

func TestOrchestrator_Pause(t *testing.T) {
	Convey("Given P1 counting down", t, func() {
		ctx := context.Background()
		h := newHarness(sceneCatalog())
		o := h.o
		So(o.SetTrainingState(ctx, model.StateStart), ShouldBeNil)
		o.Tick(ctx)
		So(o.Cursor().Procedure, ShouldEqual, 1)

		Convey("Pause freezes the countdown and holds the actor", func() {
			h.clock.Advance(time.Second)
			So(o.SetTrainingState(ctx, model.StatePause), ShouldBeNil)
			So(o.Status().Paused, ShouldBeTrue)
			So(h.actor.held, ShouldBeTrue)

			h.clock.Advance(5 * time.Second)
			o.Tick(ctx)
			So(o.Cursor().Procedure, ShouldEqual, 1)

			So(o.SetTrainingState(ctx, model.StateResume), ShouldBeNil)
			So(h.actor.held, ShouldBeFalse)
			h.clock.Advance(999 * time.Millisecond)
			o.Tick(ctx)
			So(o.Cursor().Procedure, ShouldEqual, 1)

			h.clock.Advance(time.Millisecond)
			o.Tick(ctx)
			So(o.Cursor().Procedure, ShouldEqual, 2)
		})
	})
}

func TestOrchestrator_SessionEnded(t *testing.T) {
	Convey("Given an ended session", t, func() {
		ctx := context.Background()
		h := newHarness(sceneCatalog())
		o := h.o
		So(o.SetTrainingState(ctx, model.StateStart), ShouldBeNil)
		So(o.SetTrainingState(ctx, model.StateEnd), ShouldBeNil)
		So(o.State(), ShouldEqual, StateSessionEnded)

		Convey("Only Ready and End are accepted", func() {
			So(errors.Is(o.SetTrainingState(ctx, model.StateStart), ErrSessionEnded), ShouldBeTrue)
			So(errors.Is(o.HandleSignal(ctx, model.Signal{Kind: model.SignalEquip}), ErrSessionEnded), ShouldBeTrue)
			So(o.SetTrainingState(ctx, model.StateEnd), ShouldBeNil)
			So(o.SetTrainingState(ctx, model.StateReady), ShouldBeNil)
			So(o.State(), ShouldEqual, StateIdle)
			So(o.Session(), ShouldEqual, "s2")
		})

		Convey("A failing store leaves the records for the next Ready", func() {
			h2 := newHarness(sceneCatalog())
			h2.store.err = errors.New("disk full")
			So(h2.o.SetTrainingState(ctx, model.StateStart), ShouldBeNil)
			h2.o.Tick(ctx)
			So(h2.o.SetTrainingState(ctx, model.StateEnd), ShouldBeNil)
			So(h2.store.saved, ShouldBeEmpty)

			h2.store.err = nil
			So(h2.o.SetTrainingState(ctx, model.StateReady), ShouldBeNil)
			So(h2.store.saved["s1"], ShouldHaveLength, 1)
		})

		Convey("Invalid states are rejected", func() {
			So(errors.Is(o.SetTrainingState(ctx, "bogus"), ErrInvalidState), ShouldBeTrue)
		})
	})
}
