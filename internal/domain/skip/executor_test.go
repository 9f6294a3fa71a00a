package skip

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/jumptrain/internal/domain/catalog"
	"github.com/okian/jumptrain/internal/domain/model"
	"github.com/okian/jumptrain/internal/domain/route"
	. "github.com/smartystreets/goconvey/convey"
)

type actor struct{ teleports []int }

func (a *actor) Teleport(_ context.Context, m int) error {
	a.teleports = append(a.teleports, m)
	return nil
}
func (a *actor) Hold(context.Context, bool) error { return nil }

type essentials struct{ calls []string }

func (e *essentials) ForceEquip(_ context.Context, item string) error {
	e.calls = append(e.calls, "equip "+item)
	return nil
}
func (e *essentials) SetPosture(_ context.Context, p model.Posture) error {
	e.calls = append(e.calls, "posture "+string(p))
	return nil
}
func (e *essentials) DeployCanopy(context.Context) error {
	e.calls = append(e.calls, "deploy")
	return nil
}

type closed struct {
	id      string
	outcome model.Outcome
	last    bool
}

type recorder struct{ closed []closed }

func (r *recorder) Close(_ context.Context, e catalog.Entry, o model.Outcome) {
	r.closed = append(r.closed, closed{id: e.Procedure.ID, outcome: o, last: e.Last})
}

type reloader struct{ reloads []string }

func (r *reloader) BeginReload(_ context.Context, id string) { r.reloads = append(r.reloads, id) }

func offset(v int) *int { return &v }

// A=[P0 None, P1 Time 2s, P2 Point gate], B=[P3 Item], C=[P4 Stand, P5 Point, P6 PullCord]
func fixture() (*Executor, *route.Synchronizer, *actor, *essentials, *recorder, *reloader) {
	c := catalog.NewStatic("fixture", model.Route{Anchor: 4, Length: 8, Gates: []int{4}},
		[]model.Timeline{{ID: "A"}, {ID: "B"}, {ID: "C"}},
		map[string][]model.Procedure{
			"A": {
				{ID: "P0", Condition: model.ConditionNone},
				{ID: "P1", Condition: model.ConditionTime, Params: model.Params{Duration: 2 * time.Second}},
				{ID: "P2", Condition: model.ConditionPoint, Params: model.Params{MilestoneOffset: offset(0)}},
			},
			"B": {{ID: "P3", Condition: model.ConditionItem, Params: model.Params{Item: "helmet"}}},
			"C": {
				{ID: "P4", Condition: model.ConditionStand},
				{ID: "P5", Condition: model.ConditionPoint, Params: model.Params{MilestoneOffset: offset(2)}},
				{ID: "P6", Condition: model.ConditionPullCord, Params: model.Params{Altitude: 1000}},
			},
		})
	idx, err := catalog.NewIndex(c)
	if err != nil {
		panic(err)
	}
	a := &actor{}
	sync := route.New(a, c.Route())
	ess := &essentials{}
	rec := &recorder{}
	rel := &reloader{}
	return New(idx, sync, ess, rec, rel), sync, a, ess, rec, rel
}

func TestExecutor_SceneBoundary(t *testing.T) {
	Convey("Given the cursor on an open P0", t, func() {
		ctx := context.Background()
		x, sync, a, _, rec, rel := fixture()
		from := model.Cursor{Timeline: 0, Procedure: 0}

		Convey("When skipping to P3 across the reload gate P2", func() {
			res, err := x.Execute(ctx, from, true, "P3")
			So(err, ShouldBeNil)

			Convey("Then the skip parks on the reload after recording P0..P2 skipped", func() {
				So(res.Settled, ShouldBeFalse)
				So(x.Parked(), ShouldBeTrue)
				So(rel.reloads, ShouldResemble, []string{"P2"})
				So(rec.closed, ShouldResemble, []closed{
					{id: "P0", outcome: model.OutcomeSkipped},
					{id: "P1", outcome: model.OutcomeSkipped},
					{id: "P2", outcome: model.OutcomeSkipped, last: true},
				})
				So(sync.Position(), ShouldEqual, 4)
			})

			Convey("Then resuming after the world is ready settles on P3 with the actor re-synchronized", func() {
				a.teleports = nil
				res, err := x.Resume(ctx)
				So(err, ShouldBeNil)
				So(res.Settled, ShouldBeTrue)
				So(res.Target.Procedure.ID, ShouldEqual, "P3")
				So(a.teleports, ShouldResemble, []int{4})
				So(x.Parked(), ShouldBeFalse)
				So(rec.closed, ShouldHaveLength, 3)
			})

			Convey("Then a later advance extends the parked target", func() {
				res, err := x.Execute(ctx, from, true, "P5")
				So(err, ShouldBeNil)
				So(res.Settled, ShouldBeFalse)
				tgt, _ := x.Pending()
				So(tgt.Procedure.ID, ShouldEqual, "P5")

				res, _ = x.Resume(ctx)
				So(res.Settled, ShouldBeTrue)
				So(res.Target.Procedure.ID, ShouldEqual, "P5")
				So(rec.closed[3].id, ShouldEqual, "P3")
				So(rec.closed[3].last, ShouldBeTrue)
				So(rec.closed[4].id, ShouldEqual, "P4")
			})

			Convey("Then an earlier advance is stale", func() {
				_, err := x.Execute(ctx, from, true, "P3")
				So(errors.Is(err, ErrStale), ShouldBeTrue)
			})
		})
	})
}

func TestExecutor_Essentials(t *testing.T) {
	Convey("Given P3 completed", t, func() {
		ctx := context.Background()
		x, sync, _, ess, rec, rel := fixture()
		sync.ForceActorTo(ctx, 4)
		from := model.Cursor{Timeline: 1, Procedure: 0}

		Convey("When skipping to P6", func() {
			res, err := x.Execute(ctx, from, false, "P6")
			So(err, ShouldBeNil)

			Convey("Then only essential actions run and the actor reaches P5's milestone", func() {
				So(res.Settled, ShouldBeTrue)
				So(ess.calls, ShouldResemble, []string{"posture standing"})
				So(sync.Position(), ShouldEqual, 6)
				So(rel.reloads, ShouldBeEmpty)
				So(rec.closed, ShouldHaveLength, 2)
			})
		})

		Convey("When skipping to the immediate next procedure", func() {
			res, err := x.Execute(ctx, from, false, "P4")
			So(err, ShouldBeNil)
			So(res.Settled, ShouldBeTrue)
			So(rec.closed, ShouldBeEmpty)
		})

		Convey("When skipping backwards or to an unknown id", func() {
			_, err := x.Execute(ctx, from, false, "P1")
			So(errors.Is(err, ErrStale), ShouldBeTrue)
			_, err = x.Execute(ctx, from, false, "P9")
			So(errors.Is(err, ErrUnknownTarget), ShouldBeTrue)
			_, err = x.Resume(ctx)
			So(errors.Is(err, ErrNotParked), ShouldBeTrue)
		})
	})

	Convey("Given an item and pull cord skipped from origin", t, func() {
		ctx := context.Background()
		x, _, _, ess, _, _ := fixture()
		x.ApplyEssential(ctx, model.Procedure{Condition: model.ConditionItem, Params: model.Params{Item: "altimeter"}})
		x.ApplyEssential(ctx, model.Procedure{Condition: model.ConditionPullCord})
		x.ApplyEssential(ctx, model.Procedure{Condition: model.ConditionAnimation})
		So(ess.calls, ShouldResemble, []string{"equip altimeter", "deploy"})
	})

	Convey("Given a parked skip", t, func() {
		ctx := context.Background()
		x, _, _, _, _, _ := fixture()
		_, _ = x.Execute(ctx, model.Origin, false, "P4")
		So(x.Parked(), ShouldBeTrue)
		x.Abort(ctx)
		So(x.Parked(), ShouldBeFalse)
	})
}

func TestExecutor_Park(t *testing.T) {
	Convey("Given P2 closed with its reload already started", t, func() {
		ctx := context.Background()
		x, sync, a, _, rec, rel := fixture()
		p3, _ := x.index.Locate("P3")

		res, err := x.Park(ctx, "P2", p3)
		So(err, ShouldBeNil)

		Convey("Then nothing is closed or reloaded again and P3 waits", func() {
			So(res.Settled, ShouldBeFalse)
			So(x.Parked(), ShouldBeTrue)
			tgt, _ := x.Pending()
			So(tgt.Procedure.ID, ShouldEqual, "P3")
			So(rec.closed, ShouldBeEmpty)
			So(rel.reloads, ShouldBeEmpty)
		})

		Convey("Then resuming settles on P3 with the actor back at the gate", func() {
			res, err := x.Resume(ctx)
			So(err, ShouldBeNil)
			So(res.Settled, ShouldBeTrue)
			So(res.Target.Procedure.ID, ShouldEqual, "P3")
			So(a.teleports, ShouldResemble, []int{4})
			So(sync.Position(), ShouldEqual, 4)
			So(rec.closed, ShouldBeEmpty)
		})

		Convey("Then parking again extends the target", func() {
			p4, _ := x.index.Locate("P4")
			_, err := x.Park(ctx, "P2", p4)
			So(err, ShouldBeNil)
			tgt, _ := x.Pending()
			So(tgt.Procedure.ID, ShouldEqual, "P4")
		})
	})
}
