package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/jumptrain/internal/app"
	"github.com/okian/jumptrain/internal/adapters/repository"
	"github.com/okian/jumptrain/internal/domain/catalog"
	"github.com/okian/jumptrain/internal/domain/model"
	"github.com/okian/jumptrain/internal/domain/orchestrator"
	"github.com/okian/jumptrain/pkg/logger"
)

const twoTimelines = `
name: service-test
route:
  anchor: 4
  length: 8
timelines:
  - id: ground
    procedures:
      - { id: brief, step: Briefing, condition: none }
      - { id: helmet, step: EquipHelmet, condition: item, item: helmet, evaluation: eval-equipment }
  - id: air
    jump_types: [static-line]
    procedures:
      - { id: wait, step: Wait, condition: none }
`

func testCatalog() *catalog.Static {
	cat, err := catalog.Load(strings.NewReader(twoTimelines))
	if err != nil {
		panic(err)
	}
	return cat
}

func eventually(check func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if check() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return false
}

func hasEvent(svc *service.Service, kind model.EventKind, procedureID string) bool {
	for _, ev := range svc.Events(0, 0) {
		if ev.Kind == kind && (procedureID == "" || ev.ProcedureID == procedureID) {
			return true
		}
	}
	return false
}

func command(id string, kind model.CommandKind, fill func(*model.Command)) model.Input {
	c := model.Command{ID: id, Kind: kind}
	if fill != nil {
		fill(&c)
	}
	return model.CommandInput(c)
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(service.WithLogger(logger.Discard()), service.WithCatalog(testCatalog()))
		ctx := context.Background()

		Convey("Before Start nothing is accepted", func() {
			So(svc.Enqueue(ctx, command("c0", model.CommandSetState, nil)), ShouldBeFalse)
			So(svc.Status(), ShouldResemble, orchestrator.Status{})
			So(svc.GetStats(ctx)["started"], ShouldEqual, false)
			_, err := svc.Evaluations(ctx, repository.Query{})
			So(err, ShouldEqual, service.ErrNotStarted)
		})

		Convey("Start is idempotent and Stop marks it stopped", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Status().SessionID, ShouldNotBeEmpty)
			So(svc.GetStats(ctx)["started"], ShouldEqual, true)
			svc.Stop()
			svc.Stop()
			So(svc.GetStats(ctx)["started"], ShouldEqual, false)
		})
	})

	Convey("Given an unsupported store driver", t, func() {
		svc := service.New(service.WithLogger(logger.Discard()), service.WithStore("mongo", ""))
		err := svc.Start(context.Background())
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "mongo")
	})
}

func TestService_Session(t *testing.T) {
	Convey("Given a started service on sqlite with a manual world", t, func() {
		ctx := context.Background()
		svc := service.New(
			service.WithLogger(logger.Discard()),
			service.WithCatalog(testCatalog()),
			service.WithStore("sqlite", ":memory:"),
			service.WithParticipant("jumper-7"),
			service.WithTickInterval(5*time.Millisecond),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		So(svc.SeenAndRecord(ctx, "c1"), ShouldBeFalse)
		So(svc.SeenAndRecord(ctx, "c1"), ShouldBeTrue)
		So(svc.Size(), ShouldEqual, 1)

		Convey("Commands and signals drive the session to its end", func() {
			So(svc.Enqueue(ctx, command("c1", model.CommandSetState, func(c *model.Command) { c.State = model.StateStart })), ShouldBeTrue)
			So(eventually(func() bool { return svc.Status().Active == "helmet" }), ShouldBeTrue)

			So(svc.Enqueue(ctx, model.SignalInput(model.Signal{Kind: model.SignalEquip, ProcedureID: "helmet", Item: "helmet"})), ShouldBeTrue)
			So(eventually(func() bool { return hasEvent(svc, model.EventTimelineComplete, "") }), ShouldBeTrue)
			So(eventually(func() bool { return svc.Status().State == orchestrator.StateIdle }), ShouldBeTrue)

			So(svc.Enqueue(ctx, command("c2", model.CommandAdvanceTimeline, func(c *model.Command) { c.TimelineID = "air" })), ShouldBeTrue)
			So(eventually(func() bool { return svc.Status().State == orchestrator.StateSessionEnded }), ShouldBeTrue)

			records, err := svc.Evaluations(ctx, repository.Query{ParticipantID: "jumper-7"})
			So(err, ShouldBeNil)
			So(records, ShouldHaveLength, 3)
			So(records[1].ProcedureID, ShouldEqual, "helmet")
			So(records[1].Outcome, ShouldEqual, model.OutcomeSuccess)

			So(eventually(func() bool { return svc.GetStats(ctx)["stored_sessions"] == 1 }), ShouldBeTrue)

			var kinds []model.EventKind
			for _, ev := range svc.Events(0, 0) {
				kinds = append(kinds, ev.Kind)
			}
			So(kinds, ShouldContain, model.EventTrainingStateAck)
			So(kinds, ShouldContain, model.EventTimelineComplete)
			So(kinds, ShouldContain, model.EventProcedureComplete)

			all := svc.Events(0, 0)
			So(svc.GetStats(ctx)["last_event_seq"], ShouldEqual, all[len(all)-1].Seq)
		})

		Convey("Evaluations for another participant skip the live session", func() {
			records, err := svc.Evaluations(ctx, repository.Query{ParticipantID: "someone-else"})
			So(err, ShouldBeNil)
			So(records, ShouldBeEmpty)
		})
	})
}

func TestService_Simulation(t *testing.T) {
	Convey("Given a simulated station on the built-in scenario", t, func() {
		ctx := context.Background()
		svc := service.New(
			service.WithLogger(logger.Discard()),
			service.WithSimulation(true, 2*time.Millisecond),
			service.WithTickInterval(time.Millisecond),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("Starting the session enters the first procedure and the world reacts", func() {
			So(svc.Enqueue(ctx, command("start", model.CommandSetState, func(c *model.Command) { c.State = model.StateStart })), ShouldBeTrue)
			So(eventually(func() bool { return hasEvent(svc, model.EventProcedureComplete, "equip-helmet") }), ShouldBeTrue)
			So(svc.Status().SessionID, ShouldNotBeEmpty)
		})
	})
}
