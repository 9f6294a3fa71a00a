package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/jumptrain/internal/adapters/channel"
	"github.com/okian/jumptrain/internal/adapters/http/api"
	"github.com/okian/jumptrain/internal/adapters/repository"
	"github.com/okian/jumptrain/internal/domain/dedupe"
	"github.com/okian/jumptrain/internal/domain/model"
	"github.com/okian/jumptrain/internal/domain/orchestrator"
)

type fakeDeps struct {
	dedupe.Deduper
	*channel.Feed

	mu       sync.Mutex
	accept   bool
	enqueued []model.Input
	status   orchestrator.Status
	records  []model.EvaluationRecord
	listErr  error
	lastQ    repository.Query
}

func newFakeDeps() *fakeDeps {
	return &fakeDeps{
		Deduper: dedupe.NewInMemoryDeduper(),
		Feed:    channel.NewFeed(),
		accept:  true,
	}
}

func (f *fakeDeps) Enqueue(_ context.Context, in model.Input) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.accept {
		return false
	}
	f.enqueued = append(f.enqueued, in)
	return true
}

func (f *fakeDeps) Status() orchestrator.Status { return f.status }

func (f *fakeDeps) Events(after uint64, limit int) []model.Event { return f.Since(after, limit) }

func (f *fakeDeps) Evaluations(_ context.Context, q repository.Query) ([]model.EvaluationRecord, error) {
	f.lastQ = q
	if q.Limit < 0 {
		return nil, repository.ErrInvalidLimit
	}
	return f.records, f.listErr
}

func serve(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return out
}

func TestCommands(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := newFakeDeps()
		mux := http.NewServeMux()
		api.NewServer(deps).Register(context.Background(), mux)

		Convey("A valid command is accepted and enqueued", func() {
			w := serve(mux, http.MethodPost, "/commands", `{"id":"c1","kind":"advance_procedure","procedure_id":"P2"}`)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(deps.enqueued, ShouldHaveLength, 1)
			cmd := deps.enqueued[0].Command
			So(cmd, ShouldNotBeNil)
			So(cmd.Kind, ShouldEqual, model.CommandAdvanceProcedure)
			So(cmd.ProcedureID, ShouldEqual, "P2")
			So(cmd.ReceivedAt.IsZero(), ShouldBeFalse)

			Convey("And the same id again is acknowledged as a duplicate", func() {
				w := serve(mux, http.MethodPost, "/commands", `{"id":"c1","kind":"advance_procedure","procedure_id":"P2"}`)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["duplicate"], ShouldEqual, true)
				So(deps.enqueued, ShouldHaveLength, 1)
			})
		})

		Convey("Malformed commands are rejected", func() {
			for _, body := range []string{
				`not json`,
				`{"kind":"set_state","state":"start"}`,
				`{"id":"c2","kind":"fly"}`,
				`{"id":"c2","kind":"advance_procedure"}`,
				`{"id":"c2","kind":"advance_timeline"}`,
				`{"id":"c2","kind":"set_state","state":"sleep"}`,
				`{"id":"c2","kind":"force_override","force":"force_landing"}`,
			} {
				w := serve(mux, http.MethodPost, "/commands", body)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(w)["code"], ShouldEqual, "bad_request")
			}
			So(deps.enqueued, ShouldBeEmpty)
		})

		Convey("A full queue reports backpressure and allows a retry", func() {
			deps.accept = false
			w := serve(mux, http.MethodPost, "/commands", `{"id":"c3","kind":"set_state","state":"start"}`)
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)
			So(decode(w)["code"], ShouldEqual, "backpressure")

			deps.accept = true
			w = serve(mux, http.MethodPost, "/commands", `{"id":"c3","kind":"set_state","state":"start"}`)
			So(w.Code, ShouldEqual, http.StatusAccepted)
		})

		Convey("GET on /commands is not routed", func() {
			w := serve(mux, http.MethodGet, "/commands", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})

	Convey("Given a rate limited server", t, func() {
		deps := newFakeDeps()
		mux := http.NewServeMux()
		api.NewServer(deps, api.WithCommandRate(0.001, 1)).Register(context.Background(), mux)

		w := serve(mux, http.MethodPost, "/commands", `{"id":"a","kind":"set_state","state":"pause"}`)
		So(w.Code, ShouldEqual, http.StatusAccepted)
		w = serve(mux, http.MethodPost, "/commands", `{"id":"b","kind":"set_state","state":"resume"}`)
		So(w.Code, ShouldEqual, http.StatusTooManyRequests)
		So(decode(w)["code"], ShouldEqual, "rate_limited")
		So(deps.enqueued, ShouldHaveLength, 1)
	})
}

func TestSignals(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := newFakeDeps()
		mux := http.NewServeMux()
		api.NewServer(deps).Register(context.Background(), mux)

		Convey("A known signal is enqueued", func() {
			w := serve(mux, http.MethodPost, "/signals", `{"kind":"equip","procedure_id":"P3","item":"helmet"}`)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(deps.enqueued, ShouldHaveLength, 1)
			sig := deps.enqueued[0].Signal
			So(sig.Kind, ShouldEqual, model.SignalEquip)
			So(sig.Item, ShouldEqual, "helmet")
		})

		Convey("An unknown signal is rejected", func() {
			w := serve(mux, http.MethodPost, "/signals", `{"kind":"explode"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(deps.enqueued, ShouldBeEmpty)
		})
	})
}

func TestReads(t *testing.T) {
	Convey("Given a server with engine state", t, func() {
		deps := newFakeDeps()
		deps.status = orchestrator.Status{
			SessionID: "s1",
			State:     orchestrator.StateWaiting,
			Active:    "P1",
			Records:   []model.EvaluationRecord{{ProcedureID: "P0", Outcome: model.OutcomeSuccess}},
		}
		ctx := context.Background()
		for _, id := range []string{"P0", "P1", "P2"} {
			deps.Emit(ctx, model.Event{Kind: model.EventProcedureComplete, ProcedureID: id})
		}
		mux := http.NewServeMux()
		api.NewServer(deps, api.WithEventPageSize(2)).Register(ctx, mux)

		Convey("Health reports the session", func() {
			w := serve(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["session_id"], ShouldEqual, "s1")
		})

		Convey("Metrics are served in Prometheus format", func() {
			w := serve(mux, http.MethodGet, "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Status includes the active procedure and record count", func() {
			body := decode(serve(mux, http.MethodGet, "/status", ""))
			So(body["session_id"], ShouldEqual, "s1")
			So(body["active_procedure"], ShouldEqual, "P1")
			So(body["record_count"], ShouldEqual, float64(1))
			So(body, ShouldNotContainKey, "Records")
		})

		Convey("Events page through the backlog", func() {
			body := decode(serve(mux, http.MethodGet, "/events", ""))
			So(body["events"], ShouldHaveLength, 2)
			So(body["next"], ShouldEqual, float64(2))

			body = decode(serve(mux, http.MethodGet, "/events?after=2", ""))
			So(body["events"], ShouldHaveLength, 1)
			So(body["next"], ShouldEqual, float64(3))

			body = decode(serve(mux, http.MethodGet, "/events?after=3", ""))
			So(body["events"], ShouldBeEmpty)
			So(body["next"], ShouldEqual, float64(3))

			So(serve(mux, http.MethodGet, "/events?after=x", "").Code, ShouldEqual, http.StatusBadRequest)
			So(serve(mux, http.MethodGet, "/events?limit=0", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Evaluations pass the query through", func() {
			deps.records = deps.status.Records
			w := serve(mux, http.MethodGet, "/evaluations?participant_id=jumper-1&session_id=s1&limit=5", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["count"], ShouldEqual, float64(1))
			So(deps.lastQ, ShouldResemble, repository.Query{ParticipantID: "jumper-1", SessionID: "s1", Limit: 5})

			So(serve(mux, http.MethodGet, "/evaluations?limit=-1", "").Code, ShouldEqual, http.StatusBadRequest)
			So(serve(mux, http.MethodGet, "/evaluations?limit=many", "").Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestEventStream(t *testing.T) {
	Convey("Given a live server with one past event", t, func() {
		deps := newFakeDeps()
		ctx := context.Background()
		deps.Emit(ctx, model.Event{Kind: model.EventTrainingStateAck, State: model.StateStart})
		mux := http.NewServeMux()
		api.NewServer(deps).Register(ctx, mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events/stream?after=0"
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		So(err, ShouldBeNil)
		defer conn.Close()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

		Convey("The backlog arrives first, then live events", func() {
			var ev model.Event
			So(conn.ReadJSON(&ev), ShouldBeNil)
			So(ev.Seq, ShouldEqual, 1)
			So(ev.State, ShouldEqual, model.StateStart)

			deps.Emit(ctx, model.Event{Kind: model.EventSceneState, Scene: model.SceneLoading})
			So(conn.ReadJSON(&ev), ShouldBeNil)
			So(ev.Seq, ShouldEqual, 2)
			So(ev.Kind, ShouldEqual, model.EventSceneState)
		})
	})
}

func TestKindError(t *testing.T) {
	Convey("KindError matches both its kind and its cause", t, func() {
		cause := repository.ErrInvalidLimit
		err := api.WrapKind("op", api.ErrBadRequest, cause)
		So(err.Error(), ShouldEqual, "op: bad request: "+cause.Error())
		So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
		So(errors.Is(err, cause), ShouldBeTrue)
		So(api.NewKind("op", api.ErrBackpressure).Error(), ShouldEqual, "op: backpressure")
	})
}
