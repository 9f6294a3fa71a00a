// Package api is the HTTP side of the instructor command channel: commands
// and world signals go in through the input queue, events and status come
// out of the feed and the engine snapshot.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/okian/jumptrain/internal/adapters/repository"
	"github.com/okian/jumptrain/internal/domain/dedupe"
	"github.com/okian/jumptrain/internal/domain/model"
	"github.com/okian/jumptrain/internal/domain/orchestrator"
	"github.com/okian/jumptrain/pkg/logger"
)

const defaultEventPage = 256

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	dedupe.Deduper

	// Enqueue hands an input to the engine thread. Returns false on backpressure.
	Enqueue(ctx context.Context, in model.Input) bool

	// Status returns the latest engine snapshot.
	Status() orchestrator.Status

	// Events returns backlog events after seq; Subscribe streams new ones.
	Events(after uint64, limit int) []model.Event
	Subscribe() (<-chan model.Event, func())

	// Evaluations lists evaluation records, the live session included.
	Evaluations(ctx context.Context, q repository.Query) ([]model.EvaluationRecord, error)
}

// Server wires HTTP routes for the command channel.
type Server struct {
	deps      Dependencies
	limiter   *rate.Limiter
	eventPage int
	log       logger.Logger
}

// NewServer creates a new API server.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		deps:      deps,
		eventPage: defaultEventPage,
		log:       logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.handleHealth, "healthz"))
	mux.Handle("GET /metrics", metricsHandler())
	mux.HandleFunc("POST /commands", MetricsMiddleware(s.handleCommand, "commands"))
	mux.HandleFunc("POST /signals", MetricsMiddleware(s.handleSignal, "signals"))
	mux.HandleFunc("GET /status", MetricsMiddleware(s.handleStatus, "status"))
	mux.HandleFunc("GET /events", MetricsMiddleware(s.handleEvents, "events"))
	mux.HandleFunc("GET /events/stream", MetricsMiddleware(s.handleStream, "events_stream"))
	mux.HandleFunc("GET /evaluations", MetricsMiddleware(s.handleEvaluations, "evaluations"))
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
