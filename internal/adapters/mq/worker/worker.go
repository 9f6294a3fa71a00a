// Package worker runs the engine thread: the single goroutine that drains the
// input queue into the orchestrator and ticks it.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/jumptrain/internal/domain/model"
	"github.com/okian/jumptrain/pkg/logger"
	"github.com/okian/jumptrain/pkg/metrics"
)

const defaultTickInterval = 50 * time.Millisecond

// Engine is the state machine the worker drives. Its methods are only ever
// called from the worker goroutine.
type Engine interface {
	Handle(ctx context.Context, in model.Input) error
	Tick(ctx context.Context)
}

// Queue defines how the worker receives inputs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Input
}

// Worker processes inputs until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker and waits for the current step to finish.
	Shutdown(ctx context.Context) error
}

// EngineWorker owns the engine thread.
type EngineWorker struct {
	queue        Queue
	engine       Engine
	name         string
	tickInterval time.Duration

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewEngineWorker creates the engine worker.
func NewEngineWorker(queue Queue, engine Engine, opts ...Option) *EngineWorker {
	w := &EngineWorker{
		queue:        queue,
		engine:       engine,
		name:         "engine",
		tickInterval: defaultTickInterval,
		shutdown:     make(chan struct{}),
		done:         make(chan struct{}),
		logger:       logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "engine" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run drains inputs and ticks the engine. The engine is ticked after every
// input and on every interval, so immediate resolutions never wait long.
func (w *EngineWorker) Run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.tickInterval)
	defer ticker.Stop()

	inputs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case in, ok := <-inputs:
			if !ok {
				return
			}
			w.step(ctx, func() {
				if err := w.engine.Handle(ctx, in); err != nil {
					w.logger.Debug(ctx, "input not applied", logger.String("input", describe(in)), logger.Error(err))
				}
				w.engine.Tick(ctx)
			})
		case <-ticker.C:
			w.step(ctx, func() { w.engine.Tick(ctx) })
		}
	}
}

// Shutdown stops the worker. Calling it more than once is safe.
func (w *EngineWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when Run returns.
func (w *EngineWorker) Done() <-chan struct{} { return w.done }

// step runs one unit of engine work. A panic is logged and counted; the
// loop keeps going so one bad input cannot stop the session.
func (w *EngineWorker) step(ctx context.Context, fn func()) {
	start := time.Now()
	defer func() {
		metrics.RecordTickDuration(time.Since(start))
		if r := recover(); r != nil {
			metrics.RecordEnginePanic()
			metrics.RecordErrorByComponent("worker", "panic")
			w.logger.Error(ctx, "engine step panicked", logger.Any("panic", r))
		}
	}()
	fn()
}

func describe(in model.Input) string {
	switch {
	case in.Command != nil:
		return "command:" + string(in.Command.Kind)
	case in.Signal != nil:
		return "signal:" + string(in.Signal.Kind)
	}
	return "empty"
}
