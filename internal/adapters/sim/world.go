// Package sim stands in for the training world: the stage that plays
// animations and reloads scenes, the display, and the aircraft moving along
// the route. Every completion is reported back through the input queue,
// never by calling the engine directly.
package sim

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/okian/jumptrain/internal/adapters/sensor"
	"github.com/okian/jumptrain/internal/domain/model"
	"github.com/okian/jumptrain/pkg/logger"
)

const defaultStep = 500 * time.Millisecond

// Enqueuer accepts inputs for the engine thread.
type Enqueuer interface {
	Enqueue(ctx context.Context, in model.Input) bool
}

// World implements completion.Stage, completion.Presenter and route.Actor.
type World struct {
	queue  Enqueuer
	route  model.Route
	step   time.Duration
	device sensor.Device
	log    logger.Logger
	manual bool

	mu       sync.Mutex
	ctx      context.Context
	position int
	held     bool
	posture  model.Posture
	equipped map[string]bool
	canopy   bool
	timers   []*time.Timer
	closed   bool
}

// NewWorld creates a simulated world on route.
func NewWorld(queue Enqueuer, route model.Route, opts ...Option) *World {
	w := &World{
		queue:    queue,
		route:    route,
		step:     defaultStep,
		log:      logger.Discard(),
		ctx:      context.Background(),
		equipped: map[string]bool{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run moves the aircraft one milestone per step until ctx is done.
func (w *World) Run(ctx context.Context) {
	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()

	ticker := time.NewTicker(w.step)
	defer ticker.Stop()
	defer w.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m, moved := w.advance(); moved {
				w.signal(model.Signal{Kind: model.SignalMilestone, Milestone: m})
			}
		}
	}
}

// Close stops pending callbacks.
func (w *World) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	for _, t := range w.timers {
		t.Stop()
	}
	w.timers = nil
}

// Position returns the aircraft's milestone.
func (w *World) Position() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.position
}

func (w *World) advance() (int, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.held || w.manual || w.position >= w.route.Length-1 {
		return w.position, false
	}
	w.position++
	return w.position, true
}

// later enqueues sig after n steps. A fired timer is dropped from the
// pending list.
func (w *World) later(n int, sig model.Signal) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.manual {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(time.Duration(n)*w.step, func() {
		w.mu.Lock()
		w.timers = slices.DeleteFunc(w.timers, func(p *time.Timer) bool { return p == t })
		w.mu.Unlock()
		w.signal(sig)
	})
	w.timers = append(w.timers, t)
}

func (w *World) signal(sig model.Signal) {
	w.mu.Lock()
	ctx, closed := w.ctx, w.closed
	w.mu.Unlock()
	if closed {
		return
	}
	sig.At = time.Now().UTC()
	if !w.queue.Enqueue(ctx, model.SignalInput(sig)) {
		w.log.Warn(ctx, "input queue full, world signal dropped", logger.String("signal", string(sig.Kind)))
	}
}

// Teleport implements route.Actor.
func (w *World) Teleport(ctx context.Context, milestone int) error {
	w.mu.Lock()
	w.position = milestone
	w.mu.Unlock()
	w.log.Debug(ctx, "aircraft teleported", logger.Int("milestone", milestone))
	return nil
}

// Hold implements route.Actor.
func (w *World) Hold(ctx context.Context, hold bool) error {
	w.mu.Lock()
	w.held = hold
	w.mu.Unlock()
	w.log.Debug(ctx, "aircraft hold", logger.Bool("held", hold))
	return nil
}

// PlayAnimation implements completion.Stage.
func (w *World) PlayAnimation(ctx context.Context, procedureID string) error {
	w.log.Info(ctx, "playing animation", logger.String("procedure", procedureID))
	w.later(2, model.Signal{Kind: model.SignalPlaybackFinished, ProcedureID: procedureID})
	return nil
}

// RequestPosture implements completion.Stage.
func (w *World) RequestPosture(ctx context.Context, procedureID string, posture model.Posture) error {
	w.log.Info(ctx, "requesting posture", logger.String("procedure", procedureID), logger.String("posture", string(posture)))
	w.mu.Lock()
	w.posture = posture
	w.mu.Unlock()
	w.later(1, model.Signal{Kind: model.SignalPostureConfirmed, ProcedureID: procedureID})
	return nil
}

// ArmRelease implements completion.Stage. With a sensor device attached the
// device reports the descent; otherwise the cord is pulled after a while.
func (w *World) ArmRelease(ctx context.Context, procedureID string, altitude float64) error {
	w.log.Info(ctx, "release armed", logger.String("procedure", procedureID), logger.Float64("altitude", altitude))
	if w.device != nil && !w.manual {
		return w.device.Send(ctx, sensor.Command{Op: OpArm, ProcedureID: procedureID, Altitude: altitude})
	}
	w.later(3, model.Signal{Kind: model.SignalCordReleased, ProcedureID: procedureID})
	return nil
}

// WatchGround implements completion.Stage.
func (w *World) WatchGround(ctx context.Context, procedureID string) error {
	w.log.Info(ctx, "watching for ground contact", logger.String("procedure", procedureID))
	if w.device != nil && !w.manual {
		return w.device.Send(ctx, sensor.Command{Op: OpWatchGround, ProcedureID: procedureID})
	}
	w.later(3, model.Signal{Kind: model.SignalGroundContact, ProcedureID: procedureID})
	return nil
}

// ReloadWorld implements completion.Stage.
func (w *World) ReloadWorld(ctx context.Context, procedureID string) error {
	w.log.Info(ctx, "reloading world", logger.String("procedure", procedureID))
	w.later(2, model.Signal{Kind: model.SignalWorldReady})
	return nil
}

// ForceEquip implements completion.Stage.
func (w *World) ForceEquip(ctx context.Context, item string) error {
	w.mu.Lock()
	w.equipped[item] = true
	w.mu.Unlock()
	w.log.Info(ctx, "item force-equipped", logger.String("item", item))
	return nil
}

// SetPosture implements completion.Stage.
func (w *World) SetPosture(ctx context.Context, posture model.Posture) error {
	w.mu.Lock()
	w.posture = posture
	w.mu.Unlock()
	w.log.Info(ctx, "posture set", logger.String("posture", string(posture)))
	return nil
}

// DeployCanopy implements completion.Stage.
func (w *World) DeployCanopy(ctx context.Context) error {
	w.mu.Lock()
	already := w.canopy
	w.canopy = true
	w.mu.Unlock()
	if !already {
		w.log.Info(ctx, "canopy deployed")
	}
	return nil
}

// Show implements completion.Presenter.
func (w *World) Show(ctx context.Context, p model.Procedure) error {
	w.log.Info(ctx, "show procedure", logger.String("procedure", p.ID), logger.String("step", p.StepName))
	return nil
}

// Hide implements completion.Presenter.
func (w *World) Hide(ctx context.Context, procedureID string) error {
	w.log.Debug(ctx, "hide procedure", logger.String("procedure", procedureID))
	return nil
}

// Prompt implements completion.Presenter. The simulated participant
// follows equip prompts after a step.
func (w *World) Prompt(ctx context.Context, procedureID, message string) error {
	w.log.Info(ctx, "prompt", logger.String("procedure", procedureID), logger.String("message", message))
	w.later(1, model.Signal{Kind: model.SignalEquip, ProcedureID: procedureID})
	return nil
}

// Snapshot is the simulated world state, for status pages and tests.
type Snapshot struct {
	Position int           `json:"position"`
	Held     bool          `json:"held"`
	Posture  model.Posture `json:"posture,omitempty"`
	Equipped []string      `json:"equipped,omitempty"`
	Canopy   bool          `json:"canopy"`
}

// Snapshot returns the current world state.
func (w *World) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Snapshot{
		Position: w.position,
		Held:     w.held,
		Posture:  w.posture,
		Equipped: slices.Sorted(maps.Keys(w.equipped)),
		Canopy:   w.canopy,
	}
}
