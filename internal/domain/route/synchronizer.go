// Package route keeps the moving external actor aligned with route milestones.
//
// The synchronizer is the only writer of the actor's position: ForceActorTo
// teleports it, SetHold and gate holds stop it. All methods run on the engine
// thread and need no locking.
package route

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/okian/jumptrain/internal/domain/model"
	"github.com/okian/jumptrain/pkg/logger"
	"github.com/okian/jumptrain/pkg/metrics"
)

// DefaultOffsets maps named steps to milestones relative to the route anchor.
func DefaultOffsets() map[string]int {
	return map[string]int{
		"departure-gate": -2,
		"door-open":      -1,
		"GoJump":         0,
	}
}

// Actor is the moving external vehicle.
type Actor interface {
	// Teleport moves the actor's logical position without traversal.
	Teleport(ctx context.Context, milestone int) error
	// Hold stops (true) or releases (false) the actor at its current milestone.
	Hold(ctx context.Context, hold bool) error
}

// Subscription is the handle returned by AwaitMilestone.
type Subscription struct {
	s      *Synchronizer
	id     uint64
	target int
	fn     func(reached int)
	done   bool
}

// Cancel detaches the subscription. It is safe to call more than once.
func (sub *Subscription) Cancel() {
	if sub == nil || sub.done {
		return
	}
	sub.done = true
	if sub.s != nil {
		delete(sub.s.subs, sub.id)
	}
}

// Done reports whether the subscription fired or was cancelled.
func (sub *Subscription) Done() bool { return sub == nil || sub.done }

// Synchronizer aligns the actor with milestones and holds it at unreleased gates.
type Synchronizer struct {
	actor    Actor
	route    model.Route
	offsets  map[string]int
	gates    map[int]bool
	released map[int]bool
	log      logger.Logger

	start    int
	position int
	subs     map[uint64]*Subscription
	nextID   uint64

	externalHold bool
	gateHold     bool
	held         bool
}

// New creates a synchronizer for route driving actor.
func New(actor Actor, r model.Route, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		actor:    actor,
		route:    r,
		offsets:  DefaultOffsets(),
		gates:    map[int]bool{},
		released: map[int]bool{},
		log:      logger.Discard(),
		subs:     map[uint64]*Subscription{},
	}
	for _, g := range r.Gates {
		s.gates[g] = true
	}
	for _, opt := range opts {
		opt(s)
	}
	s.position = s.start
	return s
}

// Offsets returns a copy of the offset table in use.
func (s *Synchronizer) Offsets() map[string]int { return maps.Clone(s.offsets) }

// MilestoneFor resolves the milestone a procedure is tied to: its explicit
// offset, else the offset table entry for its step name.
func (s *Synchronizer) MilestoneFor(p model.Procedure) (int, bool) {
	if p.Params.MilestoneOffset != nil {
		return s.route.Anchor + *p.Params.MilestoneOffset, true
	}
	off, ok := s.offsets[p.StepName]
	if !ok {
		return 0, false
	}
	return s.route.Anchor + off, true
}

// IsGate reports whether a milestone is a completion gate.
func (s *Synchronizer) IsGate(index int) bool { return s.gates[index] }

// IsReloadGate reports whether completing p requires a world reload.
func (s *Synchronizer) IsReloadGate(p model.Procedure) bool {
	switch p.Condition {
	case model.ConditionSceneLoading:
		return true
	case model.ConditionAnimation:
		return p.Params.Reload
	case model.ConditionPoint:
		m, ok := s.MilestoneFor(p)
		return ok && s.IsGate(m)
	}
	return false
}

// CheckGates validates that every Point procedure resolves to a milestone on
// the route and that every gate pairs with exactly one Point procedure.
func (s *Synchronizer) CheckGates(procs []model.Procedure) error {
	owners := map[int][]string{}
	for _, p := range procs {
		if p.Condition != model.ConditionPoint {
			continue
		}
		m, ok := s.MilestoneFor(p)
		if !ok {
			return fmt.Errorf("procedure %q step %q: %w", p.ID, p.StepName, ErrNoMilestone)
		}
		if m < 0 || m >= s.route.Length {
			return fmt.Errorf("procedure %q milestone %d: %w", p.ID, m, ErrOffRoute)
		}
		if s.gates[m] {
			owners[m] = append(owners[m], p.ID)
		}
	}
	for _, g := range slices.Sorted(maps.Keys(s.gates)) {
		if n := len(owners[g]); n != 1 {
			return fmt.Errorf("gate %d has %d point procedures %v: %w", g, n, owners[g], ErrGateMismatch)
		}
	}
	return nil
}

// Position returns the synchronized actor milestone.
func (s *Synchronizer) Position() int { return s.position }

// Held reports whether the actor is currently held.
func (s *Synchronizer) Held() bool { return s.held }

// AwaitMilestone calls fn once the actor is at or past target. It fires
// immediately when the actor is already there.
func (s *Synchronizer) AwaitMilestone(target int, fn func(reached int)) *Subscription {
	if s.position >= target {
		fn(s.position)
		return &Subscription{target: target, done: true}
	}
	s.nextID++
	sub := &Subscription{s: s, id: s.nextID, target: target, fn: fn}
	s.subs[sub.id] = sub
	return sub
}

// OnMilestone consumes a milestone reported by the actor.
func (s *Synchronizer) OnMilestone(ctx context.Context, index int) {
	if index < s.position {
		s.log.Warn(ctx, "actor behind synchronized milestone, re-forcing",
			logger.Int("reported", index), logger.Int("expected", s.position))
		metrics.RecordRouteDesync()
		s.teleport(ctx, s.position)
		return
	}
	prev := s.position
	s.position = index
	metrics.UpdateActorMilestone(index)

	for _, id := range slices.Sorted(maps.Keys(s.subs)) {
		sub := s.subs[id]
		if sub.target <= index {
			delete(s.subs, id)
			sub.done = true
			sub.fn(index)
		}
	}

	for g := prev + 1; g <= index; g++ {
		if s.gates[g] && !s.released[g] {
			s.gateHold = true
			break
		}
	}
	if s.gates[index] && !s.released[index] {
		s.gateHold = true
	}
	s.applyHold(ctx)
}

// ForceActorTo teleports the actor to index. Gates up to index are released,
// since their procedures are already settled.
func (s *Synchronizer) ForceActorTo(ctx context.Context, index int) {
	for g := range s.gates {
		if g <= index {
			s.released[g] = true
		}
	}
	s.position = index
	metrics.UpdateActorMilestone(index)
	s.teleport(ctx, index)
	for _, id := range slices.Sorted(maps.Keys(s.subs)) {
		sub := s.subs[id]
		if sub.target <= index {
			delete(s.subs, id)
			sub.done = true
			sub.fn(index)
		}
	}
	s.gateHold = s.gates[index] && !s.released[index]
	s.applyHold(ctx)
}

// ReleaseGate marks a gate settled and lifts the gate hold if the actor waits there.
func (s *Synchronizer) ReleaseGate(ctx context.Context, index int) {
	if !s.gates[index] {
		return
	}
	s.released[index] = true
	if s.gateHold && !s.unreleasedUpTo(s.position) {
		s.gateHold = false
	}
	s.applyHold(ctx)
}

// SetHold sets the external hold (pause, skip in progress).
func (s *Synchronizer) SetHold(ctx context.Context, hold bool) {
	s.externalHold = hold
	s.applyHold(ctx)
}

// Verify re-forces the actor when it lags behind expected.
// It reports whether a correction was needed.
func (s *Synchronizer) Verify(ctx context.Context, expected int) bool {
	if s.position >= expected {
		return false
	}
	s.log.Warn(ctx, "actor lagging after skip, re-forcing",
		logger.Int("position", s.position), logger.Int("expected", expected))
	metrics.RecordRouteDesync()
	s.ForceActorTo(ctx, expected)
	return true
}

// Reset cancels subscriptions, clears gate releases and returns the actor to its start.
func (s *Synchronizer) Reset(ctx context.Context) {
	for _, sub := range s.subs {
		sub.done = true
	}
	clear(s.subs)
	clear(s.released)
	s.position = s.start
	s.gateHold = false
	s.teleport(ctx, s.start)
	metrics.UpdateActorMilestone(s.start)
	s.applyHold(ctx)
}

func (s *Synchronizer) unreleasedUpTo(index int) bool {
	for g := range s.gates {
		if g <= index && !s.released[g] {
			return true
		}
	}
	return false
}

func (s *Synchronizer) applyHold(ctx context.Context) {
	want := s.externalHold || s.gateHold
	if want == s.held {
		return
	}
	if err := s.actor.Hold(ctx, want); err != nil {
		s.log.Error(ctx, "actor hold failed", logger.Bool("hold", want), logger.Error(err))
		metrics.RecordErrorByComponent("route", "hold")
		return
	}
	s.held = want
	metrics.UpdateActorHeld(want)
}

func (s *Synchronizer) teleport(ctx context.Context, index int) {
	if err := s.actor.Teleport(ctx, index); err != nil {
		s.log.Error(ctx, "actor teleport failed", logger.Int("milestone", index), logger.Error(err))
		metrics.RecordErrorByComponent("route", "teleport")
	}
}
