// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"slices"
	"time"
)

// ConditionKind names the wait strategy that completes a procedure.
type ConditionKind string

// Completion condition kinds.
const (
	ConditionNone         ConditionKind = "none"
	ConditionTime         ConditionKind = "time"
	ConditionAnimation    ConditionKind = "animation"
	ConditionPoint        ConditionKind = "point"
	ConditionItem         ConditionKind = "item"
	ConditionSitDown      ConditionKind = "sit_down"
	ConditionStand        ConditionKind = "stand"
	ConditionSceneLoading ConditionKind = "scene_loading"
	ConditionPullCord     ConditionKind = "pull_cord"
	ConditionLanding      ConditionKind = "landing"
)

var conditionKinds = []ConditionKind{
	ConditionNone, ConditionTime, ConditionAnimation, ConditionPoint, ConditionItem,
	ConditionSitDown, ConditionStand, ConditionSceneLoading, ConditionPullCord, ConditionLanding,
}

// Valid reports whether k is a known condition kind.
func (k ConditionKind) Valid() bool {
	return slices.Contains(conditionKinds, k)
}

// FailureKind names the failure condition running in parallel with a wait.
type FailureKind string

// Failure condition kinds.
const (
	FailureNone      FailureKind = ""
	FailureTimeLimit FailureKind = "time_limit"
)

// Posture is the participant's body posture requested by SitDown/Stand steps.
type Posture string

// Postures.
const (
	PostureSeated   Posture = "seated"
	PostureStanding Posture = "standing"
)

// Params carries the condition-specific completion parameters.
type Params struct {
	Duration time.Duration // Time: countdown length
	Altitude float64       // PullCord: auto-trigger altitude in meters
	Item     string        // Item: item kind to equip
	// MilestoneOffset overrides the route offset table for Point steps.
	// It is relative to the scenario anchor milestone.
	MilestoneOffset *int
	Reload          bool // Animation: world reload after playback
}

// Timeline is an ordered top-level training phase, e.g. "Boarding".
type Timeline struct {
	ID        string
	Name      string
	Ordinal   int
	JumpTypes []string // empty means every jump type
}

// Accepts reports whether the timeline applies to the given jump type.
func (t Timeline) Accepts(jumpType string) bool {
	return jumpType == "" || len(t.JumpTypes) == 0 || slices.Contains(t.JumpTypes, jumpType)
}

// Procedure is an atomic step within a timeline with exactly one completion condition.
type Procedure struct {
	ID           string
	TimelineID   string
	StepName     string
	Condition    ConditionKind
	Params       Params
	Failure      FailureKind
	TimeLimit    time.Duration
	EvaluationID string
	Weight       float64
}

// HasDeadline reports whether a failure deadline runs alongside the wait.
func (p Procedure) HasDeadline() bool {
	return p.Failure == FailureTimeLimit && p.TimeLimit > 0
}

// Cursor locates the current procedure: timeline index plus index within the timeline.
type Cursor struct {
	Timeline  int `json:"timeline"`
	Procedure int `json:"procedure"`
}

// Origin is the session start position, strictly before every procedure.
var Origin = Cursor{Timeline: -1, Procedure: -1}

// Compare orders cursors by timeline, then by procedure.
func (c Cursor) Compare(o Cursor) int {
	switch {
	case c.Timeline < o.Timeline:
		return -1
	case c.Timeline > o.Timeline:
		return 1
	case c.Procedure < o.Procedure:
		return -1
	case c.Procedure > o.Procedure:
		return 1
	}
	return 0
}

// Before reports whether c precedes o.
func (c Cursor) Before(o Cursor) bool { return c.Compare(o) < 0 }

// IsOrigin reports whether c is the session start position.
func (c Cursor) IsOrigin() bool { return c == Origin }

func (c Cursor) String() string {
	return fmt.Sprintf("%d/%d", c.Timeline, c.Procedure)
}

// RouteMilestone is a position marker on the actor's route.
type RouteMilestone struct {
	Index            int
	IsCompletionGate bool
}

// Route describes the scenario route the external actor travels.
type Route struct {
	Anchor int   // scenario milestone the offset table is relative to
	Length int   // number of milestones; indices run 0..Length-1
	Gates  []int // milestones marked as completion gates
}

// Milestones expands the route into its milestone list.
func (r Route) Milestones() []RouteMilestone {
	out := make([]RouteMilestone, r.Length)
	for i := range out {
		out[i] = RouteMilestone{Index: i, IsCompletionGate: slices.Contains(r.Gates, i)}
	}
	return out
}
