// Package catalog holds the read-only training curriculum: ordered timelines,
// their procedures and the route the external actor travels.
package catalog

import (
	"maps"
	"slices"

	"github.com/okian/jumptrain/internal/domain/model"
)

// Catalog is the read-only curriculum the engine consumes.
type Catalog interface {
	// Timelines returns the timelines in curriculum order.
	Timelines() []model.Timeline
	// Procedures returns the ordered procedures of a timeline.
	Procedures(timelineID string) []model.Procedure
	// Route returns the actor route of the scenario.
	Route() model.Route
	// Offsets returns named step milestone offsets relative to the route anchor.
	Offsets() map[string]int
}

// Static is an in-memory Catalog.
type Static struct {
	name       string
	timelines  []model.Timeline
	procedures map[string][]model.Procedure
	route      model.Route
	offsets    map[string]int
}

// NewStatic builds a catalog from already ordered timelines and procedures.
// Procedure TimelineID fields are filled in from the map key.
func NewStatic(name string, route model.Route, timelines []model.Timeline, procedures map[string][]model.Procedure, opts ...Option) *Static {
	s := &Static{
		name:       name,
		timelines:  make([]model.Timeline, len(timelines)),
		procedures: make(map[string][]model.Procedure, len(procedures)),
		route:      route,
		offsets:    map[string]int{},
	}
	for i, t := range timelines {
		t.Ordinal = i
		s.timelines[i] = t
	}
	for id, ps := range procedures {
		cp := slices.Clone(ps)
		for i := range cp {
			cp[i].TimelineID = id
		}
		s.procedures[id] = cp
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the scenario name.
func (s *Static) Name() string { return s.name }

// Timelines returns a copy of the ordered timelines.
func (s *Static) Timelines() []model.Timeline { return slices.Clone(s.timelines) }

// Procedures returns a copy of the timeline's procedures.
func (s *Static) Procedures(timelineID string) []model.Procedure {
	return slices.Clone(s.procedures[timelineID])
}

// Route returns the scenario route.
func (s *Static) Route() model.Route { return s.route }

// Offsets returns a copy of the named step offsets.
func (s *Static) Offsets() map[string]int { return maps.Clone(s.offsets) }

// Filter returns a catalog holding only the timelines that accept jumpType.
func (s *Static) Filter(jumpType string) *Static {
	var kept []model.Timeline
	procs := map[string][]model.Procedure{}
	for _, t := range s.timelines {
		if !t.Accepts(jumpType) {
			continue
		}
		kept = append(kept, t)
		procs[t.ID] = s.procedures[t.ID]
	}
	return NewStatic(s.name, s.route, kept, procs, WithOffsets(s.offsets))
}

// Len returns the number of procedures across all timelines.
func (s *Static) Len() int {
	n := 0
	for _, t := range s.timelines {
		n += len(s.procedures[t.ID])
	}
	return n
}
