package catalog

import (
	"fmt"

	"github.com/okian/jumptrain/internal/domain/model"
)

// Entry is a procedure with its resolved position in the curriculum.
type Entry struct {
	Procedure model.Procedure
	Cursor    model.Cursor
	Flat      int  // position in the flattened global order
	Last      bool // last procedure of its timeline
}

// Index is the single flattened, globally ordered view of a catalog.
// Every lookup by id or cursor goes through it.
type Index struct {
	timelines  []model.Timeline
	entries    []Entry
	byID       map[string]int
	timelineAt map[string]int
	starts     []int
}

// NewIndex flattens the catalog. Timelines without procedures are rejected.
func NewIndex(c Catalog) (*Index, error) {
	if c == nil {
		return nil, ErrCatalogUnavailable
	}
	idx := &Index{
		timelines:  c.Timelines(),
		byID:       map[string]int{},
		timelineAt: map[string]int{},
	}
	for ti, t := range idx.timelines {
		if _, dup := idx.timelineAt[t.ID]; dup {
			return nil, fmt.Errorf("timeline %q: %w", t.ID, ErrDuplicateID)
		}
		idx.timelineAt[t.ID] = ti
		procs := c.Procedures(t.ID)
		if len(procs) == 0 {
			return nil, fmt.Errorf("timeline %q: %w", t.ID, ErrEmptyCatalog)
		}
		idx.starts = append(idx.starts, len(idx.entries))
		for pi, p := range procs {
			if _, dup := idx.byID[p.ID]; dup {
				return nil, fmt.Errorf("procedure %q: %w", p.ID, ErrDuplicateID)
			}
			p.TimelineID = t.ID
			idx.byID[p.ID] = len(idx.entries)
			idx.entries = append(idx.entries, Entry{
				Procedure: p,
				Cursor:    model.Cursor{Timeline: ti, Procedure: pi},
				Flat:      len(idx.entries),
				Last:      pi == len(procs)-1,
			})
		}
	}
	if len(idx.entries) == 0 {
		return nil, ErrEmptyCatalog
	}
	return idx, nil
}

// Len returns the number of procedures.
func (x *Index) Len() int { return len(x.entries) }

// TimelineCount returns the number of timelines.
func (x *Index) TimelineCount() int { return len(x.timelines) }

// Timeline returns the timeline at index i.
func (x *Index) Timeline(i int) (model.Timeline, bool) {
	if i < 0 || i >= len(x.timelines) {
		return model.Timeline{}, false
	}
	return x.timelines[i], true
}

// TimelineIndex resolves a timeline id to its index.
func (x *Index) TimelineIndex(id string) (int, bool) {
	i, ok := x.timelineAt[id]
	return i, ok
}

// TimelineSize returns the number of procedures in timeline i.
func (x *Index) TimelineSize(i int) int {
	if i < 0 || i >= len(x.starts) {
		return 0
	}
	end := len(x.entries)
	if i+1 < len(x.starts) {
		end = x.starts[i+1]
	}
	return end - x.starts[i]
}

// Locate resolves a procedure id.
func (x *Index) Locate(id string) (Entry, bool) {
	i, ok := x.byID[id]
	if !ok {
		return Entry{}, false
	}
	return x.entries[i], true
}

// Flat converts a cursor to its flattened position; Origin maps to -1.
func (x *Index) Flat(c model.Cursor) int {
	if c.Timeline < 0 {
		return -1
	}
	if c.Timeline >= len(x.starts) {
		return len(x.entries)
	}
	return x.starts[c.Timeline] + c.Procedure
}

// At returns the entry under a cursor.
func (x *Index) At(c model.Cursor) (Entry, bool) {
	if c.Timeline < 0 || c.Procedure < 0 || c.Procedure >= x.TimelineSize(c.Timeline) {
		return Entry{}, false
	}
	return x.entries[x.Flat(c)], true
}

// EntryAt returns the entry at a flattened position.
func (x *Index) EntryAt(flat int) (Entry, bool) {
	if flat < 0 || flat >= len(x.entries) {
		return Entry{}, false
	}
	return x.entries[flat], true
}

// FirstOf returns the first procedure of timeline i.
func (x *Index) FirstOf(i int) (Entry, bool) {
	if i < 0 || i >= len(x.starts) {
		return Entry{}, false
	}
	return x.entries[x.starts[i]], true
}

// Next returns the procedure following c in global order.
func (x *Index) Next(c model.Cursor) (Entry, bool) {
	return x.EntryAt(x.Flat(c) + 1)
}

// Between returns the procedures strictly between from and to in global order.
func (x *Index) Between(from, to model.Cursor) []Entry {
	lo, hi := x.Flat(from)+1, x.Flat(to)
	if lo < 0 {
		lo = 0
	}
	if hi > len(x.entries) {
		hi = len(x.entries)
	}
	if lo >= hi {
		return nil
	}
	out := make([]Entry, hi-lo)
	copy(out, x.entries[lo:hi])
	return out
}
