// Package dedupe tracks command ids so a retried instructor command is
// applied at most once.
package dedupe

import (
	"context"
	"sync"
)

// Deduper records seen command IDs.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id, so a command that was rejected before reaching
	// the engine (queue full) can be retried with the same id.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// inMemoryDeduper keeps ids in insertion order and evicts the oldest once
// maxSize is reached. maxSize <= 0 means unbounded.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]uint64 // id -> insertion sequence
	order   []slot            // ring of recorded ids, oldest at head
	head    int
	count   int
	seq     uint64
	maxSize int
}

type slot struct {
	id  string
	seq uint64
}

// NewInMemoryDeduper creates a new in-memory deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 4096,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]uint64)
	if d.maxSize > 0 {
		d.order = make([]slot, d.maxSize)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}
	d.seq++
	d.seen[id] = d.seq
	if d.maxSize <= 0 {
		return false
	}

	if d.count == d.maxSize {
		d.evictOldest()
	}
	d.order[(d.head+d.count)%d.maxSize] = slot{id: id, seq: d.seq}
	d.count++
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; !ok {
		return
	}
	delete(d.seen, id)
	// The ring slot stays; evictOldest skips slots whose sequence is gone.
}

// evictOldest frees the head slot, forgetting its id unless it was
// unrecorded or recorded again since. Must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	s := d.order[d.head]
	d.order[d.head] = slot{}
	d.head = (d.head + 1) % d.maxSize
	d.count--
	if seq, live := d.seen[s.id]; live && seq == s.seq {
		delete(d.seen, s.id)
	}
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
