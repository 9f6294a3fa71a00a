// Package channel is the outbound half of the instructor command channel:
// every engine event gets a sequence number and is kept in a bounded backlog
// that HTTP clients read with Since and live subscribers receive as it happens.
package channel

import (
	"context"
	"sync"

	"github.com/okian/jumptrain/internal/domain/model"
	"github.com/okian/jumptrain/pkg/logger"
	"github.com/okian/jumptrain/pkg/metrics"
)

const (
	defaultBacklog    = 1024
	defaultSubscriber = 64
)

// Feed implements the orchestrator's Emitter.
type Feed struct {
	mu      sync.RWMutex
	backlog []model.Event // ring, oldest at head
	head    int
	count   int
	seq     uint64
	subs    map[uint64]chan model.Event
	nextSub uint64
	log     logger.Logger
}

// NewFeed creates an empty feed.
func NewFeed(opts ...Option) *Feed {
	f := &Feed{
		backlog: make([]model.Event, defaultBacklog),
		subs:    map[uint64]chan model.Event{},
		log:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Emit assigns the next sequence number and publishes ev. Slow subscribers
// miss events instead of blocking the engine; they can catch up with Since.
func (f *Feed) Emit(ctx context.Context, ev model.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	ev.Seq = f.seq
	capacity := len(f.backlog)
	if f.count == capacity {
		f.head = (f.head + 1) % capacity
		f.count--
	}
	f.backlog[(f.head+f.count)%capacity] = ev
	f.count++

	for id, ch := range f.subs {
		select {
		case ch <- ev:
		default:
			metrics.RecordErrorByComponent("channel", "subscriber_full")
			f.log.Warn(ctx, "subscriber lagging, event dropped", logger.Int("subscriber", int(id)), logger.Int("seq", int(ev.Seq)))
		}
	}
}

// Since returns up to limit backlog events with a sequence number greater
// than after, oldest first. limit <= 0 returns everything available.
func (f *Feed) Since(after uint64, limit int) []model.Event {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var out []model.Event
	for i := range f.count {
		ev := f.backlog[(f.head+i)%len(f.backlog)]
		if ev.Seq <= after {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Last returns the sequence number of the newest event.
func (f *Feed) Last() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.seq
}

// Subscribe returns a channel receiving every event emitted from now on and
// a cancel function that closes it.
func (f *Feed) Subscribe() (<-chan model.Event, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextSub
	f.nextSub++
	ch := make(chan model.Event, defaultSubscriber)
	f.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.subs, id)
			close(ch)
		})
	}
}
