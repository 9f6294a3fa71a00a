package repository

import (
	"context"
	"slices"
	"sync"

	"github.com/okian/jumptrain/internal/domain/model"
)

// MemoryStore keeps records in process. It is the default when no database
// is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]model.EvaluationRecord
	order    []string // session ids in first-save order
	opts     options
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		sessions: map[string][]model.EvaluationRecord{},
		opts:     defaults(opts),
	}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, participantID, sessionID string, records []model.EvaluationRecord) error {
	if sessionID == "" {
		return ErrMissingSession
	}
	cp := make([]model.EvaluationRecord, len(records))
	for i, r := range records {
		r.SessionID = sessionID
		r.ParticipantID = participantID
		cp[i] = r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		s.order = append(s.order, sessionID)
	}
	s.sessions[sessionID] = cp
	return nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, q Query) ([]model.EvaluationRecord, error) {
	q, err := normalize(q, s.opts.maxLimit)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.EvaluationRecord
	for _, id := range s.order {
		if q.SessionID != "" && id != q.SessionID {
			continue
		}
		for _, r := range s.sessions[id] {
			if q.ParticipantID != "" && r.ParticipantID != q.ParticipantID {
				continue
			}
			out = append(out, r)
		}
	}
	slices.SortStableFunc(out, func(a, b model.EvaluationRecord) int {
		return a.RecordedAt.Compare(b.RecordedAt)
	})
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Sessions implements Store.
func (s *MemoryStore) Sessions(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions), nil
}
