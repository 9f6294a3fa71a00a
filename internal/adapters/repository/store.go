// Package repository persists evaluation records handed over at session end.
package repository

import (
	"context"

	"github.com/okian/jumptrain/internal/domain/model"
)

const (
	defaultLimit = 100
	maxLimit     = 10000
)

// Query filters stored records. Empty fields match everything.
type Query struct {
	ParticipantID string
	SessionID     string
	Limit         int
}

// Store provides write-at-session-end and read access to evaluation records.
type Store interface {
	// Save stores the records of one session. Saving the same session again
	// replaces its records, so a retried handoff never duplicates rows.
	Save(ctx context.Context, participantID, sessionID string, records []model.EvaluationRecord) error

	// List returns records matching q ordered by recording time.
	List(ctx context.Context, q Query) ([]model.EvaluationRecord, error)

	// Sessions returns the number of sessions stored.
	Sessions(ctx context.Context) (int, error)
}

func normalize(q Query, limit int) (Query, error) {
	switch {
	case q.Limit < 0:
		return q, ErrInvalidLimit
	case q.Limit == 0:
		q.Limit = defaultLimit
	}
	if q.Limit > limit {
		q.Limit = limit
	}
	return q, nil
}
