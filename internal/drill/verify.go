package drill

import (
	"fmt"

	"github.com/okian/jumptrain/internal/domain/model"
)

// verify checks the events and records of one session against each other.
func verify(events []model.Event, records []model.EvaluationRecord, sessionID string) error {
	var last uint64
	reported := map[string]model.Outcome{}
	for _, ev := range events {
		if ev.Seq <= last {
			return fmt.Errorf("%w: event seq %d after %d", ErrVerification, ev.Seq, last)
		}
		last = ev.Seq
		if ev.Kind != model.EventProcedureComplete || ev.SessionID != sessionID {
			continue
		}
		if _, dup := reported[ev.ProcedureID]; dup {
			return fmt.Errorf("%w: procedure %s completed twice", ErrVerification, ev.ProcedureID)
		}
		reported[ev.ProcedureID] = ev.Outcome
	}

	seen := map[string]bool{}
	for _, rec := range records {
		if seen[rec.ProcedureID] {
			return fmt.Errorf("%w: procedure %s recorded twice", ErrVerification, rec.ProcedureID)
		}
		seen[rec.ProcedureID] = true
		outcome, ok := reported[rec.ProcedureID]
		switch {
		case !ok:
			return fmt.Errorf("%w: procedure %s recorded but never reported", ErrVerification, rec.ProcedureID)
		case outcome != rec.Outcome:
			return fmt.Errorf("%w: procedure %s reported %s, recorded %s", ErrVerification, rec.ProcedureID, outcome, rec.Outcome)
		}
	}
	if len(seen) != len(reported) {
		return fmt.Errorf("%w: %d procedures reported, %d recorded", ErrVerification, len(reported), len(seen))
	}
	return nil
}
