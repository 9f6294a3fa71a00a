package drill

import "errors"

// Sentinel errors reported by a drill run.
var (
	ErrDuplicateApplied = errors.New("command id not applied exactly once")
	ErrWaitTimeout      = errors.New("wait timed out")
	ErrVerification     = errors.New("verification failed")
)
