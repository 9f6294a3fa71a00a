package model

import "time"

// Outcome is the recorded result of a procedure.
type Outcome string

// Outcomes. Forced marks completion through a privileged override.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeFail    Outcome = "fail"
	OutcomeSkipped Outcome = "skipped"
	OutcomeForced  Outcome = "forced"
)

// EvaluationRecord is the append-only result of one completed procedure.
type EvaluationRecord struct {
	SessionID     string    `json:"session_id"`
	ParticipantID string    `json:"participant_id"`
	ProcedureID   string    `json:"procedure_id"`
	EvaluationID  string    `json:"evaluation_id"`
	TimelineID    string    `json:"timeline_id"`
	Outcome       Outcome   `json:"outcome"`
	Score         float64   `json:"score"`
	Weight        float64   `json:"weight"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// TrainingState is the instructor-controlled session state.
type TrainingState string

// Training states.
const (
	StateReady  TrainingState = "ready"
	StateStart  TrainingState = "start"
	StatePause  TrainingState = "pause"
	StateResume TrainingState = "resume"
	StateEnd    TrainingState = "end"
)

// Valid reports whether s is a known training state.
func (s TrainingState) Valid() bool {
	switch s {
	case StateReady, StateStart, StatePause, StateResume, StateEnd:
		return true
	}
	return false
}

// ForceKind names a privileged override.
type ForceKind string

// Overrides.
const (
	ForceExit          ForceKind = "force_exit"
	ForceMainParachute ForceKind = "force_main_parachute"
	ForceTrainingEnd   ForceKind = "force_training_end"
)

// Valid reports whether k is a known override.
func (k ForceKind) Valid() bool {
	switch k {
	case ForceExit, ForceMainParachute, ForceTrainingEnd:
		return true
	}
	return false
}

// SceneState is reported around a world reload.
type SceneState string

// Scene states.
const (
	SceneLoading  SceneState = "loading"
	SceneComplete SceneState = "complete"
)
