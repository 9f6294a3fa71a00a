package model

import "time"

// CommandKind names an inbound instructor command.
type CommandKind string

// Inbound commands.
const (
	CommandAdvanceProcedure CommandKind = "advance_procedure"
	CommandAdvanceTimeline  CommandKind = "advance_timeline"
	CommandSetState         CommandKind = "set_state"
	CommandForceOverride    CommandKind = "force_override"
)

// Command is an instructor command delivered by the command channel.
type Command struct {
	ID          string        `json:"id"`
	Kind        CommandKind   `json:"kind"`
	ProcedureID string        `json:"procedure_id,omitempty"`
	TimelineID  string        `json:"timeline_id,omitempty"`
	State       TrainingState `json:"state,omitempty"`
	Force       ForceKind     `json:"force,omitempty"`
	ReceivedAt  time.Time     `json:"received_at"`
}

// SignalKind names a callback raised by the world, the sensor or the actor.
type SignalKind string

// Signals.
const (
	SignalPlaybackFinished SignalKind = "playback_finished"
	SignalPostureConfirmed SignalKind = "posture_confirmed"
	SignalWorldReady       SignalKind = "world_ready"
	SignalEquip            SignalKind = "equip"
	SignalCordReleased     SignalKind = "cord_released"
	SignalAltitude         SignalKind = "altitude"
	SignalGroundContact    SignalKind = "ground_contact"
	SignalMilestone        SignalKind = "milestone_reached"
)

// Valid reports whether k is a known signal kind.
func (k SignalKind) Valid() bool {
	switch k {
	case SignalPlaybackFinished, SignalPostureConfirmed, SignalWorldReady, SignalEquip,
		SignalCordReleased, SignalAltitude, SignalGroundContact, SignalMilestone:
		return true
	}
	return false
}

// Signal is an external callback marshalled onto the engine thread.
// ProcedureID, when set, names the procedure the callback was raised for.
type Signal struct {
	Kind        SignalKind `json:"kind"`
	ProcedureID string     `json:"procedure_id,omitempty"`
	Item        string     `json:"item,omitempty"`
	Altitude    float64    `json:"altitude,omitempty"`
	Milestone   int        `json:"milestone,omitempty"`
	At          time.Time  `json:"at"`
}

// Input is one unit of work for the engine loop: a command or a signal.
type Input struct {
	Command *Command
	Signal  *Signal
}

// CommandInput wraps a command.
func CommandInput(c Command) Input { return Input{Command: &c} }

// SignalInput wraps a signal.
func SignalInput(s Signal) Input { return Input{Signal: &s} }

// EventKind names an outbound event.
type EventKind string

// Outbound events.
const (
	EventProcedureComplete EventKind = "procedure_complete"
	EventTimelineComplete  EventKind = "timeline_complete"
	EventTrainingStateAck  EventKind = "training_state_ack"
	EventSceneState        EventKind = "scene_state"
)

// Event is an outbound acknowledgement or result.
type Event struct {
	Seq         uint64        `json:"seq"`
	Kind        EventKind     `json:"kind"`
	SessionID   string        `json:"session_id"`
	ProcedureID string        `json:"procedure_id,omitempty"`
	TimelineID  string        `json:"timeline_id,omitempty"`
	Outcome     Outcome       `json:"outcome,omitempty"`
	Success     bool          `json:"success,omitempty"`
	State       TrainingState `json:"state,omitempty"`
	Scene       SceneState    `json:"scene,omitempty"`
	At          time.Time     `json:"at"`
}
