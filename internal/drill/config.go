// Package drill runs a scripted instructor session against a live server
// and checks the channel's guarantees: duplicate command ids are applied
// once, event sequence numbers only grow, and every recorded procedure is
// reported exactly once.
package drill

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/okian/jumptrain/pkg/validation"
)

//go:embed default_script.yaml
var defaultScript []byte

// Config holds configuration for a drill run.
type Config struct {
	BaseURL      string        // Base URL of the service
	Copies       int           // How many times each command is sent concurrently
	Timeout      time.Duration // HTTP request timeout
	WaitTimeout  time.Duration // Default limit for a step's wait
	PollInterval time.Duration // How often waits poll the server
	OutputFile   string        // Where to save the received events; empty skips
	Verbose      bool          // Log every request
}

// Script is an ordered list of steps.
type Script struct {
	Name  string `yaml:"name" validate:"required"`
	Steps []Step `yaml:"steps" validate:"required,min=1,dive"`
}

// Step sends a command or a signal, or pauses, then optionally waits.
type Step struct {
	Command *CommandSpec  `yaml:"command" validate:"omitempty"`
	Signal  *SignalSpec   `yaml:"signal" validate:"omitempty"`
	Pause   time.Duration `yaml:"pause"`
	Wait    *WaitSpec     `yaml:"wait" validate:"omitempty"`
}

// CommandSpec mirrors the POST /commands body without the id, which the
// drill generates.
type CommandSpec struct {
	Kind        string `yaml:"kind" json:"kind" validate:"required,oneof=advance_procedure advance_timeline set_state force_override"`
	ProcedureID string `yaml:"procedure_id" json:"procedure_id,omitempty"`
	TimelineID  string `yaml:"timeline_id" json:"timeline_id,omitempty"`
	State       string `yaml:"state" json:"state,omitempty"`
	Force       string `yaml:"force" json:"force,omitempty"`
}

// SignalSpec mirrors the POST /signals body.
type SignalSpec struct {
	Kind        string  `yaml:"kind" json:"kind" validate:"required"`
	ProcedureID string  `yaml:"procedure_id" json:"procedure_id,omitempty"`
	Item        string  `yaml:"item" json:"item,omitempty"`
	Altitude    float64 `yaml:"altitude" json:"altitude,omitempty"`
	Milestone   int     `yaml:"milestone" json:"milestone,omitempty"`
}

// WaitSpec holds a step until an event arrives or the engine reaches a state.
// Empty fields match anything.
type WaitSpec struct {
	Event       string        `yaml:"event"`
	ProcedureID string        `yaml:"procedure_id"`
	Outcome     string        `yaml:"outcome"`
	State       string        `yaml:"state"`
	Active      string        `yaml:"active"`
	Timeout     time.Duration `yaml:"timeout"`
}

// DefaultScript returns the built-in drill for the built-in scenario.
func DefaultScript() (*Script, error) {
	return parseScript(defaultScript)
}

// LoadScript reads a drill script from a YAML file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", path, err)
	}
	return parseScript(data)
}

func parseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if err := validation.New("yaml").Struct(&s); err != nil {
		return nil, err
	}
	for i, st := range s.Steps {
		if st.Command == nil && st.Signal == nil && st.Pause == 0 && st.Wait == nil {
			return nil, fmt.Errorf("step %d does nothing", i)
		}
	}
	return &s, nil
}

// AckResponse represents the response from command submission.
type AckResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// Stats holds run statistics.
type Stats struct {
	CommandsSent      int
	CommandsAccepted  int
	CommandsDuplicate int
	CommandsFailed    int
	SignalsSent       int
	EventsReceived    int
	RecordsRetrieved  int
	StartTime         time.Time
	EndTime           time.Time
	Duration          time.Duration
}
