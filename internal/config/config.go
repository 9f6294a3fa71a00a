// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and JUMPTRAIN_* env vars on top and validates.
// - External errors are wrapped with this package's sentinels.
package config

import "time"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn error"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr" validate:"required"`

	// QueueSize bounds the engine's input queue.
	QueueSize int `koanf:"queue_size" validate:"gt=0"`

	// TickIntervalMS is how often the engine polls waits when no input arrives.
	TickIntervalMS int `koanf:"tick_interval_ms" validate:"gt=0,lte=1000"`

	// CatalogPath points at a curriculum YAML file; empty uses the built-in catalog.
	CatalogPath string `koanf:"catalog_path"`

	// JumpType filters timelines by jump type; empty keeps all.
	JumpType string `koanf:"jump_type"`

	// ParticipantID is attached to every evaluation record.
	ParticipantID string `koanf:"participant_id" validate:"required"`

	// StoreDriver selects the evaluation store: memory, sqlite or postgres.
	StoreDriver string `koanf:"store_driver" validate:"oneof=memory sqlite postgres"`

	// StoreDSN is the database connection string for sqlite or postgres.
	StoreDSN string `koanf:"store_dsn" validate:"required_if=StoreDriver postgres"`

	// CommandRate limits inbound commands per second; 0 disables the limit.
	CommandRate float64 `koanf:"command_rate" validate:"gte=0"`

	// CommandBurst is the limiter's burst size.
	CommandBurst int `koanf:"command_burst" validate:"gte=1"`

	// DedupeSize sets how many command ids are remembered.
	DedupeSize int `koanf:"dedupe_size" validate:"gt=0"`

	// EventBacklog sets how many outbound events are kept for GET /events.
	EventBacklog int `koanf:"event_backlog" validate:"gt=0"`

	// Simulate runs the built-in simulated world and sensor.
	Simulate bool `koanf:"simulate"`

	// SimStepMS is the simulated world's step.
	SimStepMS int `koanf:"sim_step_ms" validate:"gt=0"`

	// ForceExitStep is the step name ForceExit is allowed on.
	ForceExitStep string `koanf:"force_exit_step" validate:"required"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:       "info",
		LogFormat:      "text",
		Addr:           ":9080",
		QueueSize:      1024,
		TickIntervalMS: 50,
		ParticipantID:  "participant",
		StoreDriver:    "memory",
		CommandRate:    20,
		CommandBurst:   40,
		DedupeSize:     4096,
		EventBacklog:   1024,
		SimStepMS:      500,
		ForceExitStep:  "GoJump",
	}
}

// TickInterval returns TickIntervalMS as a duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMS) * time.Millisecond
}

// SimStep returns SimStepMS as a duration.
func (c *Config) SimStep() time.Duration {
	return time.Duration(c.SimStepMS) * time.Millisecond
}
