// Package sensor bridges the hardware sensor device to the engine. The
// device is opaque: connect, send, receive. The poller turns its readings
// into engine signals and hands them to the input queue.
package sensor

import (
	"context"
	"time"

	"github.com/okian/jumptrain/internal/domain/model"
)

// Reading kinds reported by the device.
const (
	ReadingAltitude = "altitude"
	ReadingCord     = "cord"
	ReadingGround   = "ground"
	ReadingEquip    = "equip"
	ReadingPosture  = "posture"
)

// Reading is one feedback message from the device.
type Reading struct {
	Kind        string    `json:"kind"`
	ProcedureID string    `json:"procedure_id,omitempty"`
	Altitude    float64   `json:"altitude,omitempty"`
	Item        string    `json:"item,omitempty"`
	At          time.Time `json:"at"`
}

// Command is an instruction sent to the device.
type Command struct {
	Op          string  `json:"op"`
	ProcedureID string  `json:"procedure_id,omitempty"`
	Altitude    float64 `json:"altitude,omitempty"`
}

// Device is the sensor hardware.
type Device interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, cmd Command) error
	// Receive blocks until the next reading arrives.
	Receive(ctx context.Context) (Reading, error)
	Close() error
}

// Translate maps a reading to the signal the engine understands.
func Translate(r Reading) (model.Signal, bool) {
	sig := model.Signal{ProcedureID: r.ProcedureID, At: r.At}
	switch r.Kind {
	case ReadingAltitude:
		sig.Kind = model.SignalAltitude
		sig.Altitude = r.Altitude
	case ReadingCord:
		sig.Kind = model.SignalCordReleased
	case ReadingGround:
		sig.Kind = model.SignalGroundContact
	case ReadingEquip:
		sig.Kind = model.SignalEquip
		sig.Item = r.Item
	case ReadingPosture:
		sig.Kind = model.SignalPostureConfirmed
	default:
		return model.Signal{}, false
	}
	return sig, true
}
