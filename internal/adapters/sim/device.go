package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/jumptrain/internal/adapters/sensor"
)

// Device commands understood by the simulated sensor.
const (
	OpArm         = "arm"
	OpWatchGround = "watch_ground"
)

// descent is how far above the release altitude the simulated freefall
// starts, and how much altitude each step loses.
const (
	descentStart = 600.0
	descentStep  = 200.0
)

// Device is a simulated sensor. Arming the release streams a descent that
// crosses the release altitude; watching the ground reports contact.
type Device struct {
	step     time.Duration
	readings chan sensor.Reading

	mu        sync.Mutex
	connected bool
	stop      chan struct{}
}

// NewDevice creates a simulated sensor device.
func NewDevice(step time.Duration) *Device {
	if step <= 0 {
		step = defaultStep
	}
	return &Device{
		step:     step,
		readings: make(chan sensor.Reading, 64),
	}
}

// Connect implements sensor.Device.
func (d *Device) Connect(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		d.connected = true
		d.stop = make(chan struct{})
	}
	return nil
}

// Send implements sensor.Device.
func (d *Device) Send(_ context.Context, cmd sensor.Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return sensor.ErrNotConnected
	}
	switch cmd.Op {
	case OpArm:
		var seq []sensor.Reading
		for alt := cmd.Altitude + descentStart; alt >= cmd.Altitude; alt -= descentStep {
			seq = append(seq, sensor.Reading{Kind: sensor.ReadingAltitude, ProcedureID: cmd.ProcedureID, Altitude: alt})
		}
		go d.stream(d.stop, seq)
	case OpWatchGround:
		go d.stream(d.stop, []sensor.Reading{{}, {}, {Kind: sensor.ReadingGround, ProcedureID: cmd.ProcedureID}})
	default:
		return fmt.Errorf("unknown device op %q", cmd.Op)
	}
	return nil
}

// stream emits readings one step apart. Empty readings are pauses.
func (d *Device) stream(stop <-chan struct{}, seq []sensor.Reading) {
	t := time.NewTicker(d.step)
	defer t.Stop()
	for _, r := range seq {
		select {
		case <-stop:
			return
		case <-t.C:
		}
		if r.Kind == "" {
			continue
		}
		r.At = time.Now().UTC()
		select {
		case d.readings <- r:
		case <-stop:
			return
		}
	}
}

// Receive implements sensor.Device.
func (d *Device) Receive(ctx context.Context) (sensor.Reading, error) {
	d.mu.Lock()
	stop := d.stop
	d.mu.Unlock()
	if stop == nil {
		return sensor.Reading{}, sensor.ErrNotConnected
	}
	select {
	case r := <-d.readings:
		return r, nil
	case <-stop:
		return sensor.Reading{}, sensor.ErrDisconnected
	case <-ctx.Done():
		return sensor.Reading{}, ctx.Err()
	}
}

// Close implements sensor.Device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.connected {
		d.connected = false
		close(d.stop)
	}
	return nil
}
