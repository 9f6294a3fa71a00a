package sensor

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/jumptrain/internal/domain/model"
	"github.com/okian/jumptrain/pkg/logger"
	"github.com/okian/jumptrain/pkg/metrics"
)

// Enqueuer accepts inputs for the engine thread.
type Enqueuer interface {
	Enqueue(ctx context.Context, in model.Input) bool
}

// Poller runs the device receive loop.
type Poller struct {
	device    Device
	queue     Enqueuer
	reconnect *rate.Limiter
	now       func() time.Time
	log       logger.Logger
}

// NewPoller creates a poller feeding queue from device.
func NewPoller(device Device, queue Enqueuer, opts ...Option) *Poller {
	p := &Poller{
		device:    device,
		queue:     queue,
		reconnect: rate.NewLimiter(rate.Every(time.Second), 1),
		now:       func() time.Time { return time.Now().UTC() },
		log:       logger.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run connects and forwards readings until ctx is done. A failed connection
// or receive is retried, at most once per reconnect interval.
func (p *Poller) Run(ctx context.Context) error {
	defer func() {
		if err := p.device.Close(); err != nil {
			p.log.Warn(ctx, "close sensor device failed", logger.Error(err))
		}
	}()

	for {
		if err := p.reconnect.Wait(ctx); err != nil {
			return nil
		}
		if err := p.device.Connect(ctx); err != nil {
			p.log.Error(ctx, "sensor connect failed", logger.Error(err))
			metrics.RecordErrorByComponent("sensor", "connect")
			continue
		}
		p.log.Info(ctx, "sensor connected")

		err := p.receive(ctx)
		if ctx.Err() != nil {
			return nil
		}
		p.log.Warn(ctx, "sensor stream lost, reconnecting", logger.Error(err))
		metrics.RecordErrorByComponent("sensor", "receive")
	}
}

func (p *Poller) receive(ctx context.Context) error {
	for {
		r, err := p.device.Receive(ctx)
		if err != nil {
			return err
		}
		p.Forward(ctx, r)
	}
}

// Forward translates one reading and enqueues it.
func (p *Poller) Forward(ctx context.Context, r Reading) bool {
	sig, ok := Translate(r)
	if !ok {
		p.log.Debug(ctx, "ignoring unknown sensor reading", logger.String("kind", r.Kind))
		metrics.RecordSignal(r.Kind, "unknown")
		return false
	}
	if sig.At.IsZero() {
		sig.At = p.now()
	}
	if !p.queue.Enqueue(ctx, model.SignalInput(sig)) {
		p.log.Warn(ctx, "input queue full, sensor reading dropped", logger.String("kind", r.Kind))
		return false
	}
	return true
}
