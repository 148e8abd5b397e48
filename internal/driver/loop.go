// Package driver runs the fixed-period control loop. It owns the serial link
// and the vessel state machine: every read, decode, state update and actuator
// write happens on the Run goroutine.
package driver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"usv-kernel/internal/bus"
	"usv-kernel/internal/codec"
	"usv-kernel/internal/config"
	"usv-kernel/internal/logging"
	"usv-kernel/internal/observability"
	"usv-kernel/internal/telemetry"
	"usv-kernel/internal/vessel"
)

// Link is the byte stream to the sensor and actuator firmware.
type Link interface {
	io.ReadWriteCloser
	SetReadTimeout(time.Duration) error
}

// Opener opens a fresh link. It is called again after every link failure.
type Opener func(ctx context.Context) (Link, error)

// Publisher receives the events the loop emits.
type Publisher interface {
	Publish(bus.Payload)
}

const (
	commandQueueSize = 64
	readChunk        = 512
	// maxReadsPerCycle bounds the time a chatty link can hold a cycle.
	maxReadsPerCycle = 8
)

// Loop is the driver loop.
type Loop struct {
	ctrl        config.Control
	readTimeout time.Duration
	open        Opener
	machine     *vessel.Machine
	pub         Publisher
	dec         *codec.Decoder
	commands    chan bus.CommandEvent
	retry       *backoff.ExponentialBackOff
	log         *slog.Logger
	now         func() time.Time

	link        Link
	nextAttempt time.Time
	linkDown    bool
	lastSeen    map[telemetry.SensorKind]time.Time
	stale       map[telemetry.SensorKind]bool
	buf         []byte
	last        telemetry.ActuatorCommand
}

// Option customises a Loop.
type Option func(*Loop)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

// WithLogger sets the loop logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.log = logger }
}

// New builds a loop around machine. Events go to pub; the link comes from open.
func New(cfg *config.Config, open Opener, machine *vessel.Machine, pub Publisher, opts ...Option) *Loop {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = cfg.Control.RetryInitial
	retry.MaxInterval = cfg.Control.RetryMax
	retry.Multiplier = 2
	retry.RandomizationFactor = 0.2

	l := &Loop{
		ctrl:        cfg.Control,
		readTimeout: cfg.Serial.ReadTimeout,
		open:        open,
		machine:     machine,
		pub:         pub,
		dec:         codec.NewDecoder(),
		commands:    make(chan bus.CommandEvent, commandQueueSize),
		retry:       retry,
		log:         slog.Default(),
		now:         time.Now,
		lastSeen:    make(map[telemetry.SensorKind]time.Time),
		stale:       make(map[telemetry.SensorKind]bool),
		buf:         make([]byte, readChunk),
		last:        telemetry.SafeCommand,
	}
	for _, o := range opts {
		o(l)
	}
	l.log = l.log.With("component", "driver")
	l.dec.SetClock(l.now)
	// safety sensors get one staleness timeout from boot to report in
	start := l.now()
	for _, k := range l.ctrl.SafetySensors {
		l.lastSeen[k] = start
	}
	return l
}

// Submit queues a command for the next cycle. It reports false when the
// queue is full; the command is dropped and acknowledged as rejected.
func (l *Loop) Submit(cmd bus.CommandEvent) bool {
	select {
	case l.commands <- cmd:
		return true
	default:
		l.pub.Publish(bus.CommandAckEvent{ID: cmd.ID, Name: cmd.Name, Reason: "command queue full"})
		return false
	}
}

// HandleCommandEvent is a bus handler forwarding COMMAND events to Submit.
func (l *Loop) HandleCommandEvent(_ context.Context, ev bus.Event) error {
	cmd, ok := ev.Payload.(bus.CommandEvent)
	if !ok {
		return fmt.Errorf("unexpected payload %T", ev.Payload)
	}
	if !l.Submit(cmd) {
		return fmt.Errorf("command %s dropped: queue full", cmd.ID)
	}
	return nil
}

// LastCommand returns the actuator command of the latest cycle. Call it from
// the goroutine running the loop.
func (l *Loop) LastCommand() telemetry.ActuatorCommand { return l.last }

// Run executes cycles every control period until ctx is cancelled, then
// writes the safe command and closes the link. A cycle that overruns its
// period is followed immediately by the next one, and the schedule restarts
// from there.
func (l *Loop) Run(ctx context.Context) error {
	logger := logging.FromContext(ctx)
	if logger != slog.Default() {
		l.log = logger.With("component", "driver")
	}
	defer l.shutdown()

	period := l.ctrl.Period
	timer := time.NewTimer(0)
	defer timer.Stop()

	next := l.now()
	prev := next.Add(-period)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		start := l.now()
		l.Cycle(ctx, start.Sub(prev))
		prev = start

		next = next.Add(period)
		end := l.now()
		if elapsed := end.Sub(start); elapsed > period {
			l.log.Warn("control cycle overrun", "elapsed", elapsed, "period", period)
		}
		if end.After(next) {
			next = end
		}
		timer.Reset(next.Sub(end))
	}
}

// Cycle runs one control cycle covering dt.
func (l *Loop) Cycle(ctx context.Context, dt time.Duration) {
	start := l.now()
	if dt <= 0 {
		dt = l.ctrl.Period
	}
	observability.Cycles.Inc()

	l.drainCommands()
	l.ensureLink(ctx)
	l.readAndDecode()
	l.checkStaleness()

	cmd := l.machine.Step(dt)
	l.write(cmd)

	elapsed := l.now().Sub(start)
	overrun := elapsed > l.ctrl.Period
	if overrun {
		observability.CycleOverruns.Inc()
	}
	observability.CycleDuration.Observe(elapsed.Seconds())
	observability.VehicleState.Set(float64(l.machine.State()))
	observability.RudderAngle.Set(float64(cmd.RudderAngle))
	observability.MotorPower.Set(float64(cmd.MotorPower))
	l.pub.Publish(bus.ActuatorEvent{Command: cmd, State: l.machine.State(), Overrun: overrun})
}

func (l *Loop) drainCommands() {
	for {
		select {
		case cmd := <-l.commands:
			ack := l.machine.HandleCommand(cmd)
			if !ack.Accepted {
				observability.InvalidTransitions.Inc()
				l.pub.Publish(bus.StatusEvent{
					Code:    bus.StatusInvalidCommand,
					Message: fmt.Sprintf("%s: %s", cmd.Name, ack.Reason),
				})
			}
			l.pub.Publish(ack)
		default:
			return
		}
	}
}

// ensureLink opens the link when it is down and the retry delay has passed.
func (l *Loop) ensureLink(ctx context.Context) {
	if l.link != nil {
		return
	}
	now := l.now()
	if now.Before(l.nextAttempt) {
		return
	}
	link, err := l.open(ctx)
	if err != nil {
		l.linkFailed(fmt.Errorf("open link: %w", err))
		return
	}
	if l.readTimeout > 0 {
		if err := link.SetReadTimeout(l.readTimeout); err != nil {
			link.Close()
			l.linkFailed(fmt.Errorf("set read timeout: %w", err))
			return
		}
	}
	l.link = link
	l.linkDown = false
	l.retry.Reset()
	l.dec.Reset()
	observability.LinkReconnects.Inc()
	l.log.Info("link up")
	l.pub.Publish(bus.StatusEvent{Code: bus.StatusLinkUp, Message: "serial link open"})
}

// linkFailed drops the link and schedules the next open attempt.
func (l *Loop) linkFailed(err error) {
	if l.link != nil {
		l.link.Close()
		l.link = nil
	}
	wait := l.retry.NextBackOff()
	l.nextAttempt = l.now().Add(wait)
	observability.LinkFailures.Inc()
	if !l.linkDown {
		l.log.Error("link unavailable", "error", err, "retry_in", wait)
	} else {
		l.log.Debug("link still unavailable", "error", err, "retry_in", wait)
	}
	l.linkDown = true
	l.pub.Publish(bus.StatusEvent{Code: bus.StatusLinkUnavailable, Message: err.Error()})
}

func (l *Loop) readAndDecode() {
	if l.link == nil {
		return
	}
	for i := 0; i < maxReadsPerCycle; i++ {
		n, err := l.link.Read(l.buf)
		if n > 0 {
			l.decode(l.buf[:n])
		}
		if err != nil {
			l.linkFailed(fmt.Errorf("read: %w", err))
			return
		}
		if n < len(l.buf) {
			return
		}
	}
}

func (l *Loop) decode(p []byte) {
	readings, err := l.dec.Decode(p)
	if err != nil {
		observability.FrameErrors.Inc()
		l.log.Debug("frame error", "error", err)
		l.pub.Publish(bus.StatusEvent{Code: bus.StatusFrameError, Message: err.Error()})
	}
	for _, r := range readings {
		observability.FramesDecoded.Inc()
		observability.Readings.WithLabelValues(string(r.Kind())).Inc()
		l.pub.Publish(bus.SensorUpdateEvent{Reading: r})
		l.machine.HandleReading(r)
		// positions without a fix do not count as fresh GPS data
		if r.Kind() == telemetry.SensorGPS && !l.machine.HasFix() {
			continue
		}
		l.lastSeen[r.Kind()] = r.Time()
	}
}

// checkStaleness flags safety sensors that have not reported within the
// staleness timeout and clears the flag once they report again.
func (l *Loop) checkStaleness() {
	now := l.now()
	for _, k := range l.ctrl.SafetySensors {
		age := now.Sub(l.lastSeen[k])
		switch {
		case age > l.ctrl.StalenessTimeout && !l.stale[k]:
			l.stale[k] = true
			observability.StaleSensors.WithLabelValues(string(k)).Inc()
			l.log.Warn("stale sensor data", "sensor", k, "age", age)
			l.machine.MarkStale(k)
			l.pub.Publish(bus.StatusEvent{
				Code:    bus.StatusStaleData,
				Message: fmt.Sprintf("no %s data for %s", k, age.Round(time.Millisecond)),
			})
		case age <= l.ctrl.StalenessTimeout && l.stale[k]:
			delete(l.stale, k)
			l.machine.MarkFresh(k)
			l.log.Info("sensor data fresh again", "sensor", k)
			l.pub.Publish(bus.StatusEvent{Code: bus.StatusDataFresh, Message: fmt.Sprintf("%s data fresh", k)})
		}
	}
}

func (l *Loop) write(cmd telemetry.ActuatorCommand) {
	l.last = cmd
	if l.link == nil {
		return
	}
	frame, err := codec.EncodeCommand(cmd)
	if err != nil {
		// the machine clamps its output, so this is a configuration bug
		l.log.Error("actuator command not encodable", "command", cmd, "error", err)
		frame, _ = codec.EncodeCommand(telemetry.SafeCommand)
	}
	if _, err := l.link.Write(frame); err != nil {
		l.linkFailed(fmt.Errorf("write: %w", err))
	}
}

func (l *Loop) shutdown() {
	if l.link != nil {
		if frame, err := codec.EncodeCommand(telemetry.SafeCommand); err == nil {
			if _, err := l.link.Write(frame); err != nil {
				l.log.Warn("safe command not written", "error", err)
			}
		}
		l.link.Close()
		l.link = nil
	}
	l.last = telemetry.SafeCommand
	l.log.Info("driver stopped")
	l.pub.Publish(bus.StatusEvent{Code: bus.StatusShutdown, Message: "driver loop stopped"})
}
