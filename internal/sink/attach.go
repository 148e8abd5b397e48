package sink

import (
	"context"
	"fmt"
	"log/slog"

	"usv-kernel/internal/bus"
	"usv-kernel/internal/observability"
	"usv-kernel/internal/telemetry"
)

// Subscriber is the part of the bus Attach needs.
type Subscriber interface {
	Subscribe(kind bus.Kind, name string, h bus.Handler)
}

// Attach subscribes w to the bus under name. Sensor updates always flow to
// w; mode transitions and actuator output only when w implements StateWriter
// or ActuatorWriter.
func Attach(sub Subscriber, name, vesselID string, w SensorWriter, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "sink", "sink", name)
	fail := func(err error) error {
		observability.SinkErrors.WithLabelValues(name).Inc()
		log.Warn("sink write failed", "error", err)
		return err
	}

	sub.Subscribe(bus.SensorUpdate, name, func(_ context.Context, ev bus.Event) error {
		p, ok := ev.Payload.(bus.SensorUpdateEvent)
		if !ok {
			return fmt.Errorf("unexpected payload %T", ev.Payload)
		}
		if err := w.WriteSensor(telemetry.NewSensorRow(vesselID, p.Reading)); err != nil {
			return fail(err)
		}
		return nil
	})

	if sw, ok := w.(StateWriter); ok {
		sub.Subscribe(bus.StateChange, name, func(_ context.Context, ev bus.Event) error {
			p, ok := ev.Payload.(bus.StateChangeEvent)
			if !ok {
				return fmt.Errorf("unexpected payload %T", ev.Payload)
			}
			row := telemetry.StateRow{VesselID: vesselID, From: p.From, To: p.To, Reason: p.Reason, Timestamp: ev.At}
			if err := sw.WriteState(row); err != nil {
				return fail(err)
			}
			return nil
		})
	}

	if aw, ok := w.(ActuatorWriter); ok {
		sub.Subscribe(bus.Actuator, name, func(_ context.Context, ev bus.Event) error {
			p, ok := ev.Payload.(bus.ActuatorEvent)
			if !ok {
				return fmt.Errorf("unexpected payload %T", ev.Payload)
			}
			row := telemetry.ActuatorRow{
				VesselID:    vesselID,
				State:       p.State,
				RudderAngle: p.Command.RudderAngle,
				MotorPower:  p.Command.MotorPower,
				Timestamp:   ev.At,
			}
			if err := aw.WriteActuator(row); err != nil {
				return fail(err)
			}
			return nil
		})
	}
}
