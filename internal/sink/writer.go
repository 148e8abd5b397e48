// Package sink persists what happens on the bus: sensor readings, mode
// transitions and actuator output.
package sink

import "usv-kernel/internal/telemetry"

// SensorWriter handles sensor rows.
type SensorWriter interface {
	WriteSensor(telemetry.SensorRow) error
}

// Optional: writers may support batch mode for sensor rows.
type batchSensorWriter interface {
	WriteSensors([]telemetry.SensorRow) error
}

// StateWriter handles mode transition rows.
type StateWriter interface {
	WriteState(telemetry.StateRow) error
}

// ActuatorWriter handles actuator output rows.
type ActuatorWriter interface {
	WriteActuator(telemetry.ActuatorRow) error
}

// Writer handles every row kind.
type Writer interface {
	SensorWriter
	StateWriter
	ActuatorWriter
}

// WriteSensors writes rows through w, in one call when w supports batches.
func WriteSensors(w SensorWriter, rows []telemetry.SensorRow) error {
	if bw, ok := w.(batchSensorWriter); ok {
		return bw.WriteSensors(rows)
	}
	for _, r := range rows {
		if err := w.WriteSensor(r); err != nil {
			return err
		}
	}
	return nil
}
