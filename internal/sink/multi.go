package sink

import (
	"errors"

	"usv-kernel/internal/telemetry"
)

// MultiWriter fans rows out to several writers. A failing writer does not
// keep the row from the others; all errors are returned joined.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a new MultiWriter. Nil writers are skipped.
func NewMultiWriter(ws ...Writer) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range ws {
		if w != nil {
			mw.writers = append(mw.writers, w)
		}
	}
	return mw
}

// Writers returns the fan-out targets.
func (mw *MultiWriter) Writers() []Writer { return mw.writers }

// WriteSensor sends a sensor row to all writers.
func (mw *MultiWriter) WriteSensor(row telemetry.SensorRow) error {
	var errs []error
	for _, w := range mw.writers {
		errs = append(errs, w.WriteSensor(row))
	}
	return errors.Join(errs...)
}

// WriteSensors sends rows to all writers, using batch mode where supported.
func (mw *MultiWriter) WriteSensors(rows []telemetry.SensorRow) error {
	var errs []error
	for _, w := range mw.writers {
		errs = append(errs, WriteSensors(w, rows))
	}
	return errors.Join(errs...)
}

// WriteState sends a mode transition to all writers.
func (mw *MultiWriter) WriteState(row telemetry.StateRow) error {
	var errs []error
	for _, w := range mw.writers {
		errs = append(errs, w.WriteState(row))
	}
	return errors.Join(errs...)
}

// WriteActuator sends actuator output to all writers.
func (mw *MultiWriter) WriteActuator(row telemetry.ActuatorRow) error {
	var errs []error
	for _, w := range mw.writers {
		errs = append(errs, w.WriteActuator(row))
	}
	return errors.Join(errs...)
}
