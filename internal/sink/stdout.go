package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"usv-kernel/internal/telemetry"
)

// JSONStdoutWriter prints rows as JSON lines.
type JSONStdoutWriter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to out, or os.Stdout
// when out is nil.
func NewJSONStdoutWriter(out io.Writer) *JSONStdoutWriter {
	if out == nil {
		out = os.Stdout
	}
	return &JSONStdoutWriter{out: out}
}

func (w *JSONStdoutWriter) print(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}

// WriteSensor outputs a sensor row in JSON format.
func (w *JSONStdoutWriter) WriteSensor(row telemetry.SensorRow) error { return w.print(row) }

// WriteSensors outputs multiple sensor rows in JSON format.
func (w *JSONStdoutWriter) WriteSensors(rows []telemetry.SensorRow) error {
	for _, r := range rows {
		if err := w.print(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteState outputs a mode transition in JSON format.
func (w *JSONStdoutWriter) WriteState(row telemetry.StateRow) error { return w.print(row) }

// WriteActuator outputs actuator output in JSON format.
func (w *JSONStdoutWriter) WriteActuator(row telemetry.ActuatorRow) error { return w.print(row) }

const (
	colorReset  = "\x1b[0m"
	colorRed    = "\x1b[31m"
	colorGreen  = "\x1b[32m"
	colorYellow = "\x1b[33m"
	colorBlue   = "\x1b[34m"
	colorCyan   = "\x1b[36m"
	colorGray   = "\x1b[90m"
)

// ColorStdoutWriter prints human-friendly, colorized rows. Sensor rows are
// only shown for the sensors in show; actuator rows only when they change.
type ColorStdoutWriter struct {
	mu   sync.Mutex
	out  io.Writer
	show map[telemetry.SensorKind]bool
	last *telemetry.ActuatorRow
}

// NewColorStdoutWriter creates a ColorStdoutWriter. With no sensors listed
// only GPS and battery rows are printed.
func NewColorStdoutWriter(out io.Writer, sensors ...telemetry.SensorKind) *ColorStdoutWriter {
	if out == nil {
		out = os.Stdout
	}
	if len(sensors) == 0 {
		sensors = []telemetry.SensorKind{telemetry.SensorGPS, telemetry.SensorBattery}
	}
	show := make(map[telemetry.SensorKind]bool, len(sensors))
	for _, k := range sensors {
		show[k] = true
	}
	return &ColorStdoutWriter{out: out, show: show}
}

func stateColor(s telemetry.VehicleState) string {
	switch s {
	case telemetry.StateEmergency:
		return colorRed
	case telemetry.StateCollisionDetection, telemetry.StateShoreDetection, telemetry.StateAdjustRudders:
		return colorYellow
	case telemetry.StateDrive, telemetry.StateGoToPoint:
		return colorGreen
	default:
		return colorGray
	}
}

func stamp(t time.Time) string { return t.Format("15:04:05.000") }

// WriteSensor prints selected sensor rows.
func (w *ColorStdoutWriter) WriteSensor(row telemetry.SensorRow) error {
	if !w.show[row.Sensor] {
		return nil
	}
	names := make([]string, 0, len(row.Values))
	for n := range row.Values {
		names = append(names, n)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = fmt.Sprintf("%s=%.6g", n, row.Values[n])
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintf(w.out, "%s %s%-7s%s %s\n", stamp(row.Timestamp), colorCyan, row.Sensor, colorReset, strings.Join(parts, " "))
	return err
}

// WriteState prints a mode transition.
func (w *ColorStdoutWriter) WriteState(row telemetry.StateRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintf(w.out, "%s %sSTATE%s   %s -> %s%s%s (%s)\n", stamp(row.Timestamp), colorBlue, colorReset,
		row.From, stateColor(row.To), row.To, colorReset, row.Reason)
	return err
}

// WriteActuator prints actuator output when it differs from the previous row.
func (w *ColorStdoutWriter) WriteActuator(row telemetry.ActuatorRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.last != nil && w.last.RudderAngle == row.RudderAngle && w.last.MotorPower == row.MotorPower && w.last.State == row.State {
		return nil
	}
	r := row
	w.last = &r
	_, err := fmt.Fprintf(w.out, "%s %sCMD%s     rudder=%d motor=%d [%s%s%s]\n", stamp(row.Timestamp), colorBlue, colorReset,
		row.RudderAngle, row.MotorPower, stateColor(row.State), row.State, colorReset)
	return err
}

// NewStdoutWriter picks the colorized writer for terminals and JSON otherwise.
func NewStdoutWriter(out io.Writer, colorize bool) Writer {
	if colorize {
		return NewColorStdoutWriter(out)
	}
	return NewJSONStdoutWriter(out)
}
