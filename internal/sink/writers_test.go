package sink

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"usv-kernel/internal/telemetry"
)

type collectWriter struct {
	sensors   []telemetry.SensorRow
	states    []telemetry.StateRow
	actuators []telemetry.ActuatorRow
	batches   int
	err       error
}

func (c *collectWriter) WriteSensor(r telemetry.SensorRow) error {
	if c.err != nil {
		return c.err
	}
	c.sensors = append(c.sensors, r)
	return nil
}

func (c *collectWriter) WriteState(r telemetry.StateRow) error {
	c.states = append(c.states, r)
	return c.err
}

func (c *collectWriter) WriteActuator(r telemetry.ActuatorRow) error {
	c.actuators = append(c.actuators, r)
	return c.err
}

type batchCollectWriter struct{ collectWriter }

func (b *batchCollectWriter) WriteSensors(rows []telemetry.SensorRow) error {
	b.batches++
	b.sensors = append(b.sensors, rows...)
	return nil
}

func sensorRow(sec int64) telemetry.SensorRow {
	return telemetry.NewSensorRow("usv-1", telemetry.GPS{Coord: telemetry.GpsCoord{Lat: 45, Lon: 14}, At: time.Unix(sec, 0).UTC()})
}

func TestFileWriter(t *testing.T) {
	dir := t.TempDir()
	sensorPath := filepath.Join(dir, "sensors.jsonl")
	statePath := filepath.Join(dir, "state.jsonl")
	fw, err := NewFileWriter(sensorPath, statePath, "")
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	if err := fw.WriteSensors([]telemetry.SensorRow{sensorRow(0), sensorRow(1)}); err != nil {
		t.Fatalf("WriteSensors: %v", err)
	}
	if err := fw.WriteState(telemetry.StateRow{VesselID: "usv-1", From: telemetry.StateStop, To: telemetry.StateDrive}); err != nil {
		t.Fatalf("WriteState: %v", err)
	}
	if err := fw.WriteActuator(telemetry.ActuatorRow{}); err != nil {
		t.Fatalf("disabled actuator log should be a no-op: %v", err)
	}
	if err := fw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(sensorPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	lines := 0
	for sc.Scan() {
		var got telemetry.SensorRow
		if err := json.Unmarshal(sc.Bytes(), &got); err != nil {
			t.Fatalf("decode sensor row: %v", err)
		}
		if got.Sensor != telemetry.SensorGPS || got.Values["lat"] != 45 {
			t.Fatalf("unexpected row: %#v", got)
		}
		lines++
	}
	if lines != 2 {
		t.Fatalf("sensor lines = %d, want 2", lines)
	}

	b, err := os.ReadFile(statePath)
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	var st telemetry.StateRow
	if err := json.Unmarshal(b, &st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if st.To != telemetry.StateDrive {
		t.Fatalf("state row = %+v", st)
	}
}

func TestMultiWriterFansOutDespiteFailure(t *testing.T) {
	bad := &collectWriter{err: errors.New("boom")}
	good := &collectWriter{}
	batch := &batchCollectWriter{}
	mw := NewMultiWriter(bad, nil, good, batch)
	if len(mw.Writers()) != 3 {
		t.Fatalf("nil writer not skipped")
	}
	if err := mw.WriteSensor(sensorRow(0)); err == nil {
		t.Fatalf("expected joined error")
	}
	if len(good.sensors) != 1 {
		t.Fatalf("good writer missed the row")
	}
	if err := mw.WriteSensors([]telemetry.SensorRow{sensorRow(1), sensorRow(2)}); err == nil {
		t.Fatalf("expected joined error")
	}
	if len(good.sensors) != 3 || batch.batches != 1 || len(batch.sensors) != 3 {
		t.Fatalf("good=%d batch=%d/%d", len(good.sensors), batch.batches, len(batch.sensors))
	}
	_ = mw.WriteState(telemetry.StateRow{})
	_ = mw.WriteActuator(telemetry.ActuatorRow{})
	if len(good.states) != 1 || len(good.actuators) != 1 {
		t.Fatalf("state/actuator rows not forwarded")
	}
}

func TestReplayLog(t *testing.T) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := int64(0); i < 3; i++ {
		if err := enc.Encode(sensorRow(i)); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	cw := &collectWriter{}
	n, err := ReplayLog(&buf, cw, 0)
	if err != nil {
		t.Fatalf("ReplayLog: %v", err)
	}
	if n != 3 || len(cw.sensors) != 3 {
		t.Fatalf("replayed %d rows, collected %d", n, len(cw.sensors))
	}
	if !cw.sensors[2].Timestamp.Equal(time.Unix(2, 0)) {
		t.Fatalf("row order lost: %v", cw.sensors[2].Timestamp)
	}
}

func TestReplayLogBadLine(t *testing.T) {
	cw := &collectWriter{}
	n, err := ReplayLog(strings.NewReader("{\"vessel_id\":\"a\"}\nnot json\n"), cw, 0)
	if err == nil {
		t.Fatalf("expected decode error")
	}
	if n != 1 {
		t.Fatalf("rows before the error = %d, want 1", n)
	}
}

func TestReplayLogFileMissing(t *testing.T) {
	if _, err := ReplayLogFile(filepath.Join(t.TempDir(), "nope.jsonl"), &collectWriter{}, 0); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestJSONStdoutWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewJSONStdoutWriter(buf)
	if err := w.WriteSensor(sensorRow(0)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := w.WriteActuator(telemetry.ActuatorRow{State: telemetry.StateGoToPoint, RudderAngle: 95}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "{") {
		t.Fatalf("unexpected output %q", buf.String())
	}
	if !strings.Contains(lines[1], `"state":"GO_TO_POINT"`) {
		t.Fatalf("state not encoded by name: %s", lines[1])
	}
}

func TestColorStdoutWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewColorStdoutWriter(buf, telemetry.SensorGPS)
	_ = w.WriteSensor(sensorRow(0))
	_ = w.WriteSensor(telemetry.NewSensorRow("usv-1", telemetry.Wetness{Level: 1}))
	if strings.Count(buf.String(), "\n") != 1 {
		t.Fatalf("only GPS rows should print: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "\x1b[") {
		t.Fatalf("expected color codes in output: %q", buf.String())
	}

	buf.Reset()
	row := telemetry.ActuatorRow{State: telemetry.StateDrive, RudderAngle: 90, MotorPower: 30}
	_ = w.WriteActuator(row)
	_ = w.WriteActuator(row)
	if strings.Count(buf.String(), "\n") != 1 {
		t.Fatalf("unchanged actuator output printed twice: %q", buf.String())
	}

	buf.Reset()
	_ = w.WriteState(telemetry.StateRow{From: telemetry.StateDrive, To: telemetry.StateEmergency, Reason: "emergency command"})
	if !strings.Contains(buf.String(), colorRed+"EMERGENCY") {
		t.Fatalf("emergency not highlighted: %q", buf.String())
	}
}

func TestNewStdoutWriter(t *testing.T) {
	if _, ok := NewStdoutWriter(nil, false).(*JSONStdoutWriter); !ok {
		t.Fatalf("expected JSON writer")
	}
	if _, ok := NewStdoutWriter(nil, true).(*ColorStdoutWriter); !ok {
		t.Fatalf("expected color writer")
	}
}
