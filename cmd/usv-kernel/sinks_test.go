package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"usv-kernel/internal/config"
	"usv-kernel/internal/logging"
	"usv-kernel/internal/sink"
	"usv-kernel/internal/telemetry"
)

func TestNewWritersPrintOnly(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Endpoint = "db.invalid"
	var buf bytes.Buffer
	w, cleanup, err := newWriters(cfg, true, "", &buf, false, logging.Discard())
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	defer cleanup()
	if _, ok := w.(*sink.JSONStdoutWriter); !ok {
		t.Fatalf("expected *sink.JSONStdoutWriter, got %T", w)
	}
	if err := w.WriteSensor(telemetry.SensorRow{VesselID: "v", Sensor: telemetry.SensorRPM}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected output")
	}
}

func TestNewWritersGreptimeFallback(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Endpoint = ""
	w, cleanup, err := newWriters(cfg, false, "", &bytes.Buffer{}, true, logging.Discard())
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	cleanup()
	if _, ok := w.(*sink.ColorStdoutWriter); !ok {
		t.Fatalf("expected *sink.ColorStdoutWriter, got %T", w)
	}
}

func TestNewWritersNoOutput(t *testing.T) {
	w, cleanup, err := newWriters(config.Default(), true, "", nil, false, logging.Discard())
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	cleanup()
	if w != nil {
		t.Fatalf("expected no writer, got %T", w)
	}
}

func TestNewWritersLogFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sensors.log")
	w, cleanup, err := newWriters(config.Default(), true, path, &bytes.Buffer{}, false, logging.Discard())
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	mw, ok := w.(*sink.MultiWriter)
	if !ok {
		t.Fatalf("expected *sink.MultiWriter, got %T", w)
	}
	if len(mw.Writers()) != 2 {
		t.Fatalf("expected stdout and file writers, got %d", len(mw.Writers()))
	}
	row := telemetry.ActuatorRow{VesselID: "v", State: telemetry.StateDrive, Timestamp: time.Unix(0, 0).UTC()}
	if err := w.WriteActuator(row); err != nil {
		t.Fatalf("write actuator: %v", err)
	}
	cleanup()
	for _, p := range []string{path, path + ".state", path + ".actuator"} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected %s: %v", p, err)
		}
	}
	data, err := os.ReadFile(path + ".actuator")
	if err != nil || !bytes.Contains(data, []byte(`"vessel_id":"v"`)) {
		t.Fatalf("unexpected actuator log %q (%v)", data, err)
	}
}

func TestBatchWritersFound(t *testing.T) {
	bw := sink.NewBatchWriter(sink.NewJSONStdoutWriter(&bytes.Buffer{}), 10, 0)
	mw := sink.NewMultiWriter(sink.NewJSONStdoutWriter(&bytes.Buffer{}), bw)
	if got := batchWriters(mw); len(got) != 1 || got[0] != bw {
		t.Fatalf("expected the batch writer, got %v", got)
	}
	if got := batchWriters(nil); got != nil {
		t.Fatalf("expected none, got %v", got)
	}
}
