package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"usv-kernel/internal/telemetry"
)

const schemaPath = "../../schemas/usv.cue"

func writeTemp(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "usv.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestLoadConfig_Valid(t *testing.T) {
	path := writeTemp(t, `
vessel_id: usv-test
control:
  period: 50ms
  staleness_timeout: 1s
  safety_sensors: [GPS, LID]
navigation:
  arrival_distance_m: 3
  avoid_timeout: 4s
route:
  - {lat: 45.1, lon: 14.1}
  - {lat: 45.2, lon: 14.2}
`)
	cfg, err := Load(path, schemaPath)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.VesselID != "usv-test" {
		t.Errorf("vessel_id = %q", cfg.VesselID)
	}
	if cfg.Control.Period != 50*time.Millisecond || cfg.Navigation.AvoidTimeout != 4*time.Second {
		t.Errorf("durations not decoded: %+v %+v", cfg.Control, cfg.Navigation)
	}
	if len(cfg.Control.SafetySensors) != 2 || cfg.Control.SafetySensors[1] != telemetry.SensorLidar {
		t.Errorf("safety sensors = %v", cfg.Control.SafetySensors)
	}
	if len(cfg.Route) != 2 || cfg.Route[1].Lat != 45.2 {
		t.Errorf("route = %v", cfg.Route)
	}
	// untouched sections keep their defaults
	if cfg.Serial.Baud != 115200 || cfg.PID.Rudder.Kp != Default().PID.Rudder.Kp {
		t.Errorf("defaults lost: %+v %+v", cfg.Serial, cfg.PID)
	}
}

func TestLoadShippedConfig(t *testing.T) {
	cfg, err := Load("../../config/usv.yaml", schemaPath)
	if err != nil {
		t.Fatalf("shipped config does not load: %v", err)
	}
	if len(cfg.Shore) == 0 || len(cfg.Simulator.Obstacles) == 0 {
		t.Fatalf("expected shore points and obstacles in shipped config")
	}
}

func TestLoadConfig_SchemaRejects(t *testing.T) {
	cases := map[string]string{
		"bad sensor":   "control:\n  safety_sensors: [SONAR]\n",
		"bad duration": "control:\n  period: fast\n",
		"rudder range": "limits:\n  rudder: {min: 0, max: 270}\n",
		"latitude":     "route:\n  - {lat: 95, lon: 0}\n",
		"qos":          "monitor:\n  qos: 3\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeTemp(t, body), schemaPath); err == nil {
				t.Fatalf("expected schema error")
			}
		})
	}
}

func TestParseValidateCrossFields(t *testing.T) {
	_, err := Parse([]byte("control:\n  period: 1s\n  staleness_timeout: 500ms\n"))
	if err == nil || !strings.Contains(err.Error(), "staleness_timeout") {
		t.Fatalf("expected staleness error, got %v", err)
	}
	_, err = Parse([]byte("limits:\n  rudder: {min: 100, max: 180}\n"))
	if err == nil || !strings.Contains(err.Error(), "center") {
		t.Fatalf("expected center error, got %v", err)
	}
}

func TestParseRejectsInvalidCoordinates(t *testing.T) {
	_, err := Parse([]byte("route:\n  - {lat: 45, lon: 14}\n  - {lat: 45, lon: 190}\nshore:\n  - {lat: -95, lon: 0}\n"))
	if err == nil || !strings.Contains(err.Error(), "route[1]") || !strings.Contains(err.Error(), "shore[0]") {
		t.Fatalf("expected coordinate errors, got %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GREPTIMEDB_ENDPOINT", "db.local")
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")
	cfg, err := Parse([]byte("vessel_id: x\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Storage.Endpoint != "db.local" || cfg.Monitor.Broker != "tcp://broker:1883" {
		t.Fatalf("env overrides not applied: %+v %+v", cfg.Storage, cfg.Monitor)
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}
