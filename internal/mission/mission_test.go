package mission

import (
	"math"
	"strings"
	"testing"

	"usv-kernel/internal/bus"
	"usv-kernel/internal/config"
	"usv-kernel/internal/telemetry"
)

func TestLoadMission(t *testing.T) {
	m, err := Load("../../missions/harbor-loop.yaml")
	if err != nil {
		t.Fatalf("load mission: %v", err)
	}
	if m.Name != "harbor-loop" {
		t.Fatalf("unexpected name %s", m.Name)
	}
	if len(m.Waypoints) != 4 || len(m.Shore) != 2 {
		t.Fatalf("expected 4 waypoints and 2 shore points, got %d/%d", len(m.Waypoints), len(m.Shore))
	}
	if m.Waypoints[1].Lon != 14.4440 {
		t.Fatalf("unexpected second waypoint %s", m.Waypoints[1])
	}
	if m.LengthM() <= 0 {
		t.Fatalf("expected positive route length")
	}
}

func TestLoadInvalidMission(t *testing.T) {
	_, err := Load("testdata/bad.yaml")
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "name is required") || !strings.Contains(err.Error(), "waypoint 0") {
		t.Fatalf("unexpected error %v", err)
	}
	if _, err := Load("testdata/missing.yaml"); err == nil {
		t.Fatalf("expected read error")
	}
	if _, err := Parse([]byte("name: x\nwaypoints: [")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestCommandAndApply(t *testing.T) {
	m := &Mission{
		Name:      "m",
		Waypoints: []telemetry.GpsCoord{{Lat: 1, Lon: 2}, {Lat: 1.001, Lon: 2}},
	}
	cmd := m.Command("abc")
	if cmd.Name != bus.CmdSetRoute || cmd.ID != "abc" || cmd.Source != "mission:m" || len(cmd.Route) != 2 {
		t.Fatalf("unexpected command %+v", cmd)
	}
	cmd.Route[0].Lat = 9
	if m.Waypoints[0].Lat != 1 {
		t.Fatalf("command route aliases mission waypoints")
	}

	cfg := config.Default()
	cfg.Shore = []telemetry.GpsCoord{{Lat: 3, Lon: 3}}
	m.Apply(cfg)
	if len(cfg.Route) != 2 || len(cfg.Shore) != 1 || cfg.Shore[0].Lat != 3 {
		t.Fatalf("apply without shore changed shore: %+v", cfg.Shore)
	}
	m.Shore = []telemetry.GpsCoord{{Lat: 4, Lon: 4}}
	m.Apply(cfg)
	if cfg.Shore[0].Lat != 4 {
		t.Fatalf("mission shore not applied")
	}
}

func TestBuiltInPatterns(t *testing.T) {
	origin := telemetry.GpsCoord{Lat: 45.3271, Lon: 14.4422}
	missions := BuiltIn(origin)
	for _, name := range []string{"box", "lawnmower"} {
		m, ok := missions[name]
		if !ok {
			t.Fatalf("mission %s not found", name)
		}
		if err := m.Validate(); err != nil {
			t.Fatalf("mission %s invalid: %v", name, err)
		}
	}

	box := Box(origin, 50)
	for i := 1; i < len(box); i++ {
		if d := box[i-1].DistanceTo(box[i]); math.Abs(d-50) > 0.5 {
			t.Fatalf("leg %d is %.2f m", i, d)
		}
	}
	if d := box[len(box)-1].DistanceTo(origin); d > 0.01 {
		t.Fatalf("box does not close: %.3f m", d)
	}

	lm := Lawnmower(origin, 0, 80, 15, 4)
	if len(lm) != 8 {
		t.Fatalf("expected 8 points, got %d", len(lm))
	}
	if d := lm[0].DistanceTo(lm[1]); math.Abs(d-80) > 0.5 {
		t.Fatalf("line length %.2f", d)
	}
	if d := lm[1].DistanceTo(lm[2]); math.Abs(d-15) > 0.5 {
		t.Fatalf("spacing %.2f", d)
	}
}
