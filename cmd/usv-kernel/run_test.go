package main

import (
	"context"
	"testing"

	"usv-kernel/internal/config"
	"usv-kernel/internal/firmware"
	"usv-kernel/internal/logging"
)

func TestLoadMission(t *testing.T) {
	cfg := config.Default()
	m, err := loadMission("../../missions/harbor-loop.yaml", cfg)
	if err != nil || m.Name != "harbor-loop" {
		t.Fatalf("file mission: %v %+v", err, m)
	}
	m, err = loadMission("box", cfg)
	if err != nil || len(m.Waypoints) != 4 {
		t.Fatalf("built-in mission: %v %+v", err, m)
	}
	if _, err := loadMission("nowhere", cfg); err == nil {
		t.Fatalf("expected error for unknown mission")
	}
}

func TestNewOpener(t *testing.T) {
	cfg := config.Default()
	runSimulate = true
	defer func() { runSimulate = false }()
	link, err := newOpener(cfg, logging.Discard())(context.Background())
	if err != nil {
		t.Fatalf("simulator opener: %v", err)
	}
	if _, ok := link.(*firmware.Simulator); !ok {
		t.Fatalf("expected simulator link, got %T", link)
	}
	link.Close()

	runSimulate = false
	cfg.Serial.Port = "/dev/usv-kernel-missing"
	if _, err := newOpener(cfg, logging.Discard())(context.Background()); err == nil {
		t.Fatalf("expected error opening a missing port")
	}
}
