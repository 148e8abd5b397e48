// Package mission loads operator route files and turns them into set-route
// commands for the vessel.
package mission

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"usv-kernel/internal/bus"
	"usv-kernel/internal/config"
	"usv-kernel/internal/telemetry"
)

// Mission is an ordered route with the shore points that bound it.
type Mission struct {
	Name        string               `yaml:"name"`
	Description string               `yaml:"description,omitempty"`
	Waypoints   []telemetry.GpsCoord `yaml:"waypoints"`
	Shore       []telemetry.GpsCoord `yaml:"shore,omitempty"`
}

// Load reads a YAML mission definition from disk.
func Load(path string) (*Mission, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mission: %w", err)
	}
	return Parse(b)
}

// Parse decodes and validates a YAML mission.
func Parse(data []byte) (*Mission, error) {
	var m Mission
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse mission: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate rejects missions without waypoints or with coordinates off the globe.
func (m *Mission) Validate() error {
	var errs []error
	if m.Name == "" {
		errs = append(errs, errors.New("mission name is required"))
	}
	if len(m.Waypoints) == 0 {
		errs = append(errs, errors.New("mission needs at least one waypoint"))
	}
	for i, c := range m.Waypoints {
		if !c.Valid() {
			errs = append(errs, fmt.Errorf("waypoint %d: invalid coordinate %s", i, c))
		}
	}
	for i, c := range m.Shore {
		if !c.Valid() {
			errs = append(errs, fmt.Errorf("shore point %d: invalid coordinate %s", i, c))
		}
	}
	return errors.Join(errs...)
}

// LengthM is the distance along the waypoints starting at the first one.
func (m *Mission) LengthM() float64 {
	var total float64
	for i := 1; i < len(m.Waypoints); i++ {
		total += m.Waypoints[i-1].DistanceTo(m.Waypoints[i])
	}
	return total
}

// Apply makes the mission the configured route. Shore points replace the
// configured ones only when the mission has its own.
func (m *Mission) Apply(cfg *config.Config) {
	cfg.Route = append([]telemetry.GpsCoord(nil), m.Waypoints...)
	if len(m.Shore) > 0 {
		cfg.Shore = append([]telemetry.GpsCoord(nil), m.Shore...)
	}
}

// Command returns the set-route command loading the mission.
func (m *Mission) Command(id string) bus.CommandEvent {
	return bus.CommandEvent{
		ID:     id,
		Name:   bus.CmdSetRoute,
		Source: "mission:" + m.Name,
		Route:  append([]telemetry.GpsCoord(nil), m.Waypoints...),
	}
}
