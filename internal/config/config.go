// YAML config loader with CUE validation integration
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"usv-kernel/internal/pid"
	"usv-kernel/internal/telemetry"
)

// Serial describes the link to the sensor and actuator boards.
type Serial struct {
	Port        string        `yaml:"port"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// Control holds the driver loop timing.
type Control struct {
	Period           time.Duration          `yaml:"period"`
	StalenessTimeout time.Duration          `yaml:"staleness_timeout"`
	SafetySensors    []telemetry.SensorKind `yaml:"safety_sensors"`
	RetryInitial     time.Duration          `yaml:"retry_initial"`
	RetryMax         time.Duration          `yaml:"retry_max"`
}

// PID holds the gains of both control axes.
type PID struct {
	Rudder   pid.Gains `yaml:"rudder"`
	Throttle pid.Gains `yaml:"throttle"`
}

// Range is an inclusive integer interval.
type Range struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// Limits bound the actuator outputs. They may narrow, never widen, the
// hardware ranges.
type Limits struct {
	Rudder Range `yaml:"rudder"`
	Motor  Range `yaml:"motor"`
}

// Navigation holds the thresholds of the mode policies.
type Navigation struct {
	ArrivalDistanceM    float64       `yaml:"arrival_distance_m"`
	ObstacleDistanceM   float64       `yaml:"obstacle_distance_m"`
	ShoreDistanceM      float64       `yaml:"shore_distance_m"`
	ShoreWetness        float64       `yaml:"shore_wetness"`
	HeadingToleranceDeg float64       `yaml:"heading_tolerance_deg"`
	AvoidTimeout        time.Duration `yaml:"avoid_timeout"`
	CruiseSpeedMps      float64       `yaml:"cruise_speed_mps"`
	ApproachSpeedMps    float64       `yaml:"approach_speed_mps"`
	BatteryCriticalPct  float64       `yaml:"battery_critical_pct"`
}

// Monitor configures the MQTT mirror. An empty broker disables it.
type Monitor struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// Storage configures the GreptimeDB sink. An empty endpoint falls back to
// JSON on STDOUT.
type Storage struct {
	Endpoint string `yaml:"endpoint"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
}

// Obstacle is a circular hazard known to the firmware simulator.
type Obstacle struct {
	Center  telemetry.GpsCoord `yaml:"center"`
	RadiusM float64            `yaml:"radius_m"`
}

// Simulator seeds the in-process firmware simulator.
type Simulator struct {
	Start              telemetry.GpsCoord `yaml:"start"`
	HeadingDeg         float64            `yaml:"heading_deg"`
	MaxSpeedMps        float64            `yaml:"max_speed_mps"`
	BatteryPct         float64            `yaml:"battery_pct"`
	BatteryDrainPerMin float64            `yaml:"battery_drain_per_min"`
	Obstacles          []Obstacle         `yaml:"obstacles"`
}

// Config is the root configuration of the kernel.
type Config struct {
	VesselID   string               `yaml:"vessel_id"`
	LogLevel   string               `yaml:"log_level"`
	AdminAddr  string               `yaml:"admin_addr"`
	Serial     Serial               `yaml:"serial"`
	Control    Control              `yaml:"control"`
	PID        PID                  `yaml:"pid"`
	Limits     Limits               `yaml:"limits"`
	Navigation Navigation           `yaml:"navigation"`
	Route      []telemetry.GpsCoord `yaml:"route"`
	Shore      []telemetry.GpsCoord `yaml:"shore"`
	Monitor    Monitor              `yaml:"monitor"`
	Storage    Storage              `yaml:"storage"`
	Simulator  Simulator            `yaml:"simulator"`
}

// Default returns a configuration usable without a file.
func Default() *Config {
	return &Config{
		VesselID:  "usv-01",
		LogLevel:  "info",
		AdminAddr: ":8080",
		Serial: Serial{
			Port:        "/dev/ttyACM0",
			Baud:        115200,
			ReadTimeout: 20 * time.Millisecond,
		},
		Control: Control{
			Period:           100 * time.Millisecond,
			StalenessTimeout: 2 * time.Second,
			SafetySensors:    []telemetry.SensorKind{telemetry.SensorGPS, telemetry.SensorMag, telemetry.SensorLidar},
			RetryInitial:     250 * time.Millisecond,
			RetryMax:         5 * time.Second,
		},
		PID: PID{
			Rudder:   pid.Gains{Kp: 1.5, Ki: 0.05, Kd: 0.4},
			Throttle: pid.Gains{Kp: 20, Ki: 6, Kd: 0},
		},
		Limits: Limits{
			Rudder: Range{Min: telemetry.RudderMin, Max: telemetry.RudderMax},
			Motor:  Range{Min: telemetry.MotorMin, Max: telemetry.MotorMax},
		},
		Navigation: Navigation{
			ArrivalDistanceM:    5,
			ObstacleDistanceM:   8,
			ShoreDistanceM:      15,
			ShoreWetness:        0.2,
			HeadingToleranceDeg: 10,
			AvoidTimeout:        8 * time.Second,
			CruiseSpeedMps:      1.5,
			ApproachSpeedMps:    0.7,
			BatteryCriticalPct:  10,
		},
		Monitor: Monitor{
			ClientID:    "usv-kernel",
			TopicPrefix: "usv",
			QoS:         1,
		},
		Storage: Storage{Port: 4001, Database: "public"},
		Simulator: Simulator{
			Start:              telemetry.GpsCoord{Lat: 45.3271, Lon: 14.4422},
			MaxSpeedMps:        2.5,
			BatteryPct:         100,
			BatteryDrainPerMin: 0.2,
		},
	}
}

// Load loads YAML config over the defaults and validates it against a CUE
// schema. An empty schema path skips the CUE step.
func Load(configPath, cueSchemaPath string) (*Config, error) {
	if cueSchemaPath != "" {
		if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
			return nil, err
		}
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and checks the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv lets deployments point the sinks elsewhere without editing the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("VESSEL_ID"); v != "" {
		c.VesselID = v
	}
	if v := os.Getenv("GREPTIMEDB_ENDPOINT"); v != "" {
		c.Storage.Endpoint = v
	}
	if v := os.Getenv("GREPTIMEDB_DATABASE"); v != "" {
		c.Storage.Database = v
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.Monitor.Broker = v
	}
}

// Validate checks cross-field constraints the schema cannot express.
func (c *Config) Validate() error {
	var errs []error
	if c.VesselID == "" {
		errs = append(errs, errors.New("vessel_id is required"))
	}
	if c.Control.Period <= 0 {
		errs = append(errs, errors.New("control.period must be positive"))
	}
	if c.Control.StalenessTimeout <= c.Control.Period {
		errs = append(errs, errors.New("control.staleness_timeout must exceed control.period"))
	}
	for _, k := range c.Control.SafetySensors {
		if !k.Valid() {
			errs = append(errs, fmt.Errorf("control.safety_sensors: unknown sensor %q", k))
		}
	}
	if c.Limits.Rudder.Min < telemetry.RudderMin || c.Limits.Rudder.Max > telemetry.RudderMax || c.Limits.Rudder.Min >= c.Limits.Rudder.Max {
		errs = append(errs, fmt.Errorf("limits.rudder must lie within [%d,%d]", telemetry.RudderMin, telemetry.RudderMax))
	}
	if c.Limits.Rudder.Min > telemetry.RudderCenter || c.Limits.Rudder.Max < telemetry.RudderCenter {
		errs = append(errs, errors.New("limits.rudder must include the center position"))
	}
	if c.Limits.Motor.Min < telemetry.MotorMin || c.Limits.Motor.Max > telemetry.MotorMax || c.Limits.Motor.Min >= c.Limits.Motor.Max {
		errs = append(errs, fmt.Errorf("limits.motor must lie within [%d,%d]", telemetry.MotorMin, telemetry.MotorMax))
	}
	if c.Navigation.ArrivalDistanceM <= 0 {
		errs = append(errs, errors.New("navigation.arrival_distance_m must be positive"))
	}
	for i, p := range c.Route {
		if !p.Valid() {
			errs = append(errs, fmt.Errorf("route[%d]: invalid coordinate %s", i, p))
		}
	}
	for i, p := range c.Shore {
		if !p.Valid() {
			errs = append(errs, fmt.Errorf("shore[%d]: invalid coordinate %s", i, p))
		}
	}
	if c.Monitor.QoS > 2 {
		errs = append(errs, errors.New("monitor.qos must be 0, 1 or 2"))
	}
	return errors.Join(errs...)
}
