package telemetry

import (
	"os"
	"strings"
	"time"
)

// SensorRow is the storage shape of one reading.
type SensorRow struct {
	VesselID  string             `json:"vessel_id"` // TAG
	Sensor    SensorKind         `json:"sensor"`    // selects the table
	Values    map[string]float64 `json:"values"`    // FIELDS
	Timestamp time.Time          `json:"ts"`        // TIME INDEX
}

// NewSensorRow flattens a reading into a row for vessel.
func NewSensorRow(vessel string, r Reading) SensorRow {
	fields := r.Fields()
	values := make(map[string]float64, len(fields))
	for _, f := range fields {
		values[f.Name] = f.Value
	}
	return SensorRow{VesselID: vessel, Sensor: r.Kind(), Values: values, Timestamp: r.Time()}
}

// TableName is the sensor table, e.g. usv_sensor_gps.
func (r SensorRow) TableName() string {
	return SensorTablePrefix + strings.ToLower(string(r.Sensor))
}

// StateRow records one mode transition.
type StateRow struct {
	VesselID  string       `json:"vessel_id"`
	From      VehicleState `json:"from"`
	To        VehicleState `json:"to"`
	Reason    string       `json:"reason"`
	Timestamp time.Time    `json:"ts"`
}

// ActuatorRow records the command written in one control cycle.
type ActuatorRow struct {
	VesselID    string       `json:"vessel_id"`
	State       VehicleState `json:"state"`
	RudderAngle int          `json:"rudder_angle"`
	MotorPower  int          `json:"motor_power"`
	Timestamp   time.Time    `json:"ts"`
}

// SensorTablePrefix prefixes the per-sensor tables. Override with
// GREPTIMEDB_SENSOR_PREFIX.
var SensorTablePrefix = envOr("GREPTIMEDB_SENSOR_PREFIX", "usv_sensor_")

// StateTableName holds mode transitions. Override with GREPTIMEDB_STATE_TABLE.
var StateTableName = envOr("GREPTIMEDB_STATE_TABLE", "usv_state")

// ActuatorTableName holds actuator output. Override with GREPTIMEDB_ACTUATOR_TABLE.
var ActuatorTableName = envOr("GREPTIMEDB_ACTUATOR_TABLE", "usv_actuator")

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
