package telemetry

import "fmt"

// VehicleState is the operating mode of the vessel.
type VehicleState int

const (
	StateStop VehicleState = iota
	StateDrive
	StateCollisionDetection
	StateShoreDetection
	StateEmergency
	StateAdjustRudders
	StateGoToPoint
)

var stateNames = [...]string{
	StateStop:               "STOP",
	StateDrive:              "DRIVE",
	StateCollisionDetection: "COLLISION_DETECTION",
	StateShoreDetection:     "SHORE_DETECTION",
	StateEmergency:          "EMERGENCY",
	StateAdjustRudders:      "ADJUST_RUDDERS",
	StateGoToPoint:          "GO_TO_POINT",
}

func (s VehicleState) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("VehicleState(%d)", int(s))
}

// MarshalText encodes the state by name so JSON logs stay readable.
func (s VehicleState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *VehicleState) UnmarshalText(b []byte) error {
	v, err := ParseVehicleState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseVehicleState maps a name such as "GO_TO_POINT" to its state.
func ParseVehicleState(name string) (VehicleState, error) {
	for i, n := range stateNames {
		if n == name {
			return VehicleState(i), nil
		}
	}
	return StateStop, fmt.Errorf("unknown vehicle state %q", name)
}

// PIDActive reports whether the mode drives the actuators through the PID loops.
func (s VehicleState) PIDActive() bool {
	return s == StateDrive || s == StateGoToPoint || s == StateAdjustRudders
}
