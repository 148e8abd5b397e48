package bus

import (
	"fmt"
	"time"

	"usv-kernel/internal/telemetry"
)

// Kind identifies an event category. Subscriptions are per kind.
type Kind int

const (
	SensorUpdate Kind = iota
	StateChange
	Command
	CommandAck
	Actuator
	Status
)

var kindNames = [...]string{
	SensorUpdate: "SENSOR_UPDATE",
	StateChange:  "STATE_CHANGE",
	Command:      "COMMAND",
	CommandAck:   "COMMAND_ACK",
	Actuator:     "ACTUATOR",
	Status:       "STATUS",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Kinds lists every event kind.
var Kinds = []Kind{SensorUpdate, StateChange, Command, CommandAck, Actuator, Status}

// Payload is the closed set of event bodies. Each payload type belongs to
// exactly one Kind.
type Payload interface {
	Kind() Kind
	payload()
}

// Event is one published payload with its enqueue time.
type Event struct {
	Kind    Kind
	Payload Payload
	At      time.Time
}

// SensorUpdateEvent carries one decoded reading.
type SensorUpdateEvent struct {
	Reading telemetry.Reading
}

func (SensorUpdateEvent) Kind() Kind { return SensorUpdate }
func (SensorUpdateEvent) payload()   {}

// StateChangeEvent is published on every mode transition.
type StateChangeEvent struct {
	From   telemetry.VehicleState `json:"from"`
	To     telemetry.VehicleState `json:"to"`
	Reason string                 `json:"reason"`
}

func (StateChangeEvent) Kind() Kind { return StateChange }
func (StateChangeEvent) payload()   {}

// CommandName is an operator command understood by the state machine.
type CommandName string

const (
	CmdStart     CommandName = "start"
	CmdStop      CommandName = "stop"
	CmdEmergency CommandName = "emergency"
	CmdResume    CommandName = "resume"
	CmdSetRoute  CommandName = "set-route"
	CmdManual    CommandName = "manual"
)

// CommandNames lists the accepted command names.
var CommandNames = []CommandName{CmdStart, CmdStop, CmdEmergency, CmdResume, CmdSetRoute, CmdManual}

// ParseCommandName accepts the canonical names plus a few operator aliases.
func ParseCommandName(s string) (CommandName, bool) {
	switch s {
	case "emergency-stop", "emergency_stop", "estop":
		return CmdEmergency, true
	case "set_route", "route":
		return CmdSetRoute, true
	}
	for _, n := range CommandNames {
		if string(n) == s {
			return n, true
		}
	}
	return "", false
}

// CommandEvent is an operator request entering the core.
type CommandEvent struct {
	ID     string               `json:"id"`
	Name   CommandName          `json:"name"`
	Source string               `json:"source,omitempty"`
	Route  []telemetry.GpsCoord `json:"route,omitempty"`
	// Manual toggles manual control for CmdManual. Rudder and Motor are the
	// override values used while manual control is on.
	Manual bool `json:"manual,omitempty"`
	Rudder *int `json:"rudder,omitempty"`
	Motor  *int `json:"motor,omitempty"`
}

func (CommandEvent) Kind() Kind { return Command }
func (CommandEvent) payload()   {}

// CommandAckEvent answers a CommandEvent with the same ID.
type CommandAckEvent struct {
	ID       string                 `json:"id"`
	Name     CommandName            `json:"name"`
	Accepted bool                   `json:"accepted"`
	Reason   string                 `json:"reason,omitempty"`
	State    telemetry.VehicleState `json:"state"`
}

func (CommandAckEvent) Kind() Kind { return CommandAck }
func (CommandAckEvent) payload()   {}

// ActuatorEvent is the command produced by one control cycle.
type ActuatorEvent struct {
	Command telemetry.ActuatorCommand `json:"command"`
	State   telemetry.VehicleState    `json:"state"`
	// Overrun is set when the cycle exceeded its period.
	Overrun bool `json:"overrun,omitempty"`
}

func (ActuatorEvent) Kind() Kind { return Actuator }
func (ActuatorEvent) payload()   {}

// StatusCode classifies a status event.
type StatusCode string

const (
	StatusLinkUp          StatusCode = "link_up"
	StatusLinkUnavailable StatusCode = "link_unavailable"
	StatusStaleData       StatusCode = "stale_data"
	StatusDataFresh       StatusCode = "data_fresh"
	StatusFrameError      StatusCode = "frame_error"
	StatusInvalidCommand  StatusCode = "invalid_transition"
	StatusShutdown        StatusCode = "shutdown"
)

// StatusEvent reports link health and other operational conditions.
type StatusEvent struct {
	Code    StatusCode `json:"code"`
	Message string     `json:"message"`
}

func (StatusEvent) Kind() Kind { return Status }
func (StatusEvent) payload()   {}
