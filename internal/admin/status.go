package admin

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"usv-kernel/internal/bus"
	"usv-kernel/internal/telemetry"
)

const maxEvents = 50

// pageCommands are offered as buttons on the status page.
var pageCommands = []bus.CommandName{bus.CmdStart, bus.CmdStop, bus.CmdEmergency, bus.CmdResume}

// Event is one line of the recent event log.
type Event struct {
	At   time.Time `json:"at"`
	Kind string    `json:"kind"`
	Text string    `json:"text"`
}

// Reading is the latest value of one sensor.
type Reading struct {
	Sensor telemetry.SensorKind `json:"sensor"`
	Values map[string]float64   `json:"values"`
	At     time.Time            `json:"ts"`
	Age    string               `json:"age"`
}

// Snapshot is the JSON body of /status.
type Snapshot struct {
	VesselID string                    `json:"vessel_id"`
	State    telemetry.VehicleState    `json:"state"`
	Actuator telemetry.ActuatorCommand `json:"actuator"`
	Overruns uint64                    `json:"overruns"`
	Link     string                    `json:"link"`
	LastAck  *bus.CommandAckEvent      `json:"last_ack,omitempty"`
	Readings []Reading                 `json:"readings"`
	Events   []Event                   `json:"events"`
	Commands []bus.CommandName         `json:"-"`
}

// Status folds bus events into the view served by the admin server.
type Status struct {
	mu       sync.RWMutex
	vesselID string
	state    telemetry.VehicleState
	actuator telemetry.ActuatorCommand
	overruns uint64
	link     string
	lastAck  *bus.CommandAckEvent
	readings map[telemetry.SensorKind]telemetry.SensorRow
	events   []Event
	now      func() time.Time
}

// NewStatus returns an empty status for vesselID.
func NewStatus(vesselID string) *Status {
	return &Status{
		vesselID: vesselID,
		actuator: telemetry.SafeCommand,
		link:     "unknown",
		readings: make(map[telemetry.SensorKind]telemetry.SensorRow),
		now:      time.Now,
	}
}

// Subscriber is the part of the bus the status listens on.
type Subscriber interface {
	Subscribe(kind bus.Kind, name string, h bus.Handler)
}

// Attach subscribes the status to every event kind.
func (s *Status) Attach(sub Subscriber) {
	for _, k := range bus.Kinds {
		sub.Subscribe(k, "admin", s.handle)
	}
}

func (s *Status) handle(_ context.Context, ev bus.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch p := ev.Payload.(type) {
	case bus.SensorUpdateEvent:
		s.readings[p.Reading.Kind()] = telemetry.NewSensorRow(s.vesselID, p.Reading)
	case bus.StateChangeEvent:
		s.state = p.To
		s.record(ev.At, "state", fmt.Sprintf("%s -> %s: %s", p.From, p.To, p.Reason))
	case bus.ActuatorEvent:
		s.state = p.State
		s.actuator = p.Command
		if p.Overrun {
			s.overruns++
		}
	case bus.CommandEvent:
		s.record(ev.At, "command", fmt.Sprintf("%s %s from %s", p.ID, p.Name, p.Source))
	case bus.CommandAckEvent:
		ack := p
		s.lastAck = &ack
		verdict := "accepted"
		if !p.Accepted {
			verdict = "rejected: " + p.Reason
		}
		s.record(ev.At, "ack", fmt.Sprintf("%s %s %s", p.ID, p.Name, verdict))
	case bus.StatusEvent:
		switch p.Code {
		case bus.StatusLinkUp:
			s.link = "up"
		case bus.StatusLinkUnavailable:
			s.link = "down"
		case bus.StatusShutdown:
			s.link = "closed"
		}
		s.record(ev.At, string(p.Code), p.Message)
	}
	return nil
}

func (s *Status) record(at time.Time, kind, text string) {
	s.events = append(s.events, Event{At: at, Kind: kind, Text: text})
	if len(s.events) > maxEvents {
		s.events = append(s.events[:0], s.events[len(s.events)-maxEvents:]...)
	}
}

// Snapshot copies the current view. Events are newest first.
func (s *Status) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	snap := Snapshot{
		VesselID: s.vesselID,
		State:    s.state,
		Actuator: s.actuator,
		Overruns: s.overruns,
		Link:     s.link,
		Commands: pageCommands,
	}
	if s.lastAck != nil {
		ack := *s.lastAck
		snap.LastAck = &ack
	}
	for _, row := range s.readings {
		snap.Readings = append(snap.Readings, Reading{
			Sensor: row.Sensor,
			Values: row.Values,
			At:     row.Timestamp,
			Age:    now.Sub(row.Timestamp).Round(time.Millisecond).String(),
		})
	}
	sort.Slice(snap.Readings, func(i, j int) bool { return snap.Readings[i].Sensor < snap.Readings[j].Sensor })
	snap.Events = make([]Event, len(s.events))
	for i, e := range s.events {
		snap.Events[len(s.events)-1-i] = e
	}
	return snap
}

func stateColor(st telemetry.VehicleState) string {
	switch st {
	case telemetry.StateEmergency:
		return "#e55"
	case telemetry.StateDrive, telemetry.StateGoToPoint:
		return "#5c5"
	case telemetry.StateStop:
		return "#999"
	}
	return "#ec3"
}
