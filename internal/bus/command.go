package bus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"usv-kernel/internal/telemetry"
)

// commandMessage is the JSON form of an operator command.
type commandMessage struct {
	ID     string               `json:"id"`
	Name   string               `json:"name"`
	Route  []telemetry.GpsCoord `json:"route"`
	Manual bool                 `json:"manual"`
	Rudder *int                 `json:"rudder"`
	Motor  *int                 `json:"motor"`
}

// DecodeCommand parses an operator command from JSON or from a bare command
// name such as "start". Commands without an ID get one from newID. The
// returned event carries its ID even when err is set, so the rejection can be
// acknowledged.
func DecodeCommand(payload []byte, source string, newID func() string) (CommandEvent, error) {
	var msg commandMessage
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &msg); err != nil {
			return CommandEvent{ID: newID(), Source: source}, fmt.Errorf("decode command: %w", err)
		}
	} else {
		msg.Name = string(trimmed)
	}
	if msg.ID == "" {
		msg.ID = newID()
	}
	cmd := CommandEvent{
		ID:     msg.ID,
		Name:   CommandName(msg.Name),
		Source: source,
		Route:  msg.Route,
		Manual: msg.Manual,
		Rudder: msg.Rudder,
		Motor:  msg.Motor,
	}
	name, ok := ParseCommandName(strings.ToLower(strings.TrimSpace(msg.Name)))
	if !ok {
		return cmd, fmt.Errorf("unknown command %q", msg.Name)
	}
	cmd.Name = name
	if err := ValidateRoute(cmd.Route); err != nil {
		return cmd, err
	}
	return cmd, nil
}

// ValidateRoute rejects waypoints outside the coordinate range.
func ValidateRoute(route []telemetry.GpsCoord) error {
	for i, c := range route {
		if !c.Valid() {
			return fmt.Errorf("route waypoint %d: invalid coordinate %s", i, c)
		}
	}
	return nil
}
