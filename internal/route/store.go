// Package route keeps the waypoint list, the active waypoint, the last known
// position and the known shore points of the vessel.
package route

import (
	"math"

	"usv-kernel/internal/telemetry"
)

// Store is the authoritative route. It is owned by the state machine and is
// not safe for concurrent use.
type Store struct {
	waypoints []telemetry.GpsCoord
	next      int
	position  *telemetry.GpsCoord
	pausedAt  *telemetry.GpsCoord
	shore     []telemetry.GpsCoord
}

// New returns a store holding a copy of waypoints and shore points.
func New(waypoints, shore []telemetry.GpsCoord) *Store {
	s := &Store{}
	s.SetRoute(waypoints)
	s.SetShore(shore)
	return s
}

// SetRoute replaces the route and restarts from its first waypoint. The
// paused position is forgotten.
func (s *Store) SetRoute(waypoints []telemetry.GpsCoord) {
	s.waypoints = append([]telemetry.GpsCoord(nil), waypoints...)
	s.next = 0
	s.pausedAt = nil
}

// Waypoints returns a copy of the full route.
func (s *Store) Waypoints() []telemetry.GpsCoord {
	return append([]telemetry.GpsCoord(nil), s.waypoints...)
}

// Remaining returns the unvisited waypoints, active one first.
func (s *Store) Remaining() []telemetry.GpsCoord {
	return append([]telemetry.GpsCoord(nil), s.waypoints[s.next:]...)
}

// Active returns the first unvisited waypoint.
func (s *Store) Active() (telemetry.GpsCoord, bool) {
	if s.next >= len(s.waypoints) {
		return telemetry.GpsCoord{}, false
	}
	return s.waypoints[s.next], true
}

// Visited reports how many waypoints were reached.
func (s *Store) Visited() int { return s.next }

// Finished reports whether a non-empty route has been completed.
func (s *Store) Finished() bool {
	return len(s.waypoints) > 0 && s.next >= len(s.waypoints)
}

// UpdatePosition records the latest GPS fix.
func (s *Store) UpdatePosition(c telemetry.GpsCoord) {
	s.position = &c
}

// Position returns the latest GPS fix.
func (s *Store) Position() (telemetry.GpsCoord, bool) {
	if s.position == nil {
		return telemetry.GpsCoord{}, false
	}
	return *s.position, true
}

// Advance marks the active waypoint visited when the current position is
// within threshold meters of it. finished is true when that was the last one.
func (s *Store) Advance(threshold float64) (advanced, finished bool) {
	wp, ok := s.Active()
	if !ok || s.position == nil {
		return false, false
	}
	if Distance(*s.position, wp) > threshold {
		return false, false
	}
	s.next++
	return true, s.next >= len(s.waypoints)
}

// Pause remembers the current position so the operator can see where the
// route was interrupted.
func (s *Store) Pause() {
	if s.position != nil {
		p := *s.position
		s.pausedAt = &p
	}
}

// PausedAt returns the position recorded by the last Pause.
func (s *Store) PausedAt() (telemetry.GpsCoord, bool) {
	if s.pausedAt == nil {
		return telemetry.GpsCoord{}, false
	}
	return *s.pausedAt, true
}

// Resume clears the paused position.
func (s *Store) Resume() { s.pausedAt = nil }

// SetShore replaces the known shore points.
func (s *Store) SetShore(points []telemetry.GpsCoord) {
	s.shore = append([]telemetry.GpsCoord(nil), points...)
}

// Shore returns a copy of the known shore points.
func (s *Store) Shore() []telemetry.GpsCoord {
	return append([]telemetry.GpsCoord(nil), s.shore...)
}

// NearestShore returns the closest shore point to the current position and
// its distance in meters.
func (s *Store) NearestShore() (telemetry.GpsCoord, float64, bool) {
	if s.position == nil || len(s.shore) == 0 {
		return telemetry.GpsCoord{}, 0, false
	}
	best, bestD := s.shore[0], math.Inf(1)
	for _, p := range s.shore {
		if d := Distance(*s.position, p); d < bestD {
			best, bestD = p, d
		}
	}
	return best, bestD, true
}

// Distance is the haversine distance between a and b in meters.
func Distance(a, b telemetry.GpsCoord) float64 { return a.DistanceTo(b) }

// Bearing is the initial course from a to b in degrees.
func Bearing(a, b telemetry.GpsCoord) float64 { return a.BearingTo(b) }
