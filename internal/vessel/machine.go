// Package vessel holds the operating-mode state machine of the boat. The
// Machine is the only writer of the vehicle state, the route and the PID
// history; every entry point must be called from the driver loop goroutine.
package vessel

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"usv-kernel/internal/bus"
	"usv-kernel/internal/config"
	"usv-kernel/internal/observability"
	"usv-kernel/internal/pid"
	"usv-kernel/internal/route"
	"usv-kernel/internal/telemetry"
)

// Publisher receives the events the machine emits.
type Publisher interface {
	Publish(bus.Payload)
}

type hazard int

const (
	hazardNone hazard = iota
	hazardObstacle
	hazardShore
)

// Machine is the vehicle state machine.
type Machine struct {
	nav      config.Navigation
	gains    config.PID
	rudderL  pid.Limits
	motorL   pid.Limits
	pub      Publisher
	log      *slog.Logger
	state    telemetry.VehicleState
	route    *route.Store
	rudder   pid.State
	throttle pid.State
	// pidActive is false whenever the previous cycle did not run the PID
	// loops, so the next PID cycle starts from clean state.
	pidActive bool

	heading     float64
	speed       float64
	lastFix     *telemetry.GPS
	noFix       bool
	lidar       telemetry.Lidar
	obstacle    bool
	wetLow      bool
	nearShore   bool
	battery     float64
	haveBattery bool
	stale       map[telemetry.SensorKind]bool

	manual       bool
	manualRudder int
	manualMotor  int

	holdHeading  float64
	avoidHeading float64
	avoidElapsed time.Duration
	lastHazard   hazard
	emergencyWhy string

	invalid uint64
	cycles  uint64
}

// New builds a machine in STOP with the configured route and shore points.
func New(cfg *config.Config, pub Publisher, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		nav:   cfg.Navigation,
		gains: cfg.PID,
		rudderL: pid.Limits{
			Min:  float64(cfg.Limits.Rudder.Min),
			Max:  float64(cfg.Limits.Rudder.Max),
			Bias: telemetry.RudderCenter,
		},
		motorL: pid.Limits{
			Min: float64(cfg.Limits.Motor.Min),
			Max: float64(cfg.Limits.Motor.Max),
		},
		pub:          pub,
		log:          logger.With("component", "vessel"),
		state:        telemetry.StateStop,
		route:        route.New(cfg.Route, cfg.Shore),
		stale:        make(map[telemetry.SensorKind]bool),
		manualRudder: telemetry.RudderCenter,
	}
}

// State returns the current operating mode.
func (m *Machine) State() telemetry.VehicleState { return m.state }

// Route exposes the route store for read access.
func (m *Machine) Route() *route.Store { return m.route }

// HasFix reports whether GPS positions are being used. It is false only
// after the receiver reported that it lost its fix.
func (m *Machine) HasFix() bool { return !m.noFix }

// InvalidTransitions reports how many triggers were ignored.
func (m *Machine) InvalidTransitions() uint64 { return m.invalid }

// Snapshot is a read-only view used by the driver and diagnostics.
type Snapshot struct {
	State       telemetry.VehicleState `json:"state"`
	HeadingDeg  float64                `json:"heading_deg"`
	SpeedMps    float64                `json:"speed_mps"`
	Manual      bool                   `json:"manual"`
	Obstacle    bool                   `json:"obstacle"`
	Shore       bool                   `json:"shore"`
	Waypoint    *telemetry.GpsCoord    `json:"waypoint,omitempty"`
	PausedAt    *telemetry.GpsCoord    `json:"paused_at,omitempty"`
	Stale       []telemetry.SensorKind `json:"stale,omitempty"`
	Invalid     uint64                 `json:"invalid_transitions"`
	Emergency   string                 `json:"emergency_reason,omitempty"`
	Cycles      uint64                 `json:"cycles"`
	RudderState pid.State              `json:"-"`
}

// Snapshot copies the current machine view.
func (m *Machine) Snapshot() Snapshot {
	s := Snapshot{
		State:       m.state,
		HeadingDeg:  m.heading,
		SpeedMps:    m.speed,
		Manual:      m.manual,
		Obstacle:    m.obstacle,
		Shore:       m.shoreDetected(),
		Invalid:     m.invalid,
		Emergency:   m.emergencyWhy,
		Cycles:      m.cycles,
		RudderState: m.rudder,
	}
	if wp, ok := m.route.Active(); ok {
		s.Waypoint = &wp
	}
	if p, ok := m.route.PausedAt(); ok {
		s.PausedAt = &p
	}
	for _, k := range telemetry.SensorKinds {
		if m.stale[k] {
			s.Stale = append(s.Stale, k)
		}
	}
	return s
}

func (m *Machine) shoreDetected() bool { return m.wetLow || m.nearShore }

func (m *Machine) hazardPresent() bool { return m.obstacle || m.shoreDetected() }

// transition moves to a new mode and publishes the change.
func (m *Machine) transition(to telemetry.VehicleState, reason string) {
	from := m.state
	if from == to {
		return
	}
	if (to == telemetry.StateStop || to == telemetry.StateEmergency) && m.onRoute() {
		m.route.Pause()
	}
	m.state = to
	if !to.PIDActive() {
		m.pidActive = false
	}
	observability.StateTransitions.WithLabelValues(to.String()).Inc()
	m.log.Info("state change", "from", from, "to", to, "reason", reason)
	m.pub.Publish(bus.StateChangeEvent{From: from, To: to, Reason: reason})
}

// onRoute reports whether the boat was following an unfinished route.
func (m *Machine) onRoute() bool {
	if _, ok := m.route.Active(); !ok {
		return false
	}
	switch m.state {
	case telemetry.StateGoToPoint, telemetry.StateCollisionDetection,
		telemetry.StateShoreDetection, telemetry.StateAdjustRudders:
		return true
	}
	return false
}

func (m *Machine) rejectTrigger(trigger string) {
	m.invalid++
	m.log.Warn("ignored trigger", "state", m.state, "trigger", trigger)
}

// HandleReading folds a sensor reading into the machine and applies the
// transitions it triggers.
func (m *Machine) HandleReading(r telemetry.Reading) {
	switch v := r.(type) {
	case telemetry.Mag:
		m.heading = v.Heading()
	case telemetry.GPSStatus:
		if !v.Fix && !m.noFix {
			m.log.Warn("gps fix lost", "satellites", v.Satellites)
			// speed restarts from the first position after the fix returns
			m.lastFix = nil
		}
		m.noFix = !v.Fix
	case telemetry.GPS:
		if m.noFix {
			break
		}
		if m.lastFix != nil {
			if dt := v.At.Sub(m.lastFix.At).Seconds(); dt > 0 {
				m.speed = route.Distance(m.lastFix.Coord, v.Coord) / dt
			}
		}
		fix := v
		m.lastFix = &fix
		m.route.UpdatePosition(v.Coord)
		m.nearShore = false
		if _, d, ok := m.route.NearestShore(); ok && d < m.nav.ShoreDistanceM {
			m.nearShore = true
		}
	case telemetry.Lidar:
		m.lidar = v
		m.obstacle = v.DistanceM > 0 && v.DistanceM < m.nav.ObstacleDistanceM
	case telemetry.Wetness:
		m.wetLow = v.Level < m.nav.ShoreWetness
	case telemetry.Battery:
		m.battery = v.Percent
		m.haveBattery = true
		if m.batteryCritical() {
			m.enterEmergency(fmt.Sprintf("battery critical (%.0f%%)", v.Percent))
		}
	}
	m.checkHazards()
}

func (m *Machine) batteryCritical() bool {
	return m.haveBattery && m.battery <= m.nav.BatteryCriticalPct
}

// checkHazards moves a cruising boat into the matching detection mode.
func (m *Machine) checkHazards() {
	if m.state != telemetry.StateDrive && m.state != telemetry.StateGoToPoint {
		return
	}
	switch {
	case m.obstacle:
		m.lastHazard = hazardObstacle
		m.transition(telemetry.StateCollisionDetection,
			fmt.Sprintf("obstacle at %.1fm bearing %.0f°", m.lidar.DistanceM, m.lidar.AngleDeg))
	case m.wetLow:
		m.lastHazard = hazardShore
		m.transition(telemetry.StateShoreDetection, "wetness probe dry")
	case m.nearShore:
		m.lastHazard = hazardShore
		m.transition(telemetry.StateShoreDetection, "within shore distance")
	}
}

func (m *Machine) enterEmergency(reason string) {
	if m.state == telemetry.StateEmergency {
		return
	}
	m.emergencyWhy = reason
	m.transition(telemetry.StateEmergency, reason)
}

// MarkStale records that a safety sensor went silent and forces EMERGENCY.
func (m *Machine) MarkStale(kind telemetry.SensorKind) {
	if m.stale[kind] {
		return
	}
	m.stale[kind] = true
	m.enterEmergency(fmt.Sprintf("stale %s data", kind))
}

// MarkFresh clears the stale flag of kind. EMERGENCY is not left
// automatically; the operator has to resume.
func (m *Machine) MarkFresh(kind telemetry.SensorKind) {
	delete(m.stale, kind)
}

// Stale reports whether any sensor is flagged stale.
func (m *Machine) Stale() bool { return len(m.stale) > 0 }

// HandleCommand applies an operator command and returns its acknowledgement.
func (m *Machine) HandleCommand(cmd bus.CommandEvent) bus.CommandAckEvent {
	ack := bus.CommandAckEvent{ID: cmd.ID, Name: cmd.Name}
	reject := func(reason string) bus.CommandAckEvent {
		m.rejectTrigger(string(cmd.Name))
		ack.Reason = reason
		ack.State = m.state
		return ack
	}

	switch cmd.Name {
	case bus.CmdStart:
		if m.state != telemetry.StateStop {
			return reject(fmt.Sprintf("cannot start from %s", m.state))
		}
		if m.hazardPresent() {
			return reject("hazard present")
		}
		m.holdHeading = m.heading
		m.route.Resume()
		m.transition(telemetry.StateDrive, "start command")

	case bus.CmdStop:
		switch m.state {
		case telemetry.StateStop, telemetry.StateEmergency:
			return reject(fmt.Sprintf("cannot stop from %s", m.state))
		}
		m.transition(telemetry.StateStop, "stop command")

	case bus.CmdEmergency:
		m.enterEmergency("emergency command")

	case bus.CmdResume:
		if m.state != telemetry.StateEmergency {
			return reject(fmt.Sprintf("cannot resume from %s", m.state))
		}
		if m.Stale() {
			return reject("sensor data still stale")
		}
		if m.batteryCritical() {
			return reject("battery still critical")
		}
		m.emergencyWhy = ""
		m.transition(telemetry.StateStop, "resume command")

	case bus.CmdSetRoute:
		if err := bus.ValidateRoute(cmd.Route); err != nil {
			return reject(err.Error())
		}
		m.route.SetRoute(cmd.Route)
		m.log.Info("route replaced", "waypoints", len(cmd.Route))

	case bus.CmdManual:
		m.manual = cmd.Manual
		if cmd.Rudder != nil {
			m.manualRudder = *cmd.Rudder
		}
		if cmd.Motor != nil {
			m.manualMotor = *cmd.Motor
		}
		if !m.manual {
			m.manualRudder, m.manualMotor = telemetry.RudderCenter, 0
		}
		m.log.Info("manual control", "on", m.manual, "rudder", m.manualRudder, "motor", m.manualMotor)

	default:
		return reject(fmt.Sprintf("unknown command %q", cmd.Name))
	}

	ack.Accepted = true
	ack.State = m.state
	return ack
}

// Step runs one control cycle of dt and returns the actuator command to write.
func (m *Machine) Step(dt time.Duration) telemetry.ActuatorCommand {
	m.cycles++
	switch m.state {
	case telemetry.StateCollisionDetection, telemetry.StateShoreDetection:
		m.beginAvoidance()
	case telemetry.StateDrive:
		if !m.manual {
			if _, ok := m.route.Active(); ok {
				m.transition(telemetry.StateGoToPoint, "waypoint active")
			}
		}
	case telemetry.StateGoToPoint:
		if m.manual {
			m.holdHeading = m.heading
			m.transition(telemetry.StateDrive, "manual control")
		} else if m.advanceRoute() {
			return m.idle()
		}
	case telemetry.StateAdjustRudders:
		m.avoidElapsed += dt
		if m.avoidanceDone() {
			m.resumeCourse()
		}
	}

	switch m.state {
	case telemetry.StateDrive:
		if m.manual {
			m.pidActive = false
			return m.clampCommand(float64(m.manualRudder), float64(m.manualMotor))
		}
		return m.steer(m.holdHeading, m.nav.CruiseSpeedMps, dt)
	case telemetry.StateGoToPoint:
		heading, speed := m.waypointCourse()
		return m.steer(heading, speed, dt)
	case telemetry.StateAdjustRudders:
		return m.steer(m.avoidHeading, m.nav.ApproachSpeedMps, dt)
	}
	return m.idle()
}

func (m *Machine) idle() telemetry.ActuatorCommand {
	m.pidActive = false
	return telemetry.SafeCommand
}

// advanceRoute marks reached waypoints and stops at the end of the route.
// It reports whether the machine left GO_TO_POINT.
func (m *Machine) advanceRoute() bool {
	advanced, finished := m.route.Advance(m.nav.ArrivalDistanceM)
	if advanced {
		m.log.Info("waypoint reached", "visited", m.route.Visited())
	}
	if finished {
		m.transition(telemetry.StateStop, "route complete")
		return true
	}
	if _, ok := m.route.Active(); !ok {
		m.transition(telemetry.StateStop, "no active waypoint")
		return true
	}
	return false
}

// waypointCourse returns the bearing to the active waypoint and the speed to
// hold, slowing down inside twice the arrival radius.
func (m *Machine) waypointCourse() (heading, speed float64) {
	wp, ok := m.route.Active()
	pos, havePos := m.route.Position()
	if !ok || !havePos {
		return m.heading, m.nav.ApproachSpeedMps
	}
	speed = m.nav.CruiseSpeedMps
	if route.Distance(pos, wp) < 2*m.nav.ArrivalDistanceM {
		speed = m.nav.ApproachSpeedMps
	}
	return route.Bearing(pos, wp), speed
}

// beginAvoidance picks the escape heading for the detected hazard and enters
// ADJUST_RUDDERS.
func (m *Machine) beginAvoidance() {
	switch m.lastHazard {
	case hazardObstacle:
		turn := -90.0
		if m.lidar.AngleDeg < 0 {
			turn = 90
		}
		m.avoidHeading = telemetry.NormalizeDegrees(m.heading + m.lidar.AngleDeg + turn)
	default:
		pos, havePos := m.route.Position()
		if shore, _, ok := m.route.NearestShore(); ok && havePos {
			m.avoidHeading = route.Bearing(shore, pos)
		} else {
			m.avoidHeading = telemetry.NormalizeDegrees(m.heading + 180)
		}
	}
	m.avoidElapsed = 0
	m.transition(telemetry.StateAdjustRudders, fmt.Sprintf("avoiding, new heading %.0f°", m.avoidHeading))
}

func (m *Machine) avoidanceDone() bool {
	if m.avoidElapsed >= m.nav.AvoidTimeout {
		return true
	}
	return math.Abs(telemetry.HeadingError(m.avoidHeading, m.heading)) < m.nav.HeadingToleranceDeg
}

func (m *Machine) resumeCourse() {
	if _, ok := m.route.Active(); ok && !m.manual {
		m.transition(telemetry.StateGoToPoint, "avoidance complete")
		return
	}
	m.holdHeading = m.heading
	m.transition(telemetry.StateDrive, "avoidance complete")
}

// steer runs both PID loops towards the target heading and speed.
func (m *Machine) steer(targetHeading, targetSpeed float64, dt time.Duration) telemetry.ActuatorCommand {
	if !m.pidActive {
		m.rudder, m.throttle = pid.State{}, pid.State{}
		m.pidActive = true
	}
	secs := dt.Seconds()
	setpoint := m.heading + telemetry.HeadingError(targetHeading, m.heading)
	rudder, rs := pid.Step(setpoint, m.heading, m.gains.Rudder, m.rudder, secs, m.rudderL)
	motor, ts := pid.Step(targetSpeed, m.speed, m.gains.Throttle, m.throttle, secs, m.motorL)
	m.rudder, m.throttle = rs, ts
	return m.clampCommand(rudder, motor)
}

func (m *Machine) clampCommand(rudder, motor float64) telemetry.ActuatorCommand {
	return telemetry.ActuatorCommand{
		RudderAngle: int(math.Round(m.rudderL.Clamp(rudder))),
		MotorPower:  int(math.Round(m.motorL.Clamp(motor))),
	}
}
