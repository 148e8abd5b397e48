// Package pid implements the discrete PID step used for the rudder and
// throttle loops. Step is pure: the caller owns the State between cycles.
package pid

import "math"

// Gains are the proportional, integral and derivative coefficients.
type Gains struct {
	Kp float64 `yaml:"kp" json:"kp"`
	Ki float64 `yaml:"ki" json:"ki"`
	Kd float64 `yaml:"kd" json:"kd"`
}

// State is carried from one cycle of an axis to the next.
type State struct {
	CumulativeError float64
	PreviousError   float64
}

// Limits bound the output. Bias is added to the PID term, e.g. the rudder
// center position.
type Limits struct {
	Min  float64
	Max  float64
	Bias float64
}

// Clamp bounds v to [Min, Max].
func (l Limits) Clamp(v float64) float64 {
	return math.Max(l.Min, math.Min(l.Max, v))
}

// Step advances one axis by dt seconds and returns the clamped output and the
// state for the next cycle.
//
// The integral is clamped so Ki times the integral alone can never push the
// output past a limit. With dt <= 0 the derivative term is zero and the
// integral does not grow. A non-finite error leaves the state untouched and
// yields the clamped bias.
func Step(setpoint, measurement float64, g Gains, s State, dt float64, l Limits) (float64, State) {
	e := setpoint - measurement
	if math.IsNaN(e) || math.IsInf(e, 0) {
		return l.Clamp(l.Bias), s
	}

	integral := s.CumulativeError
	var derivative float64
	if dt > 0 {
		integral += e * dt
		derivative = (e - s.PreviousError) / dt
	}
	integral = clampIntegral(integral, g.Ki, l)

	out := l.Bias + g.Kp*e + g.Ki*integral + g.Kd*derivative
	if math.IsNaN(out) {
		out = l.Bias
	}
	return l.Clamp(out), State{CumulativeError: integral, PreviousError: e}
}

func clampIntegral(i, ki float64, l Limits) float64 {
	if ki == 0 {
		return i
	}
	lo := (l.Min - l.Bias) / ki
	hi := (l.Max - l.Bias) / ki
	if lo > hi {
		lo, hi = hi, lo
	}
	return math.Max(lo, math.Min(hi, i))
}

// Controller binds gains and limits to one axis and keeps its state. It is
// not safe for concurrent use.
type Controller struct {
	Gains  Gains
	Limits Limits
	state  State
}

// NewController returns a controller with zeroed state.
func NewController(g Gains, l Limits) *Controller {
	return &Controller{Gains: g, Limits: l}
}

// Update runs one Step and stores the resulting state.
func (c *Controller) Update(setpoint, measurement, dt float64) float64 {
	out, next := Step(setpoint, measurement, c.Gains, c.state, dt, c.Limits)
	c.state = next
	return out
}

// Reset zeroes the integral and derivative history.
func (c *Controller) Reset() { c.state = State{} }

// State returns the carried state.
func (c *Controller) State() State { return c.state }
