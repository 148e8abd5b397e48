// Package firmware simulates the sensor and actuator boards. A Simulator is a
// driver link held in memory: it consumes CMD frames, moves a simple boat
// model and answers with encoded sensor frames.
package firmware

import (
	"bytes"
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"usv-kernel/internal/codec"
	"usv-kernel/internal/config"
	"usv-kernel/internal/driver"
	"usv-kernel/internal/telemetry"
)

// ErrClosed is returned by I/O on a closed simulator.
var ErrClosed = errors.New("simulated link closed")

const (
	defaultEmitInterval = 100 * time.Millisecond
	maxTurnRateDeg      = 25.0
	speedTau            = 2.0
	lidarFOVDeg         = 60.0
	lidarRangeM         = 40.0
	wetShoreM           = 3.0
	gpsNoiseM           = 0.3
	maxRPM              = 3000.0
	maxStep             = time.Second
)

// Boat is the simulated vessel.
type Boat struct {
	Position   telemetry.GpsCoord
	HeadingDeg float64
	SpeedMps   float64
	TurnRate   float64
	BatteryPct float64
	Command    telemetry.ActuatorCommand
}

// Simulator implements driver.Link.
type Simulator struct {
	mu        sync.Mutex
	cfg       config.Simulator
	shore     []telemetry.GpsCoord
	boat      Boat
	now       func() time.Time
	rnd       *rand.Rand
	interval  time.Duration
	last      time.Time
	nextEmit  time.Time
	in        []byte
	out       []byte
	closed    bool
	silenced  map[telemetry.SensorKind]bool
	corrupt   int
	commands  uint64
	badFrames uint64
	timeout   time.Duration
}

// Option customises a Simulator.
type Option func(*Simulator)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) { s.now = now }
}

// WithRand sets the noise source. Without it readings are exact.
func WithRand(r *rand.Rand) Option {
	return func(s *Simulator) { s.rnd = r }
}

// WithEmitInterval sets how often a full set of sensor frames is produced.
func WithEmitInterval(d time.Duration) Option {
	return func(s *Simulator) { s.interval = d }
}

// New returns an open simulator starting at cfg.Start. Shore points feed
// the hull wetness probe.
func New(cfg config.Simulator, shore []telemetry.GpsCoord, opts ...Option) *Simulator {
	s := &Simulator{
		cfg:      cfg,
		shore:    append([]telemetry.GpsCoord(nil), shore...),
		now:      time.Now,
		interval: defaultEmitInterval,
		silenced: make(map[telemetry.SensorKind]bool),
		boat: Boat{
			Position:   cfg.Start,
			HeadingDeg: telemetry.NormalizeDegrees(cfg.HeadingDeg),
			BatteryPct: cfg.BatteryPct,
			Command:    telemetry.SafeCommand,
		},
	}
	for _, o := range opts {
		o(s)
	}
	s.last = s.now()
	s.nextEmit = s.last
	return s
}

// Opener returns a driver opener that reopens this simulator. The boat keeps
// its state across reopens.
func (s *Simulator) Opener() driver.Opener {
	return func(context.Context) (driver.Link, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.closed = false
		s.in = s.in[:0]
		s.out = s.out[:0]
		s.last = s.now()
		s.nextEmit = s.last
		return s, nil
	}
}

// Read returns pending sensor frames. It never blocks: with nothing pending
// it returns 0, nil like a serial read that timed out.
func (s *Simulator) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	s.advance()
	n := copy(p, s.out)
	s.out = s.out[n:]
	return n, nil
}

// Write accepts CMD frames. Partial frames are kept until their newline
// arrives; invalid frames are counted and ignored.
func (s *Simulator) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	s.advance()
	s.in = append(s.in, p...)
	for {
		i := bytes.IndexByte(s.in, '\n')
		if i < 0 {
			break
		}
		line := s.in[:i+1]
		cmd, err := codec.ParseCommand(line)
		if err != nil {
			s.badFrames++
		} else {
			s.commands++
			s.boat.Command = cmd
		}
		s.in = s.in[i+1:]
	}
	return len(p), nil
}

// SetReadTimeout is recorded only; Read never waits.
func (s *Simulator) SetReadTimeout(d time.Duration) error {
	s.mu.Lock()
	s.timeout = d
	s.mu.Unlock()
	return nil
}

// Close marks the link closed. Pending frames are discarded.
func (s *Simulator) Close() error {
	s.mu.Lock()
	s.closed = true
	s.out = nil
	s.mu.Unlock()
	return nil
}

// Boat returns a copy of the vessel state.
func (s *Simulator) Boat() Boat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boat
}

// Counters returns the number of accepted and rejected command frames.
func (s *Simulator) Counters() (commands, bad uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commands, s.badFrames
}

// Silence stops or restarts the frames of one sensor.
func (s *Simulator) Silence(k telemetry.SensorKind, off bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if off {
		s.silenced[k] = true
	} else {
		delete(s.silenced, k)
	}
}

// CorruptNext garbles the checksum of the next n frames.
func (s *Simulator) CorruptNext(n int) {
	s.mu.Lock()
	s.corrupt += n
	s.mu.Unlock()
}

// advance integrates the boat up to now and queues the sensor frames that
// became due.
func (s *Simulator) advance() {
	now := s.now()
	dt := now.Sub(s.last)
	s.last = now
	for dt > 0 {
		step := min(dt, maxStep)
		s.integrate(step.Seconds())
		dt -= step
	}
	if now.Before(s.nextEmit) {
		return
	}
	s.emit(now)
	s.nextEmit = s.nextEmit.Add(s.interval)
	if !s.nextEmit.After(now) {
		s.nextEmit = now.Add(s.interval)
	}
}

func (s *Simulator) integrate(secs float64) {
	b := &s.boat
	motor := float64(b.Command.MotorPower) / float64(telemetry.MotorMax)
	target := motor * s.cfg.MaxSpeedMps
	b.SpeedMps += (target - b.SpeedMps) * math.Min(1, secs/speedTau)

	deflection := float64(b.Command.RudderAngle-telemetry.RudderCenter) / float64(telemetry.RudderMax-telemetry.RudderCenter)
	authority := 0.0
	if s.cfg.MaxSpeedMps > 0 {
		authority = math.Min(1, b.SpeedMps/s.cfg.MaxSpeedMps+0.2)
	}
	b.TurnRate = deflection * maxTurnRateDeg * authority
	b.HeadingDeg = telemetry.NormalizeDegrees(b.HeadingDeg + b.TurnRate*secs)
	b.Position = b.Position.Offset(b.HeadingDeg, b.SpeedMps*secs)

	drain := s.cfg.BatteryDrainPerMin * secs / 60 * (0.25 + 0.75*motor)
	b.BatteryPct = math.Max(0, b.BatteryPct-drain)
}

func (s *Simulator) noise(sigma float64) float64 {
	if s.rnd == nil {
		return 0
	}
	return s.rnd.NormFloat64() * sigma
}

func (s *Simulator) emit(at time.Time) {
	for _, r := range s.readings(at) {
		if s.silenced[r.Kind()] {
			continue
		}
		frame := codec.EncodeReading(r)
		if s.corrupt > 0 {
			s.corrupt--
			// flip the low checksum digit
			i := len(frame) - 2
			if frame[i] == '0' {
				frame[i] = '1'
			} else {
				frame[i] = '0'
			}
		}
		s.out = append(s.out, frame...)
	}
}

func (s *Simulator) readings(at time.Time) []telemetry.Reading {
	b := s.boat
	pos := b.Position.Offset(s.rnd0to360(), math.Abs(s.noise(gpsNoiseM)))
	rad := b.HeadingDeg * math.Pi / 180
	motor := float64(b.Command.MotorPower) / float64(telemetry.MotorMax)
	angle, dist := s.lidar()
	return []telemetry.Reading{
		telemetry.GPS{Coord: pos, At: at},
		telemetry.GPSStatus{Fix: true, Satellites: 9, At: at},
		telemetry.Mag{X: math.Cos(rad) * 0.25, Y: math.Sin(rad) * 0.25, Z: -0.4, At: at},
		telemetry.Lidar{AngleDeg: angle, DistanceM: dist, At: at},
		telemetry.Battery{VoltageV: 10.5 + 2.1*b.BatteryPct/100, Percent: b.BatteryPct, At: at},
		telemetry.Wetness{Level: s.wetness(), At: at},
		telemetry.RPM{RPM: motor * maxRPM, At: at},
		telemetry.Temperature{Celsius: 25 + 15*motor + s.noise(0.2), At: at},
		telemetry.Accel{X: s.noise(0.05), Y: s.noise(0.05), Z: 9.81 + s.noise(0.05), At: at},
		telemetry.Gyro{X: 0, Y: 0, Z: b.TurnRate, At: at},
	}
}

func (s *Simulator) rnd0to360() float64 {
	if s.rnd == nil {
		return 0
	}
	return s.rnd.Float64() * 360
}

// lidar returns the bearing relative to the bow and the distance to the edge
// of the nearest obstacle inside the field of view. Distance 0 is no return.
func (s *Simulator) lidar() (angle, dist float64) {
	b := s.boat
	for _, o := range s.cfg.Obstacles {
		rel := telemetry.HeadingError(b.Position.BearingTo(o.Center), b.HeadingDeg)
		if math.Abs(rel) > lidarFOVDeg/2 {
			continue
		}
		d := math.Max(0.1, b.Position.DistanceTo(o.Center)-o.RadiusM)
		if d > lidarRangeM {
			continue
		}
		if dist == 0 || d < dist {
			angle, dist = rel, d
		}
	}
	return angle, dist
}

// wetness drops when the hull is within a few metres of a shore point.
func (s *Simulator) wetness() float64 {
	for _, p := range s.shore {
		if s.boat.Position.DistanceTo(p) < wetShoreM {
			return 0.05
		}
	}
	return 1
}
