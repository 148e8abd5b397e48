// Vessel data model shared by the control core and its host collaborators
package telemetry

import (
	"fmt"
	"math"
)

// GpsCoord is a WGS84 position in decimal degrees.
type GpsCoord struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

func (c GpsCoord) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

// Valid reports whether c lies within ±90 latitude and ±180 longitude.
// NaN coordinates are invalid.
func (c GpsCoord) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

const earthRadius = 6371000.0

// DistanceTo returns the great-circle distance to o in meters.
func (c GpsCoord) DistanceTo(o GpsCoord) float64 {
	dLat := (o.Lat - c.Lat) * math.Pi / 180
	dLon := (o.Lon - c.Lon) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(c.Lat*math.Pi/180)*math.Cos(o.Lat*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadius * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// BearingTo returns the initial course from c to o in degrees [0,360).
func (c GpsCoord) BearingTo(o GpsCoord) float64 {
	lat1 := c.Lat * math.Pi / 180
	lat2 := o.Lat * math.Pi / 180
	dLon := (o.Lon - c.Lon) * math.Pi / 180
	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	return NormalizeDegrees(math.Atan2(y, x) * 180 / math.Pi)
}

// Offset moves c by the given distance along bearing (flat-earth approximation,
// fine for the short hops a boat makes between samples).
func (c GpsCoord) Offset(bearingDeg, meters float64) GpsCoord {
	rad := bearingDeg * math.Pi / 180
	dLat := meters * math.Cos(rad) / earthRadius
	dLon := meters * math.Sin(rad) / (earthRadius * math.Cos(c.Lat*math.Pi/180))
	return GpsCoord{Lat: c.Lat + dLat*180/math.Pi, Lon: c.Lon + dLon*180/math.Pi}
}

// NormalizeDegrees wraps d into [0,360).
func NormalizeDegrees(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}

// HeadingError returns the signed shortest rotation from current to target in
// degrees (-180,180].
func HeadingError(target, current float64) float64 {
	e := NormalizeDegrees(target - current)
	if e > 180 {
		e -= 360
	}
	return e
}

// Actuator output ranges.
const (
	RudderMin    = 0
	RudderMax    = 180
	RudderCenter = 90
	MotorMin     = 0
	MotorMax     = 100
)

// ActuatorCommand is the per-cycle output written to the actuator board.
type ActuatorCommand struct {
	RudderAngle int `json:"rudder_angle"`
	MotorPower  int `json:"motor_power"`
}

// SafeCommand centers the rudder and cuts the motor.
var SafeCommand = ActuatorCommand{RudderAngle: RudderCenter, MotorPower: MotorMin}

// InRange reports whether both values are inside the actuator limits.
func (c ActuatorCommand) InRange() bool {
	return c.RudderAngle >= RudderMin && c.RudderAngle <= RudderMax &&
		c.MotorPower >= MotorMin && c.MotorPower <= MotorMax
}

func (c ActuatorCommand) String() string {
	return fmt.Sprintf("rudder=%d motor=%d", c.RudderAngle, c.MotorPower)
}
