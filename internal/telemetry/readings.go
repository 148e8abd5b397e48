package telemetry

import (
	"math"
	"time"
)

// SensorKind is the frame tag of a sensor reading.
type SensorKind string

// Sensor tags as they appear on the wire.
const (
	SensorAccel       SensorKind = "ACC"
	SensorGyro        SensorKind = "GYR"
	SensorMag         SensorKind = "MAG"
	SensorLidar       SensorKind = "LID"
	SensorBattery     SensorKind = "BAT"
	SensorRPM         SensorKind = "RPM"
	SensorTemperature SensorKind = "TMP"
	SensorWetness     SensorKind = "WET"
	SensorGPS         SensorKind = "GPS"
	SensorGPSStatus   SensorKind = "GPSSTAT"
)

// SensorKinds lists every known sensor tag in wire order.
var SensorKinds = []SensorKind{
	SensorAccel, SensorGyro, SensorMag, SensorLidar, SensorBattery,
	SensorRPM, SensorTemperature, SensorWetness, SensorGPS, SensorGPSStatus,
}

// Valid reports whether k is a known sensor tag.
func (k SensorKind) Valid() bool {
	for _, known := range SensorKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Reading is one decoded sensor sample. The set of implementations is closed.
type Reading interface {
	Kind() SensorKind
	Time() time.Time
	// Fields returns the named numeric values in wire order.
	Fields() []Field
	reading()
}

// Field is a named numeric value of a reading.
type Field struct {
	Name  string
	Value float64
}

// Accel is a three axis accelerometer sample in m/s².
type Accel struct {
	X, Y, Z float64
	At      time.Time
}

func (r Accel) Kind() SensorKind { return SensorAccel }
func (r Accel) Time() time.Time  { return r.At }
func (r Accel) Fields() []Field  { return vectorFields(r.X, r.Y, r.Z) }
func (Accel) reading()           {}

// Gyro is a three axis rate sample in deg/s.
type Gyro struct {
	X, Y, Z float64
	At      time.Time
}

func (r Gyro) Kind() SensorKind { return SensorGyro }
func (r Gyro) Time() time.Time  { return r.At }
func (r Gyro) Fields() []Field  { return vectorFields(r.X, r.Y, r.Z) }
func (Gyro) reading()           {}

// Mag is a three axis magnetometer sample in µT.
type Mag struct {
	X, Y, Z float64
	At      time.Time
}

func (r Mag) Kind() SensorKind { return SensorMag }
func (r Mag) Time() time.Time  { return r.At }
func (r Mag) Fields() []Field  { return vectorFields(r.X, r.Y, r.Z) }
func (Mag) reading()           {}

// Heading derives the compass heading in degrees [0,360) from the horizontal
// field components.
func (r Mag) Heading() float64 {
	return NormalizeDegrees(math.Atan2(r.Y, r.X) * 180 / math.Pi)
}

// Lidar is the nearest return of the forward range finder.
type Lidar struct {
	AngleDeg  float64
	DistanceM float64
	At        time.Time
}

func (r Lidar) Kind() SensorKind { return SensorLidar }
func (r Lidar) Time() time.Time  { return r.At }
func (r Lidar) Fields() []Field {
	return []Field{{"angle_deg", r.AngleDeg}, {"distance_m", r.DistanceM}}
}
func (Lidar) reading() {}

// Battery reports pack voltage and remaining charge.
type Battery struct {
	VoltageV float64
	Percent  float64
	At       time.Time
}

func (r Battery) Kind() SensorKind { return SensorBattery }
func (r Battery) Time() time.Time  { return r.At }
func (r Battery) Fields() []Field {
	return []Field{{"voltage_v", r.VoltageV}, {"percent", r.Percent}}
}
func (Battery) reading() {}

// RPM is the propeller shaft speed.
type RPM struct {
	RPM float64
	At  time.Time
}

func (r RPM) Kind() SensorKind { return SensorRPM }
func (r RPM) Time() time.Time  { return r.At }
func (r RPM) Fields() []Field  { return []Field{{"rpm", r.RPM}} }
func (RPM) reading()           {}

// Temperature is the electronics bay temperature.
type Temperature struct {
	Celsius float64
	At      time.Time
}

func (r Temperature) Kind() SensorKind { return SensorTemperature }
func (r Temperature) Time() time.Time  { return r.At }
func (r Temperature) Fields() []Field  { return []Field{{"celsius", r.Celsius}} }
func (Temperature) reading()           {}

// Wetness is the submerged fraction of the hull probe, 0 (dry) to 1.
type Wetness struct {
	Level float64
	At    time.Time
}

func (r Wetness) Kind() SensorKind { return SensorWetness }
func (r Wetness) Time() time.Time  { return r.At }
func (r Wetness) Fields() []Field  { return []Field{{"level", r.Level}} }
func (Wetness) reading()           {}

// GPS is a position fix.
type GPS struct {
	Coord GpsCoord
	At    time.Time
}

func (r GPS) Kind() SensorKind { return SensorGPS }
func (r GPS) Time() time.Time  { return r.At }
func (r GPS) Fields() []Field {
	return []Field{{"lat", r.Coord.Lat}, {"lon", r.Coord.Lon}}
}
func (GPS) reading() {}

// GPSStatus reports receiver fix quality.
type GPSStatus struct {
	Fix        bool
	Satellites int
	At         time.Time
}

func (r GPSStatus) Kind() SensorKind { return SensorGPSStatus }
func (r GPSStatus) Time() time.Time  { return r.At }
func (r GPSStatus) Fields() []Field {
	fix := 0.0
	if r.Fix {
		fix = 1
	}
	return []Field{{"fix", fix}, {"satellites", float64(r.Satellites)}}
}
func (GPSStatus) reading() {}

func vectorFields(x, y, z float64) []Field {
	return []Field{{"x", x}, {"y", y}, {"z", z}}
}

// FieldCount returns how many values a frame of kind k carries, or -1 for
// unknown tags.
func FieldCount(k SensorKind) int {
	switch k {
	case SensorAccel, SensorGyro, SensorMag:
		return 3
	case SensorLidar, SensorBattery, SensorGPS, SensorGPSStatus:
		return 2
	case SensorRPM, SensorTemperature, SensorWetness:
		return 1
	}
	return -1
}

// NewReading builds a reading of kind k from its field values in wire order.
// ok is false for unknown kinds, a wrong number of values or a GPS fix
// outside the coordinate range.
func NewReading(k SensorKind, v []float64, at time.Time) (r Reading, ok bool) {
	if FieldCount(k) != len(v) {
		return nil, false
	}
	switch k {
	case SensorAccel:
		return Accel{X: v[0], Y: v[1], Z: v[2], At: at}, true
	case SensorGyro:
		return Gyro{X: v[0], Y: v[1], Z: v[2], At: at}, true
	case SensorMag:
		return Mag{X: v[0], Y: v[1], Z: v[2], At: at}, true
	case SensorLidar:
		return Lidar{AngleDeg: v[0], DistanceM: v[1], At: at}, true
	case SensorBattery:
		return Battery{VoltageV: v[0], Percent: v[1], At: at}, true
	case SensorRPM:
		return RPM{RPM: v[0], At: at}, true
	case SensorTemperature:
		return Temperature{Celsius: v[0], At: at}, true
	case SensorWetness:
		return Wetness{Level: v[0], At: at}, true
	case SensorGPS:
		c := GpsCoord{Lat: v[0], Lon: v[1]}
		if !c.Valid() {
			return nil, false
		}
		return GPS{Coord: c, At: at}, true
	case SensorGPSStatus:
		return GPSStatus{Fix: v[0] != 0, Satellites: int(v[1]), At: at}, true
	}
	return nil, false
}
