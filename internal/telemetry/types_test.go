package telemetry

import (
	"math"
	"testing"
	"time"
)

func TestDistanceTo(t *testing.T) {
	a := GpsCoord{Lat: 0, Lon: 0}
	b := GpsCoord{Lat: 0, Lon: 1}
	d := a.DistanceTo(b)
	// one degree of longitude at the equator
	if math.Abs(d-111195) > 50 {
		t.Fatalf("distance = %.1f, want ~111195", d)
	}
	if a.DistanceTo(a) != 0 {
		t.Fatalf("distance to self should be zero")
	}
}

func TestBearingTo(t *testing.T) {
	origin := GpsCoord{Lat: 10, Lon: 10}
	cases := []struct {
		to   GpsCoord
		want float64
	}{
		{GpsCoord{Lat: 11, Lon: 10}, 0},
		{GpsCoord{Lat: 10, Lon: 11}, 90},
		{GpsCoord{Lat: 9, Lon: 10}, 180},
		{GpsCoord{Lat: 10, Lon: 9}, 270},
	}
	for _, c := range cases {
		got := origin.BearingTo(c.to)
		if math.Abs(HeadingError(c.want, got)) > 0.5 {
			t.Fatalf("bearing to %v = %.2f, want %.0f", c.to, got, c.want)
		}
	}
}

func TestOffsetRoundTrip(t *testing.T) {
	start := GpsCoord{Lat: 48.2, Lon: 16.4}
	end := start.Offset(45, 100)
	if d := start.DistanceTo(end); math.Abs(d-100) > 0.5 {
		t.Fatalf("offset distance = %.2f, want 100", d)
	}
	if b := start.BearingTo(end); math.Abs(b-45) > 0.5 {
		t.Fatalf("offset bearing = %.2f, want 45", b)
	}
}

func TestHeadingError(t *testing.T) {
	cases := []struct{ target, current, want float64 }{
		{10, 350, 20},
		{350, 10, -20},
		{180, 0, 180},
		{90, 90, 0},
	}
	for _, c := range cases {
		if got := HeadingError(c.target, c.current); got != c.want {
			t.Fatalf("HeadingError(%v,%v) = %v, want %v", c.target, c.current, got, c.want)
		}
	}
}

func TestMagHeading(t *testing.T) {
	if h := (Mag{X: 0, Y: 1}).Heading(); math.Abs(h-90) > 1e-9 {
		t.Fatalf("heading = %v, want 90", h)
	}
	if h := (Mag{X: 0, Y: -1}).Heading(); math.Abs(h-270) > 1e-9 {
		t.Fatalf("heading = %v, want 270", h)
	}
}

func TestNewReadingFieldOrder(t *testing.T) {
	at := time.Unix(5, 0)
	r, ok := NewReading(SensorLidar, []float64{30, 4.5}, at)
	if !ok {
		t.Fatalf("NewReading failed")
	}
	lid := r.(Lidar)
	if lid.AngleDeg != 30 || lid.DistanceM != 4.5 || !lid.At.Equal(at) {
		t.Fatalf("unexpected lidar reading %+v", lid)
	}
	if _, ok := NewReading(SensorLidar, []float64{1}, at); ok {
		t.Fatalf("expected field count mismatch to fail")
	}
	if _, ok := NewReading("XYZ", nil, at); ok {
		t.Fatalf("expected unknown kind to fail")
	}
	for _, k := range SensorKinds {
		vals := make([]float64, FieldCount(k))
		r, ok := NewReading(k, vals, at)
		if !ok || r.Kind() != k || len(r.Fields()) != len(vals) {
			t.Fatalf("kind %s did not round trip", k)
		}
	}
}

func TestGpsCoordValid(t *testing.T) {
	cases := []struct {
		c    GpsCoord
		want bool
	}{
		{GpsCoord{Lat: 45.3, Lon: 14.4}, true},
		{GpsCoord{Lat: -90, Lon: 180}, true},
		{GpsCoord{Lat: 90.5, Lon: 0}, false},
		{GpsCoord{Lat: 0, Lon: -180.1}, false},
		{GpsCoord{Lat: math.NaN(), Lon: 0}, false},
	}
	for _, tc := range cases {
		if got := tc.c.Valid(); got != tc.want {
			t.Fatalf("%v.Valid() = %v, want %v", tc.c, got, tc.want)
		}
	}
	if _, ok := NewReading(SensorGPS, []float64{95, 14}, time.Unix(0, 0)); ok {
		t.Fatalf("expected out of range latitude to fail")
	}
	if _, ok := NewReading(SensorGPS, []float64{45, 200}, time.Unix(0, 0)); ok {
		t.Fatalf("expected out of range longitude to fail")
	}
}

func TestVehicleStateText(t *testing.T) {
	b, err := StateGoToPoint.MarshalText()
	if err != nil || string(b) != "GO_TO_POINT" {
		t.Fatalf("MarshalText = %q, %v", b, err)
	}
	var s VehicleState
	if err := s.UnmarshalText([]byte("EMERGENCY")); err != nil || s != StateEmergency {
		t.Fatalf("UnmarshalText = %v, %v", s, err)
	}
	if _, err := ParseVehicleState("FLYING"); err == nil {
		t.Fatalf("expected error for unknown state")
	}
}

func TestSensorRowTableName(t *testing.T) {
	row := NewSensorRow("usv-1", GPS{Coord: GpsCoord{Lat: 1, Lon: 2}})
	if row.TableName() != SensorTablePrefix+"gps" {
		t.Fatalf("table = %s", row.TableName())
	}
	if row.Values["lat"] != 1 || row.Values["lon"] != 2 {
		t.Fatalf("values = %v", row.Values)
	}
}
