package codec

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
	"time"

	"usv-kernel/internal/telemetry"
)

var epoch = time.Unix(1700000000, 0).UTC()

func fixedDecoder() *Decoder {
	d := NewDecoder()
	d.SetClock(func() time.Time { return epoch })
	return d
}

func sampleStream() []byte {
	readings := []telemetry.Reading{
		telemetry.Accel{X: 0.1, Y: -0.2, Z: 9.81},
		telemetry.Gyro{X: 1, Y: 2, Z: 3},
		telemetry.Mag{X: 20.5, Y: -3.25, Z: 41},
		telemetry.Lidar{AngleDeg: 15, DistanceM: 7.5},
		telemetry.Battery{VoltageV: 12.6, Percent: 88},
		telemetry.RPM{RPM: 1450},
		telemetry.Temperature{Celsius: 31.5},
		telemetry.Wetness{Level: 0.93},
		telemetry.GPS{Coord: telemetry.GpsCoord{Lat: 45.123456, Lon: 14.654321}},
		telemetry.GPSStatus{Fix: true, Satellites: 9},
	}
	var buf bytes.Buffer
	for _, r := range readings {
		buf.Write(EncodeReading(r))
	}
	return buf.Bytes()
}

func TestDecodeAllSensorKinds(t *testing.T) {
	d := fixedDecoder()
	got, err := d.Decode(sampleStream())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != len(telemetry.SensorKinds) {
		t.Fatalf("got %d readings, want %d", len(got), len(telemetry.SensorKinds))
	}
	for i, k := range telemetry.SensorKinds {
		if got[i].Kind() != k {
			t.Fatalf("reading %d kind = %s, want %s", i, got[i].Kind(), k)
		}
		if !got[i].Time().Equal(epoch) {
			t.Fatalf("reading %d not stamped with decoder clock", i)
		}
	}
	gps := got[8].(telemetry.GPS)
	if gps.Coord.Lat != 45.123456 || gps.Coord.Lon != 14.654321 {
		t.Fatalf("gps = %+v", gps.Coord)
	}
	if d.Frames() != 10 || d.Errors() != 0 {
		t.Fatalf("frames=%d errors=%d", d.Frames(), d.Errors())
	}
}

func TestDecodeSplitBoundaries(t *testing.T) {
	stream := sampleStream()
	whole, err := fixedDecoder().Decode(stream)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for split := 0; split <= len(stream); split++ {
		d := fixedDecoder()
		a, errA := d.Decode(stream[:split])
		b, errB := d.Decode(stream[split:])
		if errA != nil || errB != nil {
			t.Fatalf("split %d: errors %v / %v", split, errA, errB)
		}
		if got := append(a, b...); !reflect.DeepEqual(got, whole) {
			t.Fatalf("split %d: got %d readings, want %d", split, len(got), len(whole))
		}
		if d.Buffered() != 0 {
			t.Fatalf("split %d: %d bytes left buffered", split, d.Buffered())
		}
	}
}

func TestDecodeByteAtATime(t *testing.T) {
	stream := sampleStream()
	d := fixedDecoder()
	var got []telemetry.Reading
	for i := range stream {
		rs, err := d.Decode(stream[i : i+1])
		if err != nil {
			t.Fatalf("byte %d: %v", i, err)
		}
		got = append(got, rs...)
	}
	if len(got) != len(telemetry.SensorKinds) {
		t.Fatalf("got %d readings", len(got))
	}
}

func TestDecodeBadChecksumThenValid(t *testing.T) {
	bad := []byte("$BAT,12.1,50*00\n")
	good := EncodeReading(telemetry.Battery{VoltageV: 12.4, Percent: 77})
	d := fixedDecoder()
	got, err := d.Decode(append(bad, good...))
	if len(got) != 1 {
		t.Fatalf("got %d readings, want 1", len(got))
	}
	if bat := got[0].(telemetry.Battery); bat.Percent != 77 {
		t.Fatalf("wrong reading survived: %+v", bat)
	}
	var fe *FrameError
	if !errors.As(err, &fe) || !errors.Is(err, ErrChecksum) {
		t.Fatalf("expected checksum FrameError, got %v", err)
	}
	if d.Errors() != 1 {
		t.Fatalf("Errors() = %d, want 1", d.Errors())
	}
}

func TestDecodeRejectsGPSOutOfRange(t *testing.T) {
	bad := []byte("$GPS,95.0,14.4*" + hexSum("GPS,95.0,14.4") + "\n")
	good := EncodeReading(telemetry.GPS{Coord: telemetry.GpsCoord{Lat: 45.3, Lon: 14.4}})
	d := fixedDecoder()
	got, err := d.Decode(append(bad, good...))
	if len(got) != 1 || got[0].(telemetry.GPS).Coord.Lat != 45.3 {
		t.Fatalf("got %v, want only the valid fix", got)
	}
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected malformed frame error, got %v", err)
	}
}

func TestDecodeResync(t *testing.T) {
	good := EncodeReading(telemetry.RPM{RPM: 900})
	cases := map[string][]byte{
		"noise":       []byte("\x00\xffgarbage"),
		"truncated":   []byte("$GPS,45.1,"),
		"unknown tag": []byte("$XYZ,1*" + hexSum("XYZ,1") + "\n"),
		"bad number":  []byte("$RPM,abc*" + hexSum("RPM,abc") + "\n"),
		"wrong arity": []byte("$RPM,1,2*" + hexSum("RPM,1,2") + "\n"),
		"no checksum": []byte("$RPM,1\n"),
	}
	for name, junk := range cases {
		t.Run(name, func(t *testing.T) {
			d := fixedDecoder()
			stream := append(append([]byte{}, junk...), good...)
			got, _ := d.Decode(stream)
			if len(got) != 1 || got[0].Kind() != telemetry.SensorRPM {
				t.Fatalf("got %v", got)
			}
		})
	}
}

func TestDecodeTooLong(t *testing.T) {
	d := fixedDecoder()
	long := append([]byte("$ACC,"), bytes.Repeat([]byte("1"), MaxFrameLen*2)...)
	if _, err := d.Decode(long); !errors.Is(err, ErrTooLong) {
		t.Fatalf("expected ErrTooLong, got %v", err)
	}
	got, _ := d.Decode(append([]byte("1,2*00\n"), EncodeReading(telemetry.Wetness{Level: 1})...))
	if len(got) != 1 || got[0].Kind() != telemetry.SensorWetness {
		t.Fatalf("decoder did not resync after oversize frame: %v", got)
	}
}

func TestDecodeCRLF(t *testing.T) {
	frame := EncodeReading(telemetry.Temperature{Celsius: 20})
	frame = append(frame[:len(frame)-1], '\r', '\n')
	got, err := fixedDecoder().Decode(frame)
	if err != nil || len(got) != 1 {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestCommandRoundTrip(t *testing.T) {
	for rudder := telemetry.RudderMin; rudder <= telemetry.RudderMax; rudder += 15 {
		for motor := telemetry.MotorMin; motor <= telemetry.MotorMax; motor += 25 {
			cmd := telemetry.ActuatorCommand{RudderAngle: rudder, MotorPower: motor}
			frame, err := EncodeCommand(cmd)
			if err != nil {
				t.Fatalf("EncodeCommand(%v): %v", cmd, err)
			}
			got, err := ParseCommand(frame)
			if err != nil {
				t.Fatalf("ParseCommand(%q): %v", frame, err)
			}
			if got != cmd {
				t.Fatalf("round trip %v -> %v", cmd, got)
			}
		}
	}
}

func TestEncodeCommandFormat(t *testing.T) {
	frame, err := EncodeCommand(telemetry.ActuatorCommand{RudderAngle: 90, MotorPower: 0})
	if err != nil {
		t.Fatalf("EncodeCommand: %v", err)
	}
	want := "$CMD,90,0*" + hexSum("CMD,90,0") + "\n"
	if string(frame) != want {
		t.Fatalf("frame = %q, want %q", frame, want)
	}
}

func TestEncodeCommandOutOfRange(t *testing.T) {
	for _, cmd := range []telemetry.ActuatorCommand{
		{RudderAngle: -1, MotorPower: 0},
		{RudderAngle: 181, MotorPower: 0},
		{RudderAngle: 90, MotorPower: 101},
	} {
		if _, err := EncodeCommand(cmd); !errors.Is(err, ErrOutOfRange) {
			t.Fatalf("EncodeCommand(%v) err = %v", cmd, err)
		}
	}
}

func TestParseCommandRejectsSensorFrame(t *testing.T) {
	if _, err := ParseCommand(EncodeReading(telemetry.RPM{RPM: 1})); !errors.Is(err, ErrUnknownTag) {
		t.Fatalf("expected ErrUnknownTag, got %v", err)
	}
}

func hexSum(body string) string {
	const digits = "0123456789ABCDEF"
	cs := Checksum([]byte(body))
	return string([]byte{digits[cs>>4], digits[cs&0x0f]})
}
