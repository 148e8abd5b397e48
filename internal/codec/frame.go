// Package codec implements the line framing spoken with the sensor and
// actuator boards: `$TAG,v1,v2,...*HH\n` where HH is the hex XOR of every
// byte between `$` and `*`.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"usv-kernel/internal/telemetry"
)

const (
	frameStart = '$'
	frameSum   = '*'
	frameEnd   = '\n'

	// MaxFrameLen bounds a frame including delimiters. Anything longer is
	// treated as line noise.
	MaxFrameLen = 128

	// CommandTag marks actuator frames.
	CommandTag = "CMD"
)

// Frame level failures. FrameError wraps one of these.
var (
	ErrChecksum   = errors.New("checksum mismatch")
	ErrMalformed  = errors.New("malformed frame")
	ErrUnknownTag = errors.New("unknown tag")
	ErrTooLong    = errors.New("frame too long")
	ErrTruncated  = errors.New("truncated frame")
	ErrOutOfRange = errors.New("actuator value out of range")
)

// FrameError describes one rejected frame. It is never fatal to the stream.
type FrameError struct {
	Err   error
	Frame string
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame %q: %v", e.Frame, e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }

// Checksum returns the XOR of every byte in body.
func Checksum(body []byte) byte {
	var cs byte
	for _, b := range body {
		cs ^= b
	}
	return cs
}

// appendFrame writes `$tag,fields...*HH\n` onto dst.
func appendFrame(dst []byte, tag string, fields []string) []byte {
	start := len(dst)
	dst = append(dst, frameStart)
	dst = append(dst, tag...)
	for _, f := range fields {
		dst = append(dst, ',')
		dst = append(dst, f...)
	}
	cs := Checksum(dst[start+1:])
	dst = append(dst, frameSum)
	dst = append(dst, fmt.Sprintf("%02X", cs)...)
	return append(dst, frameEnd)
}

// splitFrame validates delimiters and checksum of a single frame (without the
// trailing newline) and returns its tag and fields.
func splitFrame(frame []byte) (string, []string, error) {
	frame = bytes.TrimRight(frame, "\r")
	if len(frame) < 2 || frame[0] != frameStart {
		return "", nil, ErrMalformed
	}
	star := bytes.LastIndexByte(frame, frameSum)
	if star < 0 || len(frame)-star != 3 {
		return "", nil, ErrMalformed
	}
	want, err := strconv.ParseUint(string(frame[star+1:]), 16, 8)
	if err != nil {
		return "", nil, ErrMalformed
	}
	body := frame[1:star]
	if Checksum(body) != byte(want) {
		return "", nil, ErrChecksum
	}
	parts := strings.Split(string(body), ",")
	if parts[0] == "" {
		return "", nil, ErrMalformed
	}
	return parts[0], parts[1:], nil
}

func parseFloats(fields []string) ([]float64, error) {
	vals := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, ErrMalformed
		}
		vals[i] = v
	}
	return vals, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// EncodeReading renders a sensor reading as a frame. Used by the firmware
// simulator and by tests.
func EncodeReading(r telemetry.Reading) []byte {
	fields := r.Fields()
	vals := make([]string, len(fields))
	for i, f := range fields {
		vals[i] = formatFloat(f.Value)
	}
	return appendFrame(nil, string(r.Kind()), vals)
}

// EncodeCommand renders an actuator command. Values outside the actuator
// limits are a caller bug and are rejected with ErrOutOfRange.
func EncodeCommand(cmd telemetry.ActuatorCommand) ([]byte, error) {
	if !cmd.InRange() {
		return nil, fmt.Errorf("%w: %s", ErrOutOfRange, cmd)
	}
	return appendFrame(nil, CommandTag, []string{
		strconv.Itoa(cmd.RudderAngle),
		strconv.Itoa(cmd.MotorPower),
	}), nil
}

// ParseCommand decodes a single CMD frame.
func ParseCommand(frame []byte) (telemetry.ActuatorCommand, error) {
	tag, fields, err := splitFrame(bytes.TrimRight(frame, "\n"))
	if err != nil {
		return telemetry.ActuatorCommand{}, &FrameError{Err: err, Frame: string(frame)}
	}
	if tag != CommandTag {
		return telemetry.ActuatorCommand{}, &FrameError{Err: ErrUnknownTag, Frame: string(frame)}
	}
	if len(fields) != 2 {
		return telemetry.ActuatorCommand{}, &FrameError{Err: ErrMalformed, Frame: string(frame)}
	}
	rudder, err1 := strconv.Atoi(fields[0])
	motor, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil {
		return telemetry.ActuatorCommand{}, &FrameError{Err: ErrMalformed, Frame: string(frame)}
	}
	cmd := telemetry.ActuatorCommand{RudderAngle: rudder, MotorPower: motor}
	if !cmd.InRange() {
		return cmd, fmt.Errorf("%w: %s", ErrOutOfRange, cmd)
	}
	return cmd, nil
}

// parseReading turns a validated frame into a reading.
func parseReading(frame []byte, at time.Time) (telemetry.Reading, error) {
	tag, fields, err := splitFrame(frame)
	if err != nil {
		return nil, err
	}
	kind := telemetry.SensorKind(tag)
	if !kind.Valid() {
		return nil, ErrUnknownTag
	}
	vals, err := parseFloats(fields)
	if err != nil {
		return nil, err
	}
	r, ok := telemetry.NewReading(kind, vals, at)
	if !ok {
		return nil, ErrMalformed
	}
	return r, nil
}
