package codec

import (
	"bytes"
	"errors"
	"time"

	"usv-kernel/internal/telemetry"
)

// Decoder turns a byte stream into sensor readings. Bytes of an incomplete
// frame are kept until the next call, so arbitrary read boundaries yield the
// same readings as one contiguous buffer.
//
// A Decoder is not safe for concurrent use; the driver loop owns it.
type Decoder struct {
	buf    []byte
	errors uint64
	frames uint64
	now    func() time.Time
}

// NewDecoder returns a decoder stamping readings with time.Now.
func NewDecoder() *Decoder {
	return &Decoder{now: time.Now}
}

// SetClock replaces the receive timestamp source.
func (d *Decoder) SetClock(now func() time.Time) {
	d.now = now
}

// Errors reports how many frames were rejected so far.
func (d *Decoder) Errors() uint64 { return d.errors }

// Frames reports how many frames were accepted so far.
func (d *Decoder) Frames() uint64 { return d.frames }

// Buffered reports how many bytes of a partial frame are held.
func (d *Decoder) Buffered() int { return len(d.buf) }

// Reset drops any partial frame, e.g. after the link was reopened.
func (d *Decoder) Reset() { d.buf = d.buf[:0] }

// Decode consumes p and returns every reading completed by it. Rejected frames
// are reported as *FrameError values joined into err; readings decoded before
// and after a bad frame are still returned.
func (d *Decoder) Decode(p []byte) ([]telemetry.Reading, error) {
	d.buf = append(d.buf, p...)
	var (
		out  []telemetry.Reading
		errs []error
	)
	fail := func(err error, frame []byte) {
		d.errors++
		errs = append(errs, &FrameError{Err: err, Frame: string(frame)})
	}

	for {
		start := bytes.IndexByte(d.buf, frameStart)
		if start < 0 {
			// noise between frames
			d.buf = d.buf[:0]
			break
		}
		d.buf = d.buf[start:]

		end := bytes.IndexAny(d.buf[1:], "$\n")
		if end < 0 {
			if len(d.buf) > MaxFrameLen {
				fail(ErrTooLong, d.buf[:MaxFrameLen])
				d.buf = d.buf[1:]
				continue
			}
			break
		}
		end++
		frame := d.buf[:end]
		if d.buf[end] == frameStart {
			fail(ErrTruncated, frame)
			d.buf = d.buf[end:]
			continue
		}
		d.buf = d.buf[end+1:]
		if len(frame)+1 > MaxFrameLen {
			fail(ErrTooLong, frame[:MaxFrameLen])
			continue
		}
		r, err := parseReading(frame, d.now())
		if err != nil {
			fail(err, frame)
			continue
		}
		d.frames++
		out = append(out, r)
	}
	// don't pin a large backing array for a few residual bytes
	if cap(d.buf) > 4*MaxFrameLen {
		d.buf = append([]byte(nil), d.buf...)
	}
	return out, errors.Join(errs...)
}
