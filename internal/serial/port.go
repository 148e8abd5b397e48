// Package serial implements the driver link on top of go.bug.st/serial,
// which provides real serial communication with the sensor and actuator
// boards.
package serial

import (
	"errors"
	"fmt"
	"time"

	bugserial "go.bug.st/serial"
)

// ErrClosed is returned by I/O on a closed port.
var ErrClosed = errors.New("serial port not open")

// Port is an open serial device.
type Port struct {
	port bugserial.Port
	dev  string
	baud int
}

// Open opens dev at baud with 8N1 framing and the given read timeout. A
// timed out Read returns 0, nil.
func Open(dev string, baud int, readTimeout time.Duration) (*Port, error) {
	p, err := bugserial.Open(dev, &bugserial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   bugserial.NoParity,
		StopBits: bugserial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", dev, err)
	}
	if readTimeout > 0 {
		if err := p.SetReadTimeout(readTimeout); err != nil {
			p.Close()
			return nil, fmt.Errorf("set read timeout on %s: %w", dev, err)
		}
	}
	// stale bytes from before we opened would only produce frame errors
	_ = p.ResetInputBuffer()
	return &Port{port: p, dev: dev, baud: baud}, nil
}

// Read reads whatever arrived, waiting at most the read timeout.
func (s *Port) Read(p []byte) (int, error) {
	if s.port == nil {
		return 0, ErrClosed
	}
	return s.port.Read(p)
}

// Write sends p in full.
func (s *Port) Write(p []byte) (int, error) {
	if s.port == nil {
		return 0, ErrClosed
	}
	return s.port.Write(p)
}

// SetReadTimeout changes how long Read waits for data.
func (s *Port) SetReadTimeout(d time.Duration) error {
	if s.port == nil {
		return ErrClosed
	}
	return s.port.SetReadTimeout(d)
}

// Close closes the underlying serial connection.
func (s *Port) Close() error {
	if s.port == nil {
		return nil
	}
	_ = s.port.Drain()
	err := s.port.Close()
	s.port = nil
	return err
}

func (s *Port) String() string {
	return fmt.Sprintf("%s@%d", s.dev, s.baud)
}

// List returns the serial devices present on this host.
func List() ([]string, error) {
	return bugserial.GetPortsList()
}
