package transport

import (
	"fmt"
	"io"
	"time"

	goserial "go.bug.st/serial"

	"github.com/dabubi/drone-visual-positioning/internal/monitoring"
	"github.com/dabubi/drone-visual-positioning/internal/perr"
)

// Port is the minimal interface a byte sink needs from a serial device,
// mirroring the teacher's SerialPorter contract so the same fakes used in
// other packages' tests work here without hardware.
type Port interface {
	io.Writer
	io.Closer
}

// Opener creates a new Port at path, used by Sink to reconnect after a
// write failure.
type Opener func(path string) (Port, error)

// OpenRealPort opens path as a real serial device at baud, 8N1. A positive
// writeTimeout is applied as the port's read timeout; writes themselves are
// not bounded by a timeout.
func OpenRealPort(path string, baud int, writeTimeout time.Duration) (Port, error) {
	mode := &goserial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   goserial.NoParity,
		StopBits: goserial.OneStopBit,
	}
	port, err := goserial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: opening serial port %q: %v", perr.ErrResourceUnavailable, path, err)
	}
	if writeTimeout > 0 {
		_ = port.SetReadTimeout(writeTimeout)
	}
	return port, nil
}

// SinkParams configures write retry and reconnect behavior.
type SinkParams struct {
	MaxRetries int
	Backoff    time.Duration
}

// DefaultSinkParams returns the spec's default retry/backoff: 3 retries,
// 1 second backoff.
func DefaultSinkParams() SinkParams {
	return SinkParams{MaxRetries: 3, Backoff: 1 * time.Second}
}

// Sink owns a reconnecting byte-oriented port. Write failures close and
// reopen the port before the next retry; reconnect logs but never returns
// an error to the caller of Send beyond the final attempt's failure.
type Sink struct {
	path   string
	open   Opener
	params SinkParams

	port Port

	reconnects int
}

// NewSink creates a Sink that opens path via open on first use.
func NewSink(path string, open Opener, params SinkParams) *Sink {
	return &Sink{path: path, open: open, params: params}
}

// Send writes data to the port, making up to params.MaxRetries+1 attempts.
// Every failed attempt closes the current port (if any) and reopens
// before the next attempt.
func (s *Sink) Send(data []byte) error {
	var lastErr error
	for attempt := 0; attempt <= s.params.MaxRetries; attempt++ {
		if s.port == nil {
			if err := s.reconnect(); err != nil {
				lastErr = err
				time.Sleep(s.params.Backoff)
				continue
			}
		}

		if _, err := s.port.Write(data); err != nil {
			lastErr = fmt.Errorf("%w: write to %q: %v", perr.ErrTransient, s.path, err)
			s.closePort()
			if attempt < s.params.MaxRetries {
				time.Sleep(s.params.Backoff)
			}
			continue
		}

		return nil
	}
	return lastErr
}

func (s *Sink) reconnect() error {
	port, err := s.open(s.path)
	if err != nil {
		s.reconnects++
		monitoring.Logf("transport: reconnect to %q failed: %v", s.path, err)
		return fmt.Errorf("%w: reopening %q: %v", perr.ErrResourceUnavailable, s.path, err)
	}
	s.port = port
	return nil
}

func (s *Sink) closePort() {
	if s.port != nil {
		_ = s.port.Close()
		s.port = nil
		s.reconnects++
	}
}

// Close releases the underlying port, if open.
func (s *Sink) Close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

// Reconnects returns the cumulative count of close+reopen cycles.
func (s *Sink) Reconnects() int { return s.reconnects }
