// Package testutil provides shared test fixtures and fakes used across the
// locator's packages.
package testutil

import (
	"bytes"
	"sync"
	"testing"
	"time"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// FakeSerialPort implements the minimal ReadWriteCloser contract used by
// internal/transport for testing without real hardware. It supports
// configurable write failures so reconnect logic can be exercised
// deterministically.
type FakeSerialPort struct {
	mu sync.Mutex

	ReadBuffer  *bytes.Buffer
	WriteBuffer *bytes.Buffer

	// WriteErrors is consumed in order; each call to Write pops the front
	// element (if any) and returns it instead of writing.
	WriteErrors []error

	CloseError error
	Closed     bool

	WriteCalls int
	CloseCalls int
}

// NewFakeSerialPort returns a FakeSerialPort with empty buffers.
func NewFakeSerialPort() *FakeSerialPort {
	return &FakeSerialPort{
		ReadBuffer:  &bytes.Buffer{},
		WriteBuffer: &bytes.Buffer{},
	}
}

func (f *FakeSerialPort) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ReadBuffer.Read(p)
}

func (f *FakeSerialPort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.WriteCalls++
	if len(f.WriteErrors) > 0 {
		err := f.WriteErrors[0]
		f.WriteErrors = f.WriteErrors[1:]
		if err != nil {
			return 0, err
		}
	}
	return f.WriteBuffer.Write(p)
}

func (f *FakeSerialPort) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CloseCalls++
	f.Closed = true
	return f.CloseError
}

// Written returns a copy of everything successfully written so far.
func (f *FakeSerialPort) Written() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]byte, f.WriteBuffer.Len())
	copy(out, f.WriteBuffer.Bytes())
	return out
}

// FixedTime returns a deterministic reference timestamp so fix streams and
// flight records are reproducible in tests.
func FixedTime() time.Time {
	return time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
}
