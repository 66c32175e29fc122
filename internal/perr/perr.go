// Package perr defines the locator's error taxonomy as sentinel error kinds.
// Call sites wrap a sentinel with fmt.Errorf("...: %w", perr.ErrDegenerate)
// so callers can classify failures with errors.Is without parsing strings.
package perr

import "errors"

var (
	// ErrInvalidInput marks malformed configuration, unreadable pack files,
	// or out-of-range coordinates. Fatal at start-up.
	ErrInvalidInput = errors.New("invalid input")

	// ErrResourceUnavailable marks camera or serial open failures. Fatal at
	// start-up; triggers reconnect logic at runtime.
	ErrResourceUnavailable = errors.New("resource unavailable")

	// ErrTransient marks a single-frame grab, candidate read, or serial
	// write failure. Counted and swallowed by the tick that produced it.
	ErrTransient = errors.New("transient failure")

	// ErrNoMatch marks the expected absence of a visual fix. Not a failure.
	ErrNoMatch = errors.New("no match")

	// ErrDegenerate marks a homography estimate that failed or produced an
	// unusable matrix.
	ErrDegenerate = errors.New("degenerate homography")

	// ErrGateRejected marks a measurement that failed Mahalanobis gating.
	ErrGateRejected = errors.New("gate rejected")

	// ErrSafetyViolation marks a position outside the configured geofence.
	ErrSafetyViolation = errors.New("safety violation")

	// ErrProtocol marks an MSP/NMEA checksum that could not be generated.
	// Should be unreachable; treated as fatal if it occurs.
	ErrProtocol = errors.New("protocol error")
)
