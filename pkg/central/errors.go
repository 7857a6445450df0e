package central

import "errors"

// Precondition errors are detected synchronously, before any driver command
// is issued.
var (
	// ErrClosed is returned by operations on a closed Coordinator.
	ErrClosed = errors.New("coordinator is closed")

	// ErrNotPoweredOn is returned when discovery is requested while the
	// driver is not ready.
	ErrNotPoweredOn = errors.New("driver is not powered on")

	// ErrScanInProgress is returned when discovery is requested while a
	// discovery session is already active.
	ErrScanInProgress = errors.New("discovery is already in progress")

	// ErrNotConnected is returned when a request is issued on a link that
	// is not in the connected state.
	ErrNotConnected = errors.New("link is not connected")
)

// ErrDisconnectedMidOperation resolves every request still pending when its
// link drops. It is generated here, never by the driver: once the link is
// gone the driver cannot deliver the completions those requests wait for.
var ErrDisconnectedMidOperation = errors.New("link disconnected while operation was pending")

// ErrNotFound is returned by tree lookups for a group or item that discovery
// did not surface.
var ErrNotFound = errors.New("not found")
