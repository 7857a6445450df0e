package log

import "time"

// Event is one captured driver interaction. CBOR encoding uses integer keys
// for compactness.
type Event struct {
	// Timestamp is when the event was captured (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// Direction separates commands issued to the driver from events
	// received from it.
	Direction Direction `cbor:"2,keyasint"`

	// Op identifies the command or event.
	Op Op `cbor:"3,keyasint"`

	// DeviceID is the device identifier the operation concerns, when any.
	DeviceID string `cbor:"4,keyasint,omitempty"`

	// Key is the group or item UUID the operation is correlated by, or a
	// short detail such as an advertised name or a driver state.
	Key string `cbor:"5,keyasint,omitempty"`

	// Size is the payload size in bytes, or a result count for discovery
	// completions.
	Size int `cbor:"6,keyasint,omitempty"`

	// Err is the error text carried by a failed completion.
	Err string `cbor:"7,keyasint,omitempty"`
}

// NewEvent builds an Event stamped with the current time.
func NewEvent(dir Direction, op Op, deviceID, key string, size int, err error) Event {
	e := Event{
		Timestamp: time.Now(),
		Direction: dir,
		Op:        op,
		DeviceID:  deviceID,
		Key:       key,
		Size:      size,
	}
	if err != nil {
		e.Err = err.Error()
	}
	return e
}

// Direction indicates whether an event left for or arrived from the driver.
type Direction uint8

const (
	// DirectionCommand is a command issued to the driver.
	DirectionCommand Direction = 0
	// DirectionEvent is an event received from the driver.
	DirectionEvent Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionCommand:
		return "CMD"
	case DirectionEvent:
		return "EVT"
	default:
		return "UNKNOWN"
	}
}

// Op identifies a driver command or event.
type Op uint8

// Commands.
const (
	OpStartScan Op = iota
	OpStopScan
	OpConnect
	OpCancelConnect
	OpDiscoverGroups
	OpDiscoverItems
	OpRead
	OpWrite
	OpWriteNoResponse
	OpSetNotify
)

// Events.
const (
	OpStateChanged Op = 64 + iota
	OpDiscovered
	OpConnected
	OpConnectFailed
	OpDisconnected
	OpGroupsDiscovered
	OpItemsDiscovered
	OpValueUpdated
	OpWritten
	OpNotifyChanged
)

var opNames = map[Op]string{
	OpStartScan:        "start-scan",
	OpStopScan:         "stop-scan",
	OpConnect:          "connect",
	OpCancelConnect:    "cancel-connect",
	OpDiscoverGroups:   "discover-groups",
	OpDiscoverItems:    "discover-items",
	OpRead:             "read",
	OpWrite:            "write",
	OpWriteNoResponse:  "write-no-response",
	OpSetNotify:        "set-notify",
	OpStateChanged:     "state-changed",
	OpDiscovered:       "discovered",
	OpConnected:        "connected",
	OpConnectFailed:    "connect-failed",
	OpDisconnected:     "disconnected",
	OpGroupsDiscovered: "groups-discovered",
	OpItemsDiscovered:  "items-discovered",
	OpValueUpdated:     "value-updated",
	OpWritten:          "written",
	OpNotifyChanged:    "notify-changed",
}

// String returns the operation name.
func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return "unknown"
}
