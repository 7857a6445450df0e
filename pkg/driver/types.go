package driver

import "strings"

// State is the readiness of a driver backend, mirroring the usual BLE host
// stack states.
type State uint8

const (
	// StateUnknown means readiness has not been determined yet.
	StateUnknown State = iota
	// StateResetting means the backend is restarting and will report a
	// definitive state shortly.
	StateResetting
	// StateUnsupported means the platform has no usable BLE central.
	StateUnsupported
	// StateUnauthorized means the process lacks permission to use BLE.
	StateUnauthorized
	// StatePoweredOff means the radio is disabled.
	StatePoweredOff
	// StatePoweredOn means the backend is ready for commands.
	StatePoweredOn
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateResetting:
		return "resetting"
	case StateUnsupported:
		return "unsupported"
	case StateUnauthorized:
		return "unauthorized"
	case StatePoweredOff:
		return "powered-off"
	case StatePoweredOn:
		return "powered-on"
	default:
		return "invalid"
	}
}

// Properties is the capability bit set of an item.
type Properties uint8

const (
	// PropertyRead allows reading the item's value.
	PropertyRead Properties = 1 << iota
	// PropertyWriteWithoutResponse allows unacknowledged writes.
	PropertyWriteWithoutResponse
	// PropertyWrite allows acknowledged writes.
	PropertyWrite
	// PropertyNotify allows server-initiated value notifications.
	PropertyNotify
	// PropertyIndicate allows acknowledged server-initiated notifications.
	PropertyIndicate
)

// CanRead reports whether the item supports reads.
func (p Properties) CanRead() bool { return p&PropertyRead != 0 }

// CanWrite reports whether the item supports acknowledged writes.
func (p Properties) CanWrite() bool { return p&PropertyWrite != 0 }

// CanWriteWithoutResponse reports whether the item supports unacknowledged writes.
func (p Properties) CanWriteWithoutResponse() bool { return p&PropertyWriteWithoutResponse != 0 }

// CanSubscribe reports whether the item supports notifications or indications.
func (p Properties) CanSubscribe() bool { return p&(PropertyNotify|PropertyIndicate) != 0 }

// String returns a compact flag list such as "read|write|notify".
func (p Properties) String() string {
	if p == 0 {
		return "none"
	}
	var flags []string
	if p.CanRead() {
		flags = append(flags, "read")
	}
	if p.CanWriteWithoutResponse() {
		flags = append(flags, "write-no-rsp")
	}
	if p.CanWrite() {
		flags = append(flags, "write")
	}
	if p&PropertyNotify != 0 {
		flags = append(flags, "notify")
	}
	if p&PropertyIndicate != 0 {
		flags = append(flags, "indicate")
	}
	return strings.Join(flags, "|")
}
