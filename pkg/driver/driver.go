package driver

import "github.com/google/uuid"

// Driver is the command surface of a BLE central backend.
//
// Device identifiers are opaque strings that are stable for a physical device
// within a backend (a MAC address on BlueZ, a CoreBluetooth UUID on Darwin).
// Group and item identifiers are the discovered GATT service and
// characteristic UUIDs.
type Driver interface {
	// State returns the backend's current readiness.
	State() State

	// SetHandler installs the event sink. It must be called before any
	// command is issued. Passing nil detaches the previous handler.
	SetHandler(h Handler)

	// StartScan begins device discovery. Discovered devices arrive through
	// Handler.DeviceDiscovered; the backend may report the same device more
	// than once.
	StartScan(filter ScanFilter) error

	// StopScan ends an active scan. Stopping an inactive scan is a no-op.
	StopScan() error

	// Connect initiates a connection attempt to a device. The outcome
	// arrives as DeviceConnected or DeviceConnectFailed.
	Connect(id string) error

	// CancelConnect tears down a connection or a pending attempt. The
	// backend reports completion through DeviceDisconnected.
	CancelConnect(id string) error

	// DiscoverGroups starts service discovery on a connected device. An
	// empty filter discovers everything.
	DiscoverGroups(id string, filter []uuid.UUID) error

	// DiscoverItems starts characteristic discovery within a group.
	DiscoverItems(id string, group uuid.UUID, filter []uuid.UUID) error

	// Read requests the current value of an item. The result arrives as
	// ItemValueUpdated.
	Read(id string, item uuid.UUID) error

	// Write writes data to an item. With withResponse, completion arrives
	// as ItemWritten; without, the command is fire-and-forget and only
	// synchronously detected errors are reported.
	Write(id string, item uuid.UUID, data []byte, withResponse bool) error

	// SetNotify enables or disables value notifications for an item.
	// Completion arrives as ItemNotifyStateChanged.
	SetNotify(id string, item uuid.UUID, enable bool) error
}

// Handler receives driver events. The session layer's Coordinator is the
// canonical implementation; see the package documentation for the delivery
// rules implementations must follow when invoking it.
type Handler interface {
	// DriverStateChanged reports a readiness change.
	DriverStateChanged(state State)

	// DeviceDiscovered reports a device seen during an active scan.
	// name is the advertised local name and may be empty.
	DeviceDiscovered(id string, name string, adv Advertisement)

	// DeviceConnected reports a successful connection attempt.
	DeviceConnected(id string)

	// DeviceConnectFailed reports a failed connection attempt.
	DeviceConnectFailed(id string, err error)

	// DeviceDisconnected reports a dropped link. err is nil when the
	// disconnect was requested, non-nil when the link dropped unexpectedly.
	DeviceDisconnected(id string, err error)

	// GroupsDiscovered reports completion of service discovery.
	GroupsDiscovered(id string, groups []GroupInfo, err error)

	// ItemsDiscovered reports completion of characteristic discovery
	// within one group.
	ItemsDiscovered(id string, group uuid.UUID, items []ItemInfo, err error)

	// ItemValueUpdated reports an item value: either the response to a
	// pending Read or an unsolicited notification from an active
	// subscription. The two cases are indistinguishable at this layer.
	ItemValueUpdated(id string, item uuid.UUID, value []byte, err error)

	// ItemWritten reports completion of a Write issued with withResponse.
	ItemWritten(id string, item uuid.UUID, err error)

	// ItemNotifyStateChanged reports completion of a SetNotify command.
	ItemNotifyStateChanged(id string, item uuid.UUID, enabled bool, err error)
}

// ScanFilter narrows a scan to devices advertising any of the given groups.
// A zero filter matches every advertising device.
type ScanFilter struct {
	Groups []uuid.UUID
}

// Advertisement is the payload broadcast by a device during discovery.
type Advertisement struct {
	LocalName        string
	RSSI             int16
	ManufacturerData []byte
	Groups           []uuid.UUID
}

// GroupInfo describes one discovered service.
type GroupInfo struct {
	UUID    uuid.UUID
	Primary bool
}

// ItemInfo describes one discovered characteristic.
type ItemInfo struct {
	UUID       uuid.UUID
	Properties Properties
}
