// Package native implements driver.Driver on real hardware through
// tinygo.org/x/bluetooth (BlueZ on Linux, CoreBluetooth on Darwin, WinRT on
// Windows).
//
// The tinygo API is blocking; this adapter runs each device's commands on a
// per-device worker so completions for one device arrive in command order,
// and funnels every event through a single dispatch goroutine, satisfying
// the delivery rules in pkg/driver.
//
// Device identifiers are the addresses reported during scanning, so a device
// must have been discovered by this process before it can be connected.
package native
