// Package driver defines the contract between the session layer and a BLE
// central driver backend.
//
// A Driver accepts commands (scan, connect, discover, read, write, notify
// toggling) and reports their outcomes asynchronously through a Handler that
// the consumer installs with SetHandler. Completion events carry no request
// token: they identify only the device, group or item they concern. The
// session layer in pkg/central matches completions to requests by correlation
// key and issue order.
//
// # Backend obligations
//
// Implementations must honour two delivery rules that the session layer's
// correlation depends on:
//
//   - Events are delivered serially, from a single dispatch goroutine.
//   - Completions for one correlation key (a device, group or item
//     identifier) are delivered in the order the corresponding commands were
//     issued.
//
// Commands must never invoke the Handler synchronously from the calling
// goroutine; an error detected while issuing a command is returned from the
// command itself, and everything later arrives through the Handler.
//
// Two backends ship with this module: pkg/driver/sim (scripted, for tests and
// demos) and pkg/driver/native (real hardware via tinygo.org/x/bluetooth).
package driver
