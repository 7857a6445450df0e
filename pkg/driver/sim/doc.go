// Package sim is a scripted in-process implementation of driver.Driver.
//
// A Sim starts with a set of declared peripherals (AddPeripheral) and plays
// them back through the normal driver event surface: scans discover them,
// connects succeed or fail as scripted, reads and writes hit their declared
// items. Test helpers inject the situations a real radio produces on its
// own: re-advertisement (Advertise), unsolicited notifications (Notify),
// spontaneous link drops (DropLink) and readiness changes (SetState).
//
// All events are delivered from a single dispatch goroutine, and completions
// per device are delivered in command order, satisfying the delivery rules
// in pkg/driver. Commands never invoke the handler synchronously.
//
// Sim backs the pkg/central tests and blinkctl's demo mode.
package sim
