// Package log captures driver traffic as structured events.
//
// The session layer emits one Event per driver command it issues and per
// driver event it receives. Applications choose where those events go by
// implementing Logger or combining the provided ones:
//
//   - NoopLogger discards everything (the default).
//   - SlogAdapter prints events through a log/slog logger, for development.
//   - FileLogger appends CBOR-encoded events to a capture file; Reader
//     iterates such a file, optionally filtered.
//   - MultiLogger fans one event out to several loggers.
//
// A capture of a misbehaving device interaction can be replayed through
// Reader long after the device is gone, which is usually the only way to
// debug timing-dependent BLE issues.
package log
