package log

// Logger is the sink for captured driver traffic. Implementations must be
// safe for concurrent use; Log is called from the driver dispatch goroutine
// and from caller goroutines issuing commands, and must not block.
type Logger interface {
	Log(event Event)
}

// NoopLogger discards all events. It is safe for concurrent use and usable
// as a zero value.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// MultiLogger sends each event to several loggers, for example a console
// SlogAdapter alongside a FileLogger capture.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a MultiLogger fanning out to all given loggers.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log sends the event to every configured logger.
func (m *MultiLogger) Log(event Event) {
	for _, l := range m.loggers {
		l.Log(event)
	}
}

// Compile-time interface satisfaction checks.
var (
	_ Logger = NoopLogger{}
	_ Logger = (*MultiLogger)(nil)
)
