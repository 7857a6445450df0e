package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes capture events to an slog.Logger at Debug level.
// Useful in development to watch driver traffic on the console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a SlogAdapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("dir", event.Direction.String()),
		slog.String("op", event.Op.String()),
	}
	if event.DeviceID != "" {
		attrs = append(attrs, slog.String("device", event.DeviceID))
	}
	if event.Key != "" {
		attrs = append(attrs, slog.String("key", event.Key))
	}
	if event.Size != 0 {
		attrs = append(attrs, slog.Int("size", event.Size))
	}
	if event.Err != "" {
		attrs = append(attrs, slog.String("error", event.Err))
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "driver traffic", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
