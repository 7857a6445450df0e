package log

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRoundTrip(t *testing.T) {
	event := NewEvent(DirectionCommand, OpRead, "AA:BB:CC:00:00:01", "2a37", 0, nil)

	data, err := EncodeEvent(event)
	require.NoError(t, err)

	decoded, err := DecodeEvent(data)
	require.NoError(t, err)

	assert.Equal(t, event.Direction, decoded.Direction)
	assert.Equal(t, event.Op, decoded.Op)
	assert.Equal(t, event.DeviceID, decoded.DeviceID)
	assert.Equal(t, event.Key, decoded.Key)
	assert.Equal(t, event.Size, decoded.Size)
	assert.Empty(t, decoded.Err)
	assert.True(t, event.Timestamp.Equal(decoded.Timestamp),
		"timestamp %v != %v", event.Timestamp, decoded.Timestamp)
}

func TestEventCarriesError(t *testing.T) {
	event := NewEvent(DirectionEvent, OpConnectFailed, "dev-1", "", 0, errors.New("out of range"))
	assert.Equal(t, "out of range", event.Err)

	data, err := EncodeEvent(event)
	require.NoError(t, err)
	decoded, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.Equal(t, "out of range", decoded.Err)
}

func TestOpNames(t *testing.T) {
	assert.Equal(t, "read", OpRead.String())
	assert.Equal(t, "value-updated", OpValueUpdated.String())
	assert.Equal(t, "unknown", Op(200).String())

	assert.Equal(t, "CMD", DirectionCommand.String())
	assert.Equal(t, "EVT", DirectionEvent.String())
}

func TestFileLoggerAndReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.cbl")

	logger, err := NewFileLogger(path)
	require.NoError(t, err)

	logger.Log(NewEvent(DirectionCommand, OpConnect, "dev-1", "", 0, nil))
	logger.Log(NewEvent(DirectionEvent, OpConnected, "dev-1", "", 0, nil))
	logger.Log(NewEvent(DirectionCommand, OpRead, "dev-2", "2a37", 0, nil))
	logger.Log(NewEvent(DirectionEvent, OpValueUpdated, "dev-2", "2a37", 2, errors.New("gatt timeout")))
	require.NoError(t, logger.Close())

	// Closed loggers drop silently.
	logger.Log(NewEvent(DirectionCommand, OpStopScan, "", "", 0, nil))

	t.Run("All", func(t *testing.T) {
		r, err := NewReader(path)
		require.NoError(t, err)
		defer r.Close()

		events, err := r.All()
		require.NoError(t, err)
		require.Len(t, events, 4)
		assert.Equal(t, OpConnect, events[0].Op)
		assert.Equal(t, OpValueUpdated, events[3].Op)
	})

	t.Run("FilterDevice", func(t *testing.T) {
		r, err := NewFilteredReader(path, Filter{DeviceID: "dev-2"})
		require.NoError(t, err)
		defer r.Close()

		events, err := r.All()
		require.NoError(t, err)
		require.Len(t, events, 2)
		for _, e := range events {
			assert.Equal(t, "dev-2", e.DeviceID)
		}
	})

	t.Run("FilterDirection", func(t *testing.T) {
		dir := DirectionCommand
		r, err := NewFilteredReader(path, Filter{Direction: &dir})
		require.NoError(t, err)
		defer r.Close()

		events, err := r.All()
		require.NoError(t, err)
		require.Len(t, events, 2)
	})

	t.Run("FilterFailedOnly", func(t *testing.T) {
		r, err := NewFilteredReader(path, Filter{FailedOnly: true})
		require.NoError(t, err)
		defer r.Close()

		events, err := r.All()
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "gatt timeout", events[0].Err)
	})

	t.Run("FilterTimeWindow", func(t *testing.T) {
		past := time.Now().Add(-time.Hour)
		r, err := NewFilteredReader(path, Filter{TimeEnd: &past})
		require.NoError(t, err)
		defer r.Close()

		events, err := r.All()
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("NextEOF", func(t *testing.T) {
		r, err := NewReader(path)
		require.NoError(t, err)
		defer r.Close()

		for i := 0; i < 4; i++ {
			_, err := r.Next()
			require.NoError(t, err)
		}
		_, err = r.Next()
		assert.ErrorIs(t, err, io.EOF)
	})
}

type memLogger struct {
	events []Event
}

func (m *memLogger) Log(event Event) { m.events = append(m.events, event) }

func TestMultiLogger(t *testing.T) {
	a, b := &memLogger{}, &memLogger{}
	m := NewMultiLogger(a, b, NoopLogger{})

	m.Log(NewEvent(DirectionCommand, OpStartScan, "", "", 0, nil))

	require.Len(t, a.events, 1)
	require.Len(t, b.events, 1)
	assert.Equal(t, OpStartScan, a.events[0].Op)
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})))

	adapter.Log(NewEvent(DirectionCommand, OpRead, "dev-1", "2a37", 0, nil))
	out := buf.String()
	assert.Contains(t, out, "read")
	assert.Contains(t, out, "dev-1")

	buf.Reset()
	adapter.Log(NewEvent(DirectionEvent, OpValueUpdated, "dev-1", "2a37", 2, errors.New("boom")))
	assert.Contains(t, buf.String(), "boom")
}
