package central

// Stage is the position of a link in its connection lifecycle.
type Stage uint8

const (
	// StageDisconnected is the initial state and the state after any
	// disconnect, requested or not.
	StageDisconnected Stage = iota
	// StageConnecting means a connection attempt is in flight.
	StageConnecting
	// StageConnected means the link is up and requests may be issued.
	StageConnected
	// StageDisconnecting means a teardown was requested and its
	// confirmation is pending.
	StageDisconnecting
	// StageConnectFailed means the last connection attempt failed.
	StageConnectFailed
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageDisconnected:
		return "disconnected"
	case StageConnecting:
		return "connecting"
	case StageConnected:
		return "connected"
	case StageDisconnecting:
		return "disconnecting"
	case StageConnectFailed:
		return "connect-failed"
	default:
		return "invalid"
	}
}

// ConnState is one observable connection state of a LinkSession.
// Err is set when the stage was entered because of a failure: the connect
// error for StageConnectFailed, or the drop reason for an unsolicited
// StageDisconnected. A requested disconnect ends in StageDisconnected with
// a nil Err.
type ConnState struct {
	Stage Stage
	Err   error
}

// String renders the state, including the error when present.
func (c ConnState) String() string {
	if c.Err != nil {
		return c.Stage.String() + " (" + c.Err.Error() + ")"
	}
	return c.Stage.String()
}
