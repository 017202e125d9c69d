package sets

// ConnectionState represents the current state of the broker connection.
type ConnectionState int

const (
	// StateDisconnected means the client is not connected.
	StateDisconnected ConnectionState = iota

	// StateConnecting means the first connection attempt is in progress.
	StateConnecting

	// StateConnected means the STOMP handshake completed and the client is ready.
	StateConnected

	// StateReconnecting means the client is attempting to reconnect after a drop.
	StateReconnecting

	// StateClosed means the session has been explicitly disconnected.
	StateClosed
)

// String returns the string representation of a ConnectionState.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// StateEvent represents a state change event.
type StateEvent struct {
	OldState ConnectionState
	NewState ConnectionState
	Error    error // Optional error that caused the state change
}
