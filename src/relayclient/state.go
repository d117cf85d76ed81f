package relayclient

// ConnectionState is the lifecycle state of the relay connection.
type ConnectionState int

const (
	// StateConnecting means a dial is in progress.
	StateConnecting ConnectionState = iota

	// StateOpen means the connection is established and messages can
	// be sent.
	StateOpen

	// StateClosed means the connection has dropped and a reconnect is
	// pending.
	StateClosed
)

// String returns the string representation of a ConnectionState.
func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
