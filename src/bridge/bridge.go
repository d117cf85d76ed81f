package bridge

import "github.com/fhirchat/relay/src/types"

// Bridge defines the interface for cross-instance transcript
// mirroring. Implementations relay session events between multiple
// relay instances so a transcript can be watched from any node.
type Bridge interface {
	// Publish sends a session event to all other instances.
	Publish(sessionID string, ev types.Event) error

	// Start begins listening for events from other instances.
	Start() error

	// Stop shuts down the bridge connection.
	Stop() error

	// Available reports whether the bridge is connected and operational.
	Available() bool
}

// MirrorTarget is implemented by the Hub to receive events from the bridge.
type MirrorTarget interface {
	MirrorToLocal(sessionID string, ev types.Event)
}
