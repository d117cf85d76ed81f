package mcp

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when an operation is attempted
	// before Connect or after Close.
	ErrNotConnected = errors.New("mcp: client is not connected")

	// ErrAlreadyConnected is returned when Connect is called twice.
	ErrAlreadyConnected = errors.New("mcp: client is already connected")
)

// ConnectionError wraps a failure to establish or keep the gateway
// connection.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("mcp: failed to connect to MCP server: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// OperationError wraps a failure of a single MCP operation on an
// otherwise healthy connection.
type OperationError struct {
	Op  string
	Err error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("mcp: %s failed: %v", e.Op, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }
