package mcp

import (
	"fmt"
	"time"
)

// Config holds connection settings for the MCP gateway.
type Config struct {
	// ServerURL is the SSE endpoint of the MCP server.
	ServerURL string
	// Timeout bounds the connection handshake and each RPC call.
	Timeout time.Duration
}

// DefaultConfig returns a Config pointing at a local Aidbox MCP endpoint.
func DefaultConfig() *Config {
	return &Config{
		ServerURL: "http://localhost:8080/sse",
		Timeout:   30 * time.Second,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("mcp: server URL is required")
	}
	if c.Timeout < time.Second || c.Timeout > 300*time.Second {
		return fmt.Errorf("mcp: timeout must be between 1s and 300s, got %s", c.Timeout)
	}
	return nil
}
