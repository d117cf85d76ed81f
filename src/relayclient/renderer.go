package relayclient

import (
	"encoding/json"

	"github.com/fhirchat/relay/src/types"
)

// Renderer receives the client's UI effects. The client never touches
// display state directly; every handle the UI needs is bound here at
// construction rather than looked up ad hoc inside handlers.
type Renderer interface {
	// UserTurn renders the user's own message immediately on send.
	UserTurn(content string)

	// AssistantTurn renders an assistant reply.
	AssistantTurn(content string)

	// ToolCall renders a tool invocation banner with its arguments.
	ToolCall(toolName string, arguments json.RawMessage)

	// ToolResult renders a tool result. The result string may be a
	// JSON document, possibly wrapped in the gateway's content
	// envelope; renderers unwrap and pretty-print where possible.
	ToolResult(toolName, result string)

	// ToolError renders a tool failure banner.
	ToolError(toolName, errMsg string)

	// Error renders an inline backend error.
	Error(content string)

	// Warning renders an inline backend warning.
	Warning(content string)

	// Status reports connection state changes.
	Status(state ConnectionState)

	// Tools renders the tool catalog panel. An empty list renders a
	// placeholder.
	Tools(tools []types.ToolDescriptor)

	// ToolsError renders an inline error in the tools panel.
	ToolsError(msg string)
}
