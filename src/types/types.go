package types

import "encoding/json"

// EventType identifies an inbound relay frame.
type EventType string

const (
	EventAssistant  EventType = "assistant"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventToolError  EventType = "tool_error"
	EventError      EventType = "error"
	EventWarning    EventType = "warning"
	// EventUnknown marks a frame whose type is not recognized. Unknown
	// frames are logged and dropped, never an error.
	EventUnknown EventType = "unknown"
)

// Outbound frame types. MessageType carries a user chat turn.
// WatchType and UnwatchType manage transcript watch subscriptions;
// their Content names the target session.
const (
	MessageType = "message"
	WatchType   = "watch"
	UnwatchType = "unwatch"
)

// Event is one server-to-client frame. Frames are decoded once at the
// protocol boundary; consumers switch on Type and read only the fields
// that type carries.
type Event struct {
	Type      EventType       `json:"type"`
	Content   string          `json:"content,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    string          `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`

	// RawType preserves the wire value when Type is EventUnknown.
	RawType string `json:"-"`
}

// DecodeEvent parses a raw frame into an Event. A frame with an
// unrecognized type decodes to EventUnknown rather than an error so
// that newer server frame types never break an older client.
func DecodeEvent(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, err
	}
	switch ev.Type {
	case EventAssistant, EventToolCall, EventToolResult, EventToolError, EventError, EventWarning:
		return ev, nil
	default:
		return Event{Type: EventUnknown, RawType: string(ev.Type)}, nil
	}
}

// Assistant builds an assistant-turn frame.
func Assistant(content string) Event {
	return Event{Type: EventAssistant, Content: content}
}

// ToolCall builds a tool invocation frame. Arguments must already be
// valid JSON.
func ToolCall(toolName string, arguments json.RawMessage) Event {
	return Event{Type: EventToolCall, ToolName: toolName, Arguments: arguments}
}

// ToolResult builds a tool result frame. The result is the flattened
// text payload returned by the MCP gateway, which may itself be JSON.
func ToolResult(toolName, result string) Event {
	return Event{Type: EventToolResult, ToolName: toolName, Result: result}
}

// ToolError builds a tool failure frame.
func ToolError(toolName, errMsg string) Event {
	return Event{Type: EventToolError, ToolName: toolName, Error: errMsg}
}

// Error builds an inline error frame.
func Error(content string) Event {
	return Event{Type: EventError, Content: content}
}

// Warning builds an inline warning frame.
func Warning(content string) Event {
	return Event{Type: EventWarning, Content: content}
}

// Outbound is a client-to-server frame. Only user chat messages travel
// in this direction.
type Outbound struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// NewMessage wraps trimmed user text in an outbound frame.
func NewMessage(content string) Outbound {
	return Outbound{Type: MessageType, Content: content}
}

// ToolDescriptor describes one callable capability exposed by the MCP
// gateway. InputSchema is carried through for the agent's function
// definitions; the browser client only displays name and description.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// ToolList is the /api/tools response body.
type ToolList struct {
	Tools []ToolDescriptor `json:"tools"`
	Error string           `json:"error,omitempty"`
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}
