package relayclient

import (
	"encoding/json"
	"fmt"
	"html"
	"sync"

	"github.com/fhirchat/relay/src/types"
)

// NodeKind classifies a transcript node.
type NodeKind string

const (
	NodeUser       NodeKind = "user"
	NodeAssistant  NodeKind = "assistant"
	NodeToolCall   NodeKind = "tool_call"
	NodeToolResult NodeKind = "tool_result"
	NodeToolError  NodeKind = "tool_error"
	NodeError      NodeKind = "error"
	NodeWarning    NodeKind = "warning"
)

// Node is one rendered transcript entry. HTML is fully escaped and
// safe for direct insertion.
type Node struct {
	Kind NodeKind
	HTML string
}

// Transcript is an HTML renderer backed by an in-memory node list.
// All text content is escaped before insertion; only tool arguments
// and results are pretty-printed as JSON, with fallback to escaped
// plain text when parsing fails.
type Transcript struct {
	mu    sync.Mutex
	nodes []Node

	state      ConnectionState
	tools      []types.ToolDescriptor
	toolsPanel string
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{state: StateConnecting}
}

func (t *Transcript) append(kind NodeKind, html string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes = append(t.nodes, Node{Kind: kind, HTML: html})
}

// UserTurn implements Renderer.
func (t *Transcript) UserTurn(content string) {
	t.append(NodeUser, html.EscapeString(content))
}

// AssistantTurn implements Renderer.
func (t *Transcript) AssistantTurn(content string) {
	t.append(NodeAssistant, html.EscapeString(content))
}

// ToolCall implements Renderer.
func (t *Transcript) ToolCall(toolName string, arguments json.RawMessage) {
	t.append(NodeToolCall, fmt.Sprintf("Calling tool: %s\n%s",
		html.EscapeString(toolName), renderJSON(arguments)))
}

// ToolResult implements Renderer. The result goes through the
// two-level envelope unwrap before pretty-printing.
func (t *Transcript) ToolResult(toolName, result string) {
	t.append(NodeToolResult, fmt.Sprintf("Result from: %s\n%s",
		html.EscapeString(toolName), RenderToolResult(result)))
}

// ToolError implements Renderer.
func (t *Transcript) ToolError(toolName, errMsg string) {
	t.append(NodeToolError, fmt.Sprintf("Tool error: %s\n%s",
		html.EscapeString(toolName), html.EscapeString(errMsg)))
}

// Error implements Renderer.
func (t *Transcript) Error(content string) {
	t.append(NodeError, html.EscapeString(content))
}

// Warning implements Renderer.
func (t *Transcript) Warning(content string) {
	t.append(NodeWarning, html.EscapeString(content))
}

// Status implements Renderer.
func (t *Transcript) Status(state ConnectionState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = state
}

// Tools implements Renderer.
func (t *Transcript) Tools(tools []types.ToolDescriptor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tools = tools
	if len(tools) == 0 {
		t.toolsPanel = "No tools available"
		return
	}
	panel := ""
	for _, tool := range tools {
		if panel != "" {
			panel += "\n"
		}
		panel += html.EscapeString(tool.Name)
		if tool.Description != "" {
			panel += ": " + html.EscapeString(tool.Description)
		}
	}
	t.toolsPanel = panel
}

// ToolsError implements Renderer.
func (t *Transcript) ToolsError(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tools = nil
	t.toolsPanel = html.EscapeString(msg)
}

// Nodes returns a copy of the rendered transcript.
func (t *Transcript) Nodes() []Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Node, len(t.nodes))
	copy(out, t.nodes)
	return out
}

// Len returns the number of transcript nodes.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.nodes)
}

// State returns the last reported connection state.
func (t *Transcript) State() ConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// ToolsPanel returns the rendered tools panel content.
func (t *Transcript) ToolsPanel() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.toolsPanel
}

// renderJSON pretty-prints a raw JSON value, falling back to the
// escaped literal when it does not parse.
func renderJSON(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return html.EscapeString(string(raw))
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return html.EscapeString(string(raw))
	}
	return html.EscapeString(string(pretty))
}

// RenderToolResult applies the two-level envelope unwrap to a tool
// result and returns escaped display content.
func RenderToolResult(result string) string {
	return html.EscapeString(UnwrapToolResult(result))
}

// UnwrapToolResult reduces a tool result to display text. The result
// may be: a JSON document wrapped as {"content":[{"text":"<inner
// json>"}]}, where the inner text is itself JSON to pretty-print; a
// bare JSON document; or arbitrary text. Each unwrap level falls back
// gracefully: a non-JSON result passes through as the literal string,
// and a non-JSON inner text passes through as plain text.
func UnwrapToolResult(result string) string {
	var outer any
	if err := json.Unmarshal([]byte(result), &outer); err != nil {
		return result
	}

	if m, ok := outer.(map[string]any); ok {
		if arr, ok := m["content"].([]any); ok && len(arr) > 0 {
			if first, ok := arr[0].(map[string]any); ok {
				if text, ok := first["text"].(string); ok {
					var inner any
					if err := json.Unmarshal([]byte(text), &inner); err != nil {
						return text
					}
					outer = inner
				}
			}
		}
	}

	pretty, err := json.MarshalIndent(outer, "", "  ")
	if err != nil {
		return result
	}
	return string(pretty)
}
