package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fhirchat/relay/src/relayclient"
	"github.com/fhirchat/relay/src/types"
)

// consoleRenderer writes transcript events to a terminal.
type consoleRenderer struct {
	out io.Writer
}

func newConsoleRenderer(out io.Writer) *consoleRenderer {
	return &consoleRenderer{out: out}
}

func (r *consoleRenderer) UserTurn(content string) {
	// The terminal already echoes the typed line.
}

func (r *consoleRenderer) AssistantTurn(content string) {
	fmt.Fprintf(r.out, "\nAssistant: %s\n\n", content)
}

func (r *consoleRenderer) ToolCall(toolName string, arguments json.RawMessage) {
	fmt.Fprintf(r.out, "\n[Calling tool: %s]\n", toolName)
	var v any
	if err := json.Unmarshal(arguments, &v); err == nil {
		if pretty, err := json.MarshalIndent(v, "", "  "); err == nil {
			fmt.Fprintf(r.out, "[Arguments: %s]\n", pretty)
			return
		}
	}
	fmt.Fprintf(r.out, "[Arguments: %s]\n", arguments)
}

func (r *consoleRenderer) ToolResult(toolName, result string) {
	display := relayclient.UnwrapToolResult(result)
	if len(display) > 200 {
		display = display[:200] + "..."
	}
	fmt.Fprintf(r.out, "[Result: %s]\n", display)
}

func (r *consoleRenderer) ToolError(toolName, errMsg string) {
	fmt.Fprintf(r.out, "[Tool error from %s: %s]\n", toolName, errMsg)
}

func (r *consoleRenderer) Error(content string) {
	fmt.Fprintf(r.out, "\nError: %s\n", content)
}

func (r *consoleRenderer) Warning(content string) {
	fmt.Fprintf(r.out, "\n[Warning: %s]\n", content)
}

func (r *consoleRenderer) Status(state relayclient.ConnectionState) {
	fmt.Fprintf(r.out, "[%s]\n", state)
}

func (r *consoleRenderer) Tools(tools []types.ToolDescriptor) {
	if len(tools) == 0 {
		fmt.Fprintln(r.out, "No tools available")
		return
	}
	fmt.Fprintln(r.out, "\nAvailable tools:")
	for _, tool := range tools {
		desc := tool.Description
		if desc == "" {
			desc = "No description"
		}
		fmt.Fprintf(r.out, "  - %s: %s\n", tool.Name, desc)
	}
}

func (r *consoleRenderer) ToolsError(msg string) {
	fmt.Fprintf(r.out, "Failed to load tools: %s\n", msg)
}
