package relayclient

import (
	"encoding/json"
	"html"
	"testing"

	"github.com/fhirchat/relay/src/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnwrapToolResultNestedEnvelope(t *testing.T) {
	result := `{"content":[{"text":"{\"a\":1}"}]}`
	want := "{\n  \"a\": 1\n}"
	assert.Equal(t, want, UnwrapToolResult(result))
}

func TestUnwrapToolResultBareJSON(t *testing.T) {
	want := "{\n  \"a\": 1\n}"
	assert.Equal(t, want, UnwrapToolResult(`{"a":1}`))
}

func TestUnwrapToolResultNotJSON(t *testing.T) {
	assert.Equal(t, "not json", UnwrapToolResult("not json"))
}

func TestUnwrapToolResultInnerTextNotJSON(t *testing.T) {
	result := `{"content":[{"text":"plain words"}]}`
	assert.Equal(t, "plain words", UnwrapToolResult(result))
}

func TestUnwrapToolResultEnvelopeWithoutText(t *testing.T) {
	// No text field on the first element: the outer document itself is
	// pretty-printed.
	result := `{"content":[{"type":"image"}]}`
	got := UnwrapToolResult(result)
	assert.Contains(t, got, `"content"`)
	assert.Contains(t, got, `"image"`)
}

func TestRenderToolResultEscapes(t *testing.T) {
	got := RenderToolResult(`<script>alert(1)</script>`)
	assert.NotContains(t, got, "<script>")
	assert.Equal(t, html.EscapeString("<script>alert(1)</script>"), got)
}

func TestTranscriptEscapesAllEventKinds(t *testing.T) {
	payload := `<img src=x onerror=alert(1)>`
	escaped := html.EscapeString(payload)

	cases := []struct {
		name   string
		render func(tr *Transcript)
		kind   NodeKind
	}{
		{"user", func(tr *Transcript) { tr.UserTurn(payload) }, NodeUser},
		{"assistant", func(tr *Transcript) { tr.AssistantTurn(payload) }, NodeAssistant},
		{"tool_error", func(tr *Transcript) { tr.ToolError(payload, payload) }, NodeToolError},
		{"error", func(tr *Transcript) { tr.Error(payload) }, NodeError},
		{"warning", func(tr *Transcript) { tr.Warning(payload) }, NodeWarning},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := NewTranscript()
			tc.render(tr)

			nodes := tr.Nodes()
			require.Len(t, nodes, 1)
			assert.Equal(t, tc.kind, nodes[0].Kind)
			assert.NotContains(t, nodes[0].HTML, "<img")
			assert.Contains(t, nodes[0].HTML, escaped)
			// No double escaping.
			assert.NotContains(t, nodes[0].HTML, "&amp;lt;")
		})
	}
}

func TestTranscriptToolCallPrettyPrintsArguments(t *testing.T) {
	tr := NewTranscript()
	tr.ToolCall("search_patients", json.RawMessage(`{"name":"John"}`))

	nodes := tr.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, NodeToolCall, nodes[0].Kind)
	assert.Contains(t, nodes[0].HTML, "search_patients")
	assert.Contains(t, nodes[0].HTML, html.EscapeString("\"name\": \"John\""))
}

func TestTranscriptToolResultFallsBackToEscapedText(t *testing.T) {
	tr := NewTranscript()
	tr.ToolResult("tool", "<b>not json</b>")

	nodes := tr.Nodes()
	require.Len(t, nodes, 1)
	assert.Contains(t, nodes[0].HTML, html.EscapeString("<b>not json</b>"))
	assert.NotContains(t, nodes[0].HTML, "<b>")
}

func TestTranscriptToolsPanel(t *testing.T) {
	tr := NewTranscript()

	tr.Tools(nil)
	assert.Equal(t, "No tools available", tr.ToolsPanel())

	tr.Tools([]types.ToolDescriptor{
		{Name: "search_patients", Description: "Search FHIR patients"},
		{Name: "read_resource"},
	})
	panel := tr.ToolsPanel()
	assert.Contains(t, panel, "search_patients: Search FHIR patients")
	assert.Contains(t, panel, "read_resource")

	tr.ToolsError("MCP client not connected")
	assert.Equal(t, "MCP client not connected", tr.ToolsPanel())
}

func TestTranscriptStatus(t *testing.T) {
	tr := NewTranscript()
	assert.Equal(t, StateConnecting, tr.State())

	tr.Status(StateOpen)
	assert.Equal(t, StateOpen, tr.State())

	tr.Status(StateClosed)
	assert.Equal(t, StateClosed, tr.State())
	// Status changes never add transcript nodes.
	assert.Equal(t, 0, tr.Len())
}
