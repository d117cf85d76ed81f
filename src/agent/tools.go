package agent

import (
	"github.com/fhirchat/relay/src/types"
	"github.com/tmc/langchaingo/llms"
)

// ConvertTools maps MCP tool descriptors to OpenAI function
// definitions. A tool without an input schema gets an empty object
// schema so the API accepts it.
func ConvertTools(descriptors []types.ToolDescriptor) []llms.Tool {
	tools := make([]llms.Tool, 0, len(descriptors))
	for _, d := range descriptors {
		params := d.InputSchema
		if params == nil {
			params = map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			}
		}
		tools = append(tools, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  params,
			},
		})
	}
	return tools
}
