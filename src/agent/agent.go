package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fhirchat/relay/src/mcp"
	"github.com/fhirchat/relay/src/types"
	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
)

// SystemPrompt seeds every chat session.
const SystemPrompt = "You are a helpful FHIR assistant with access to Aidbox tools. " +
	"You can search, read, create, update, and delete FHIR resources. " +
	"Use the available tools to help users with FHIR-related tasks."

// maxIterations caps the tool-call rounds for a single user turn.
const maxIterations = 10

// ToolCaller invokes a named tool. Satisfied by *mcp.Client.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, arguments map[string]any) (*mcp.ToolResult, error)
}

// Emitter receives transcript events as a turn progresses.
type Emitter func(ev types.Event)

// Agent drives one completion backend with a fixed tool catalog. It is
// safe to share between sessions; per-session state lives in the
// Conversation.
type Agent struct {
	llm         llms.Model
	caller      ToolCaller
	tools       []llms.Tool
	temperature float64
	logger      zerolog.Logger
}

// New creates an agent over the given model and tool caller.
func New(llm llms.Model, caller ToolCaller, descriptors []types.ToolDescriptor, temperature float64, logger zerolog.Logger) *Agent {
	return &Agent{
		llm:         llm,
		caller:      caller,
		tools:       ConvertTools(descriptors),
		temperature: temperature,
		logger:      logger.With().Str("component", "agent").Logger(),
	}
}

// Run handles one user turn: it appends the message to the
// conversation, then alternates completions and tool invocations until
// the model answers in plain text or the iteration cap is hit. Every
// externally visible step is reported through emit in order.
func (a *Agent) Run(ctx context.Context, conv *Conversation, userMessage string, emit Emitter) error {
	conv.AddUser(userMessage)

	for iteration := 1; iteration <= maxIterations; iteration++ {
		opts := []llms.CallOption{
			llms.WithTemperature(a.temperature),
		}
		if len(a.tools) > 0 {
			opts = append(opts, llms.WithTools(a.tools), llms.WithToolChoice("auto"))
		}

		resp, err := a.llm.GenerateContent(ctx, conv.Messages(), opts...)
		if err != nil {
			return fmt.Errorf("completion failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("no response choices")
		}
		choice := resp.Choices[0]

		if len(choice.ToolCalls) == 0 {
			if choice.Content != "" {
				conv.AddAssistant(choice.Content)
				emit(types.Assistant(choice.Content))
			}
			return nil
		}

		conv.AddAssistantToolCalls(choice.Content, choice.ToolCalls)
		for _, call := range choice.ToolCalls {
			a.invokeTool(ctx, conv, call, emit)
		}
	}

	emit(types.Warning("Maximum tool call iterations reached"))
	return nil
}

func (a *Agent) invokeTool(ctx context.Context, conv *Conversation, call llms.ToolCall, emit Emitter) {
	name := call.FunctionCall.Name
	rawArgs := call.FunctionCall.Arguments

	var args map[string]any
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		msg := fmt.Sprintf("Error calling tool: invalid arguments: %v", err)
		a.logger.Error().Str("tool", name).Err(err).Msg("bad tool arguments")
		emit(types.ToolError(name, msg))
		conv.AddToolResult(call.ID, name, msg)
		return
	}

	emit(types.ToolCall(name, json.RawMessage(rawArgs)))

	result, err := a.caller.CallTool(ctx, name, args)
	if err != nil {
		msg := fmt.Sprintf("Error calling tool: %v", err)
		a.logger.Error().Str("tool", name).Err(err).Msg("tool call failed")
		emit(types.ToolError(name, msg))
		conv.AddToolResult(call.ID, name, msg)
		return
	}

	flat := result.Flatten()
	emit(types.ToolResult(name, flat))
	conv.AddToolResult(call.ID, name, flat)
}
