package agent

import (
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// Conversation holds the message history for one chat session.
// All mutation goes through methods; the zero value is usable.
type Conversation struct {
	mu       sync.Mutex
	messages []llms.MessageContent
}

// NewConversation creates an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{}
}

// StartWithSystemMessage clears the history and seeds it with a system
// prompt.
func (c *Conversation) StartWithSystemMessage(content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, content),
	}
}

// AddUser appends a user turn.
func (c *Conversation) AddUser(content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, llms.TextParts(llms.ChatMessageTypeHuman, content))
}

// AddAssistant appends a plain assistant turn.
func (c *Conversation) AddAssistant(content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, llms.TextParts(llms.ChatMessageTypeAI, content))
}

// AddAssistantToolCalls appends an assistant turn that requested tool
// invocations, preserving any text content alongside the calls.
func (c *Conversation) AddAssistantToolCalls(content string, calls []llms.ToolCall) {
	parts := make([]llms.ContentPart, 0, len(calls)+1)
	if content != "" {
		parts = append(parts, llms.TextContent{Text: content})
	}
	for _, call := range calls {
		parts = append(parts, call)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, llms.MessageContent{
		Role:  llms.ChatMessageTypeAI,
		Parts: parts,
	})
}

// AddToolResult appends a tool response turn for a previous call.
func (c *Conversation) AddToolResult(toolCallID, name, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, llms.MessageContent{
		Role: llms.ChatMessageTypeTool,
		Parts: []llms.ContentPart{
			llms.ToolCallResponse{
				ToolCallID: toolCallID,
				Name:       name,
				Content:    content,
			},
		},
	})
}

// Messages returns a copy of the history in API order.
func (c *Conversation) Messages() []llms.MessageContent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]llms.MessageContent, len(c.messages))
	copy(out, c.messages)
	return out
}

// Clear drops the entire history.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}

// Len returns the number of messages in the history.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}
