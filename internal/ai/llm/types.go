// Package llm provides LLM client implementations.
package llm

// Message represents a chat message for the LLM.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool responses
}

// ToolCall represents a tool call from the model.
type ToolCall struct {
	ID       string `json:"id,omitempty"`
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

// ChatResponse is the provider-neutral response to a chat request.
// Wire format conversion happens at the provider boundary (gemini.go).
type ChatResponse struct {
	Model   string
	Message Message

	InputTokens  int
	OutputTokens int
}
