package domain

import "context"

// Provider is the interface every model backend (the oracle) implements.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Name() string
	Healthy(ctx context.Context) error
}

// StopReason is the oracle's stop condition, normalized across backends.
type StopReason string

const (
	StopEnd       StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
	StopOther     StopReason = "other"
)

type ChatRequest struct {
	System    string
	Messages  []Message
	Tools     []CapabilityDescriptor
	Model     string
	MaxTokens int
}

type ChatResponse struct {
	Blocks     []Block
	StopReason StopReason
	Usage      Usage
	LatencyMs  int64
}

// HasToolCalls reports whether the response carries at least one tool-use block.
func (r *ChatResponse) HasToolCalls() bool {
	for _, b := range r.Blocks {
		if b.Type == BlockToolUse && b.ToolCall != nil {
			return true
		}
	}
	return false
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
