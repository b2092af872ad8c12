package domain

import "strings"

// Role tags the variant a Message carries.
type Role string

const (
	RoleUser      Role = "user"      // Content holds the user's text
	RoleAssistant Role = "assistant" // Blocks hold the oracle's text and tool-use segments
	RoleTool      Role = "tool"      // Results hold one ToolResult per preceding tool-use block
)

// BlockType classifies one segment of an assistant turn.
type BlockType string

const (
	BlockText    BlockType = "text"
	BlockToolUse BlockType = "tool_use"
)

// Block is one ordered segment of an assistant turn: either text or a tool invocation request.
type Block struct {
	Type     BlockType `json:"type"`
	Text     string    `json:"text,omitempty"`
	ToolCall *ToolCall `json:"tool_call,omitempty"`
}

// TextBlock builds a text segment.
func TextBlock(text string) Block {
	return Block{Type: BlockText, Text: text}
}

// ToolUseBlock builds a tool invocation segment.
func ToolUseBlock(tc ToolCall) Block {
	return Block{Type: BlockToolUse, ToolCall: &tc}
}

// Message is a tagged variant; which field is populated depends on Role.
type Message struct {
	Role    Role         `json:"role"`
	Content string       `json:"content,omitempty"`
	Blocks  []Block      `json:"blocks,omitempty"`
	Results []ToolResult `json:"results,omitempty"`
}

// UserMessage wraps the user's query text.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage copies the oracle's blocks so later mutation of the response cannot leak in.
func AssistantMessage(blocks []Block) Message {
	cp := make([]Block, len(blocks))
	copy(cp, blocks)
	return Message{Role: RoleAssistant, Blocks: cp}
}

// ToolResultsMessage wraps the ordered results of one dispatch round.
func ToolResultsMessage(results []ToolResult) Message {
	return Message{Role: RoleTool, Results: results}
}

// ToolCalls returns the tool-use blocks of an assistant message in emission order.
func (m Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, b := range m.Blocks {
		if b.Type == BlockToolUse && b.ToolCall != nil {
			calls = append(calls, *b.ToolCall)
		}
	}
	return calls
}

// Text joins the text blocks of an assistant message.
func (m Message) Text() string {
	var parts []string
	for _, b := range m.Blocks {
		if b.Type == BlockText && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// ToolCall is a tool invocation request emitted by the oracle. IDs are assigned by the oracle.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult answers exactly one ToolCall; CallID must equal the request's ID.
type ToolResult struct {
	CallID  string    `json:"call_id"`
	Name    string    `json:"name"`
	Content []Content `json:"content"`
	IsError bool      `json:"is_error"`
}

// Text joins the text content of the result.
func (r ToolResult) Text() string {
	return joinContent(r.Content)
}
