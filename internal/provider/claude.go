package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"toolpilot/internal/domain"
)

const (
	claudeAPIBase      = "https://api.anthropic.com/v1"
	claudeAPIVersion   = "2023-06-01"
	claudeDefaultModel = "claude-sonnet-4-5"
)

// Claude implements domain.Provider for the Anthropic Messages API.
type Claude struct {
	apiKey  string
	apiBase string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

type ClaudeConfig struct {
	APIKey  string
	APIBase string
	Model   string
	Client  *http.Client
	Logger  *slog.Logger
}

// NewClaude creates a new Claude provider.
func NewClaude(cfg ClaudeConfig) *Claude {
	if cfg.Model == "" {
		cfg.Model = claudeDefaultModel
	}
	if cfg.APIBase == "" {
		cfg.APIBase = claudeAPIBase
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(defaultHTTPTimeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Claude{
		apiKey:  cfg.APIKey,
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		model:   cfg.Model,
		client:  cfg.Client,
		logger:  cfg.Logger,
	}
}

func (c *Claude) Name() string { return "claude" }

func (c *Claude) Healthy(ctx context.Context) error {
	if c.apiKey == "" {
		return fmt.Errorf("claude: no API key configured")
	}
	return nil
}

type claudeRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	System    string       `json:"system,omitempty"`
	Messages  []claudeMsg  `json:"messages"`
	Tools     []claudeTool `json:"tools,omitempty"`
}

type claudeMsg struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []claudeContent
}

type claudeContent struct {
	Type      string `json:"type"` // "text" | "tool_use" | "tool_result"
	Text      string `json:"text,omitempty"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Input     any    `json:"input,omitempty"` // object; an empty one must still be sent
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

type claudeTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type claudeResponse struct {
	Content    []claudeContent `json:"content"`
	StopReason string          `json:"stop_reason"`
	Usage      claudeUsage     `json:"usage"`
}

type claudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (c *Claude) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	body := claudeRequest{
		Model:     model,
		MaxTokens: maxTokens,
		System:    req.System,
		Messages:  toClaudeMessages(req.Messages),
	}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, claudeTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema.JSONSchema(),
		})
	}

	var claudeResp claudeResponse
	err := postJSON(ctx, c.client, "claude", c.apiBase+"/messages", map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": claudeAPIVersion,
	}, body, &claudeResp)
	if err != nil {
		return nil, err
	}

	out := &domain.ChatResponse{
		StopReason: claudeStopReason(claudeResp.StopReason),
		Usage: domain.Usage{
			PromptTokens:     claudeResp.Usage.InputTokens,
			CompletionTokens: claudeResp.Usage.OutputTokens,
			TotalTokens:      claudeResp.Usage.InputTokens + claudeResp.Usage.OutputTokens,
		},
	}
	for _, block := range claudeResp.Content {
		switch block.Type {
		case "text":
			out.Blocks = append(out.Blocks, domain.TextBlock(block.Text))
		case "tool_use":
			args, _ := block.Input.(map[string]any)
			if args == nil {
				args = make(map[string]any)
			}
			out.Blocks = append(out.Blocks, domain.ToolUseBlock(domain.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			}))
		default:
			c.logger.Debug("claude: skipping content block", "type", block.Type)
		}
	}
	return out, nil
}

// toClaudeMessages keeps block order; tool results travel as a user turn of tool_result blocks.
func toClaudeMessages(msgs []domain.Message) []claudeMsg {
	out := make([]claudeMsg, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case domain.RoleUser:
			out = append(out, claudeMsg{Role: "user", Content: m.Content})
		case domain.RoleAssistant:
			blocks := make([]claudeContent, 0, len(m.Blocks))
			for _, b := range m.Blocks {
				switch {
				case b.Type == domain.BlockText && b.Text != "":
					blocks = append(blocks, claudeContent{Type: "text", Text: b.Text})
				case b.Type == domain.BlockToolUse && b.ToolCall != nil:
					args := b.ToolCall.Arguments
					if args == nil {
						args = map[string]any{}
					}
					blocks = append(blocks, claudeContent{
						Type:  "tool_use",
						ID:    b.ToolCall.ID,
						Name:  b.ToolCall.Name,
						Input: args,
					})
				}
			}
			out = append(out, claudeMsg{Role: "assistant", Content: blocks})
		case domain.RoleTool:
			blocks := make([]claudeContent, 0, len(m.Results))
			for _, r := range m.Results {
				blocks = append(blocks, claudeContent{
					Type:      "tool_result",
					ToolUseID: r.CallID,
					Content:   r.Text(),
					IsError:   r.IsError,
				})
			}
			out = append(out, claudeMsg{Role: "user", Content: blocks})
		}
	}
	return out
}

func claudeStopReason(s string) domain.StopReason {
	switch s {
	case "end_turn", "stop_sequence":
		return domain.StopEnd
	case "tool_use":
		return domain.StopToolUse
	case "max_tokens":
		return domain.StopMaxTokens
	default:
		return domain.StopOther
	}
}
