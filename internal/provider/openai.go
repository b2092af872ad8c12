package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"toolpilot/internal/domain"
)

const (
	openAIAPIBase      = "https://api.openai.com/v1"
	openAIDefaultModel = "gpt-4o-mini"
	ollamaAPIBase      = "http://localhost:11434/v1"
	ollamaDefaultModel = "llama3.1"
)

// OpenAI implements domain.Provider for OpenAI-compatible chat completions APIs,
// including Ollama's /v1 endpoint.
type OpenAI struct {
	name    string
	apiKey  string
	apiBase string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

type OpenAIConfig struct {
	// Name labels the backend in logs and errors; defaults to "openai".
	Name    string
	APIKey  string
	APIBase string
	Model   string
	Client  *http.Client
	Logger  *slog.Logger
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.APIBase == "" {
		cfg.APIBase = openAIAPIBase
	}
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(defaultHTTPTimeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &OpenAI{
		name:    cfg.Name,
		apiKey:  cfg.APIKey,
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		model:   cfg.Model,
		client:  cfg.Client,
		logger:  cfg.Logger,
	}
}

// NewOllama points the OpenAI-compatible adapter at a local Ollama server.
func NewOllama(apiBase, model string, logger *slog.Logger) *OpenAI {
	if apiBase == "" {
		apiBase = ollamaAPIBase
	}
	if model == "" {
		model = ollamaDefaultModel
	}
	return NewOpenAI(OpenAIConfig{Name: "ollama", APIBase: apiBase, Model: model, Logger: logger})
}

func (o *OpenAI) Name() string { return o.name }

func (o *OpenAI) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.apiBase+"/models", nil)
	if err != nil {
		return err
	}
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s not reachable: %w", o.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s: invalid API key", o.name)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", o.name, resp.StatusCode)
	}
	return nil
}

type oaiRequest struct {
	Model     string       `json:"model"`
	Messages  []oaiMessage `json:"messages"`
	Tools     []oaiTool    `json:"tools,omitempty"`
	MaxTokens int          `json:"max_tokens,omitempty"`
	Stream    bool         `json:"stream"`
}

type oaiMessage struct {
	Role       string        `json:"role"`
	Content    string        `json:"content"`
	ToolCalls  []oaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	Name       string        `json:"name,omitempty"`
}

type oaiTool struct {
	Type     string      `json:"type"`
	Function oaiFunction `json:"function"`
}

type oaiFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type oaiToolCall struct {
	ID       string        `json:"id"`
	Type     string        `json:"type"`
	Function oaiToolCallFn `json:"function"`
}

type oaiToolCallFn struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type oaiResponse struct {
	Choices []oaiChoice `json:"choices"`
	Usage   oaiUsage    `json:"usage"`
}

type oaiChoice struct {
	Message      oaiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

type oaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// toolErrorPrefix marks failed results; chat completions has no is_error field.
const toolErrorPrefix = "ERROR: "

func (o *OpenAI) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = o.model
	}

	body := oaiRequest{
		Model:     model,
		Messages:  toOpenAIMessages(req.System, req.Messages),
		MaxTokens: req.MaxTokens,
	}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, oaiTool{
			Type: "function",
			Function: oaiFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema.JSONSchema(),
			},
		})
	}

	headers := map[string]string{}
	if o.apiKey != "" {
		headers["Authorization"] = "Bearer " + o.apiKey
	}
	var oaiResp oaiResponse
	if err := postJSON(ctx, o.client, o.name, o.apiBase+"/chat/completions", headers, body, &oaiResp); err != nil {
		return nil, err
	}

	out := &domain.ChatResponse{
		StopReason: domain.StopEnd,
		Usage: domain.Usage{
			PromptTokens:     oaiResp.Usage.PromptTokens,
			CompletionTokens: oaiResp.Usage.CompletionTokens,
			TotalTokens:      oaiResp.Usage.TotalTokens,
		},
	}
	if len(oaiResp.Choices) == 0 {
		return out, nil
	}

	choice := oaiResp.Choices[0]
	out.StopReason = openAIStopReason(choice.FinishReason)
	content := stripRolePrefix(strings.TrimSpace(choice.Message.Content))

	calls := make([]domain.ToolCall, 0, len(choice.Message.ToolCalls))
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				o.logger.Warn("unparseable tool arguments", "provider", o.name, "tool", tc.Function.Name, "error", err)
			}
		}
		if args == nil {
			args = make(map[string]any)
		}
		calls = append(calls, domain.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}

	if len(calls) == 0 && content != "" {
		if extracted := extractToolCallsFromContent(content, req.Tools); len(extracted) > 0 {
			o.logger.Debug("recovered tool calls from content", "provider", o.name, "count", len(extracted))
			calls = extracted
			content = ""
		}
	}

	if content != "" {
		out.Blocks = append(out.Blocks, domain.TextBlock(content))
	}
	for _, tc := range calls {
		out.Blocks = append(out.Blocks, domain.ToolUseBlock(tc))
	}
	// Some compatible servers report "stop" even when they return tool calls.
	if len(calls) > 0 {
		out.StopReason = domain.StopToolUse
	}
	return out, nil
}

// toOpenAIMessages flattens each tool result into its own "tool" message.
func toOpenAIMessages(system string, msgs []domain.Message) []oaiMessage {
	out := make([]oaiMessage, 0, len(msgs)+1)
	if system != "" {
		out = append(out, oaiMessage{Role: "system", Content: system})
	}
	for _, m := range msgs {
		switch m.Role {
		case domain.RoleUser:
			out = append(out, oaiMessage{Role: "user", Content: m.Content})
		case domain.RoleAssistant:
			om := oaiMessage{Role: "assistant", Content: m.Text()}
			for _, tc := range m.ToolCalls() {
				args, _ := json.Marshal(tc.Arguments)
				if tc.Arguments == nil {
					args = []byte("{}")
				}
				om.ToolCalls = append(om.ToolCalls, oaiToolCall{
					ID:       tc.ID,
					Type:     "function",
					Function: oaiToolCallFn{Name: tc.Name, Arguments: string(args)},
				})
			}
			out = append(out, om)
		case domain.RoleTool:
			for _, r := range m.Results {
				text := r.Text()
				if r.IsError {
					text = toolErrorPrefix + text
				}
				out = append(out, oaiMessage{Role: "tool", Content: text, ToolCallID: r.CallID, Name: r.Name})
			}
		}
	}
	return out
}

func openAIStopReason(s string) domain.StopReason {
	switch s {
	case "stop", "":
		return domain.StopEnd
	case "tool_calls", "function_call":
		return domain.StopToolUse
	case "length":
		return domain.StopMaxTokens
	default:
		return domain.StopOther
	}
}
