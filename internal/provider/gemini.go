package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"toolpilot/internal/domain"
)

const geminiDefaultModel = "gemini-2.0-flash"

// Gemini implements domain.Provider on the Google generative AI SDK.
type Gemini struct {
	client *genai.Client
	model  string
	logger *slog.Logger
	newID  func() string
}

type GeminiConfig struct {
	APIKey string
	Model  string
	// Endpoint overrides the API host, mainly for proxies.
	Endpoint string
	Logger   *slog.Logger
}

// NewGemini dials the API. Gemini does not assign tool-call ids, so the adapter mints uuids.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: API key cannot be empty")
	}
	if cfg.Model == "" {
		cfg.Model = geminiDefaultModel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{
		client: client,
		model:  cfg.Model,
		logger: cfg.Logger,
		newID:  func() string { return "call_" + uuid.NewString() },
	}, nil
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Healthy(ctx context.Context) error {
	if g.client == nil {
		return errors.New("gemini: client not initialized")
	}
	return nil
}

// Close releases the underlying SDK client.
func (g *Gemini) Close() error { return g.client.Close() }

func (g *Gemini) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	name := req.Model
	if name == "" {
		name = g.model
	}
	contents, err := toGeminiContents(req.Messages)
	if err != nil {
		return nil, err
	}

	// A fresh model per call: GenerativeModel carries per-request settings.
	model := g.client.GenerativeModel(name)
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	model.SetMaxOutputTokens(int32(maxTokens))
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	model.Tools = toGeminiTools(req.Tools)

	chat := model.StartChat()
	chat.History = contents[:len(contents)-1]
	resp, err := chat.SendMessage(ctx, contents[len(contents)-1].Parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}
	return fromGeminiResponse(resp, g.newID)
}

// toGeminiContents maps the conversation onto alternating user/model turns. Tool
// results go back as function responses matched by name.
func toGeminiContents(msgs []domain.Message) ([]*genai.Content, error) {
	if len(msgs) == 0 {
		return nil, errors.New("gemini: empty conversation")
	}
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case domain.RoleUser:
			out = append(out, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		case domain.RoleAssistant:
			var parts []genai.Part
			for _, b := range m.Blocks {
				switch {
				case b.Type == domain.BlockText && b.Text != "":
					parts = append(parts, genai.Text(b.Text))
				case b.Type == domain.BlockToolUse && b.ToolCall != nil:
					parts = append(parts, genai.FunctionCall{Name: b.ToolCall.Name, Args: b.ToolCall.Arguments})
				}
			}
			if len(parts) == 0 {
				parts = []genai.Part{genai.Text("")}
			}
			out = append(out, &genai.Content{Role: "model", Parts: parts})
		case domain.RoleTool:
			parts := make([]genai.Part, 0, len(m.Results))
			for _, r := range m.Results {
				response := map[string]any{"output": r.Text()}
				if r.IsError {
					response = map[string]any{"error": r.Text()}
				}
				parts = append(parts, genai.FunctionResponse{Name: r.Name, Response: response})
			}
			out = append(out, &genai.Content{Role: "user", Parts: parts})
		}
	}
	if last := out[len(out)-1]; last.Role != "user" {
		return nil, errors.New("gemini: conversation must end with a user or tool turn")
	}
	return out, nil
}

func toGeminiTools(catalogue []domain.CapabilityDescriptor) []*genai.Tool {
	if len(catalogue) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(catalogue))
	for _, d := range catalogue {
		decl := &genai.FunctionDeclaration{Name: d.Name, Description: d.Description}
		if len(d.InputSchema.Properties) > 0 {
			decl.Parameters = toGeminiSchema(d.InputSchema)
		}
		decls = append(decls, decl)
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func toGeminiSchema(s domain.InputSchema) *genai.Schema {
	schema := &genai.Schema{
		Type:       genai.TypeObject,
		Required:   s.Required,
		Properties: make(map[string]*genai.Schema, len(s.Properties)),
	}
	for name, p := range s.Properties {
		schema.Properties[name] = &genai.Schema{
			Type:        geminiType(p.Type),
			Description: p.Description,
		}
		if p.Type == "array" {
			schema.Properties[name].Items = &genai.Schema{Type: genai.TypeString}
		}
	}
	return schema
}

func geminiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

// fromGeminiResponse keeps part order. Gemini reports STOP even when it requests
// functions, so any function call means tool_use.
func fromGeminiResponse(resp *genai.GenerateContentResponse, newID func() string) (*domain.ChatResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, errors.New("no candidates returned from Gemini")
	}
	candidate := resp.Candidates[0]

	out := &domain.ChatResponse{StopReason: geminiStopReason(candidate.FinishReason)}
	if resp.UsageMetadata != nil {
		out.Usage = domain.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	if candidate.Content == nil {
		return out, nil
	}

	var text strings.Builder
	flushText := func() {
		if s := strings.TrimSpace(text.String()); s != "" {
			out.Blocks = append(out.Blocks, domain.TextBlock(s))
		}
		text.Reset()
	}
	hasCalls := false
	for _, part := range candidate.Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			text.WriteString(string(v))
		case genai.FunctionCall:
			flushText()
			args := v.Args
			if args == nil {
				args = make(map[string]any)
			}
			out.Blocks = append(out.Blocks, domain.ToolUseBlock(domain.ToolCall{
				ID:        newID(),
				Name:      v.Name,
				Arguments: args,
			}))
			hasCalls = true
		}
	}
	flushText()
	if hasCalls {
		out.StopReason = domain.StopToolUse
	}
	return out, nil
}

func geminiStopReason(r genai.FinishReason) domain.StopReason {
	switch r {
	case genai.FinishReasonStop:
		return domain.StopEnd
	case genai.FinishReasonMaxTokens:
		return domain.StopMaxTokens
	default:
		return domain.StopOther
	}
}
