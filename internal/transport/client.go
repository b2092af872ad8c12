package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"toolpilot/internal/domain"
	"toolpilot/internal/tool"
)

// ClientName identifies this process to capability hosts.
const ClientName = "toolpilot"

// Client talks to a remote capability host over MCP. Any failure to exchange a
// message is returned as an error; capability failures arrive as isError envelopes.
type Client struct {
	session *mcpsdk.ClientSession
	logger  *slog.Logger

	mu    sync.RWMutex
	known map[string]struct{}
}

// Connect opens an MCP session over t.
func Connect(ctx context.Context, t mcpsdk.Transport, version string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	impl := mcpsdk.NewClient(&mcpsdk.Implementation{Name: ClientName, Version: version}, nil)
	session, err := impl.Connect(ctx, t, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to capability host: %w", err)
	}
	return &Client{session: session, logger: logger}, nil
}

// CommandTransport spawns command (split on whitespace) and speaks MCP over its stdio.
func CommandTransport(ctx context.Context, command string) (mcpsdk.Transport, error) {
	parts := strings.Fields(strings.TrimSpace(command))
	if len(parts) == 0 {
		return nil, fmt.Errorf("capability host command is empty")
	}
	// #nosec G204 -- the command comes from local configuration
	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	return &mcpsdk.CommandTransport{Command: cmd}, nil
}

// HTTPTransport speaks MCP streamable HTTP to endpoint.
func HTTPTransport(endpoint string) (mcpsdk.Transport, error) {
	endpoint = strings.TrimSpace(endpoint)
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return nil, fmt.Errorf("capability host endpoint must be http(s), got %q", endpoint)
	}
	return &mcpsdk.StreamableClientTransport{Endpoint: endpoint}, nil
}

func (c *Client) Discover(ctx context.Context) ([]domain.CapabilityDescriptor, error) {
	var out []domain.CapabilityDescriptor
	known := make(map[string]struct{})
	for t, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("list capabilities: %w", err)
		}
		desc, err := toDescriptor(t)
		if err != nil {
			return nil, err
		}
		out = append(out, desc)
		known[desc.Name] = struct{}{}
	}

	c.mu.Lock()
	c.known = known
	c.mu.Unlock()
	return out, nil
}

// Invoke calls a remote capability. Names absent from the last Discover are answered
// locally with the unknown-capability envelope, so hosts that reject them at the
// protocol level cannot abort the conversation.
func (c *Client) Invoke(ctx context.Context, name string, args map[string]any) (domain.Envelope, error) {
	known, err := c.isKnown(ctx, name)
	if err != nil {
		return domain.Envelope{}, err
	}
	if !known {
		return tool.UnknownCapabilityEnvelope(name), nil
	}

	if args == nil {
		args = map[string]any{}
	}
	res, err := c.session.CallTool(ctx, &mcpsdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return domain.Envelope{}, fmt.Errorf("call %s: %w", name, err)
	}
	return fromResult(res), nil
}

func (c *Client) isKnown(ctx context.Context, name string) (bool, error) {
	c.mu.RLock()
	known := c.known
	c.mu.RUnlock()
	if known == nil {
		if _, err := c.Discover(ctx); err != nil {
			return false, err
		}
		c.mu.RLock()
		known = c.known
		c.mu.RUnlock()
	}
	_, ok := known[name]
	return ok, nil
}

func (c *Client) Close() error {
	return c.session.Close()
}

// wireSchema tolerates property types that are not a single string.
type wireSchema struct {
	Type       string `json:"type"`
	Properties map[string]struct {
		Type        any    `json:"type"`
		Description string `json:"description"`
	} `json:"properties"`
	Required []string `json:"required"`
}

func toDescriptor(t *mcpsdk.Tool) (domain.CapabilityDescriptor, error) {
	desc := domain.CapabilityDescriptor{Name: t.Name, Description: t.Description}
	if t.InputSchema == nil {
		desc.InputSchema = domain.InputSchema{Type: "object"}
		return desc, nil
	}

	raw, err := json.Marshal(t.InputSchema)
	if err != nil {
		return desc, fmt.Errorf("encode schema of %s: %w", t.Name, err)
	}
	var ws wireSchema
	if err := json.Unmarshal(raw, &ws); err != nil {
		return desc, fmt.Errorf("decode schema of %s: %w", t.Name, err)
	}

	props := make(map[string]domain.Property, len(ws.Properties))
	for name, p := range ws.Properties {
		typ, _ := p.Type.(string)
		props[name] = domain.Property{Type: typ, Description: p.Description}
	}
	desc.InputSchema = domain.InputSchema{Type: ws.Type, Properties: props, Required: ws.Required}
	if desc.InputSchema.Type == "" {
		desc.InputSchema.Type = "object"
	}
	return desc, nil
}

func fromResult(res *mcpsdk.CallToolResult) domain.Envelope {
	env := domain.Envelope{IsError: res.IsError}
	for _, c := range res.Content {
		switch v := c.(type) {
		case *mcpsdk.TextContent:
			env.Content = append(env.Content, domain.TextContent(v.Text))
		default:
			env.Content = append(env.Content, domain.TextContent(fmt.Sprintf("[unsupported %T content]", c)))
		}
	}
	return env
}

var _ domain.Transport = (*Client)(nil)
