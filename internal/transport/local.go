// Package transport carries discover/invoke exchanges between the agent loop and
// whatever hosts the capabilities: the same process, or an MCP server.
package transport

import (
	"context"

	"toolpilot/internal/domain"
	"toolpilot/internal/tool"
)

// Local routes calls straight to an in-process invoker. It never reports protocol errors.
type Local struct {
	invoker *tool.Invoker
}

func NewLocal(invoker *tool.Invoker) *Local {
	return &Local{invoker: invoker}
}

func (l *Local) Discover(ctx context.Context) ([]domain.CapabilityDescriptor, error) {
	return l.invoker.Registry().Catalogue(), nil
}

func (l *Local) Invoke(ctx context.Context, name string, args map[string]any) (domain.Envelope, error) {
	return l.invoker.Invoke(ctx, name, args), nil
}

func (l *Local) Close() error { return nil }

var _ domain.Transport = (*Local)(nil)
