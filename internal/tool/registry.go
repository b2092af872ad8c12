package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"toolpilot/internal/domain"
)

// Handler runs one capability against already-validated arguments. The returned value
// is wrapped into content by the Invoker: a string is used as-is, []domain.Content is
// used as-is, anything else is rendered as indented JSON.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Capability is a self-describing handler, the shape every built-in capability takes.
type Capability interface {
	Descriptor() domain.CapabilityDescriptor
	Execute(ctx context.Context, args map[string]any) (any, error)
}

type entry struct {
	desc    domain.CapabilityDescriptor
	handler Handler
}

// Registry maps capability names to their descriptor and handler. It is filled once at
// startup and read-only afterwards; the lock only guards misuse.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]entry
	logger  *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[string]entry),
		logger:  logger,
	}
}

// Register adds a capability. A second registration under the same name replaces the
// first one but keeps its original position in the catalogue.
func (r *Registry) Register(desc domain.CapabilityDescriptor, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[desc.Name]; exists {
		r.logger.Warn("capability re-registered, replacing previous handler", "name", desc.Name)
	} else {
		r.order = append(r.order, desc.Name)
	}
	if desc.InputSchema.Type == "" {
		desc.InputSchema.Type = "object"
	}
	r.entries[desc.Name] = entry{desc: desc, handler: h}
	r.logger.Debug("registered capability", "name", desc.Name)
}

// Add registers a Capability under its descriptor's name.
func (r *Registry) Add(c Capability) {
	r.Register(c.Descriptor(), c.Execute)
}

func (r *Registry) lookup(name string) (entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.lookup(name)
	return ok
}

// Catalogue returns the descriptors in registration order.
func (r *Registry) Catalogue() []domain.CapabilityDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]domain.CapabilityDescriptor, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.entries[name].desc)
	}
	return defs
}

// Names returns capability names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Param describes a single capability argument.
type Param struct {
	Type        string
	Description string
}

// Schema builds an object input schema from argument declarations.
func Schema(properties map[string]Param, required ...string) domain.InputSchema {
	props := make(map[string]domain.Property, len(properties))
	for name, p := range properties {
		props[name] = domain.Property{Type: p.Type, Description: p.Description}
	}
	return domain.InputSchema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

// ArgsString reads a string argument, rendering non-strings as JSON.
func ArgsString(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// ArgsInt reads an integer argument, returning def when absent or unparseable.
func ArgsInt(args map[string]any, key string, def int) int {
	v, ok := args[key]
	if !ok || v == nil {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	return def
}

// ArgsBool reads a boolean argument, returning def when absent.
func ArgsBool(args map[string]any, key string, def bool) bool {
	if b, ok := args[key].(bool); ok {
		return b
	}
	return def
}

// requireString reads a required string argument that must also be non-empty.
func requireString(args map[string]any, key string) (string, error) {
	s := ArgsString(args, key)
	if s == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return s, nil
}
