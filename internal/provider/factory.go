package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"toolpilot/internal/config"
	"toolpilot/internal/domain"
)

// Constructor builds a provider from its config section.
type Constructor func(ctx context.Context, pc config.ProviderConfig, logger *slog.Logger) (domain.Provider, error)

// Factory maps provider names to constructors.
type Factory struct {
	logger       *slog.Logger
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewFactory creates a factory with the built-in backends registered.
func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Factory{
		logger:       logger,
		constructors: make(map[string]Constructor),
	}
	f.registerDefaults()
	return f
}

// RegisterConstructor adds or replaces a constructor by name.
func (f *Factory) RegisterConstructor(name string, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[name] = ctor
}

func (f *Factory) registerDefaults() {
	f.constructors["claude"] = func(_ context.Context, pc config.ProviderConfig, logger *slog.Logger) (domain.Provider, error) {
		return NewClaude(ClaudeConfig{
			APIKey:  pc.APIKey,
			APIBase: pc.APIBase,
			Model:   pc.Model,
			Client:  SharedHTTPClient(timeoutOf(pc)),
			Logger:  logger,
		}), nil
	}
	f.constructors["openai"] = func(_ context.Context, pc config.ProviderConfig, logger *slog.Logger) (domain.Provider, error) {
		return NewOpenAI(OpenAIConfig{
			APIKey:  pc.APIKey,
			APIBase: pc.APIBase,
			Model:   pc.Model,
			Client:  SharedHTTPClient(timeoutOf(pc)),
			Logger:  logger,
		}), nil
	}
	f.constructors["ollama"] = func(_ context.Context, pc config.ProviderConfig, logger *slog.Logger) (domain.Provider, error) {
		return NewOllama(pc.APIBase, pc.Model, logger), nil
	}
	f.constructors["gemini"] = func(ctx context.Context, pc config.ProviderConfig, logger *slog.Logger) (domain.Provider, error) {
		return NewGemini(ctx, GeminiConfig{
			APIKey:   pc.APIKey,
			Model:    pc.Model,
			Endpoint: pc.APIBase,
			Logger:   logger,
		})
	}
}

func timeoutOf(pc config.ProviderConfig) time.Duration {
	return time.Duration(pc.TimeoutSeconds) * time.Second
}

// Build creates the provider named by pc.Name.
func (f *Factory) Build(ctx context.Context, pc config.ProviderConfig) (domain.Provider, error) {
	f.mu.RLock()
	ctor, ok := f.constructors[pc.Name]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (available: %v)", pc.Name, f.Names())
	}

	p, err := ctor(ctx, pc, f.logger.With("provider", pc.Name))
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", pc.Name, err)
	}
	f.logger.Debug("provider ready", "provider", p.Name(), "model", pc.Model)
	return p, nil
}

// Names lists the registered provider names in sorted order.
func (f *Factory) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.constructors))
	for name := range f.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
