package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"toolpilot/internal/agent"
	"toolpilot/internal/audit"
	"toolpilot/internal/config"
	"toolpilot/internal/database"
	"toolpilot/internal/domain"
	"toolpilot/internal/metrics"
	"toolpilot/internal/provider"
	"toolpilot/internal/security"
	"toolpilot/internal/tool"
	"toolpilot/internal/transport"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// capabilityTransport is a domain.Transport that owns a connection.
type capabilityTransport interface {
	domain.Transport
	Close() error
}

// app holds everything a command needs, built from one config.
type app struct {
	cfg       *config.Config
	store     *database.Store
	invoker   *tool.Invoker
	metrics   *metrics.Collector
	transport capabilityTransport
	provider  domain.Provider
	loop      *agent.Loop

	closers []io.Closer
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// buildHost opens the store and audit log and registers the local capabilities.
// It is all `serve` needs.
func buildHost(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	if err := os.MkdirAll(cfg.General.Workspace, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	if cfg.Database.Enabled {
		store, err := database.NewSQLiteStore(database.StoreConfig{
			Path:         cfg.Database.Path,
			ReadKeywords: cfg.Database.ReadKeywords,
			Logger:       logger.With("component", "database"),
		})
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		a.store = store
		a.closers = append(a.closers, store)

		if err := runInitScript(ctx, store, cfg.Database.InitScript); err != nil {
			a.Close()
			return nil, err
		}
	}

	sink, err := a.buildAuditSink(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	reg, err := registerTools(cfg, a.store)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.invoker = tool.NewInvoker(tool.InvokerConfig{
		Registry: reg,
		Audit:    sink,
		Logger:   logger.With("component", "invoker"),
	})
	return a, nil
}

// connect builds the capability side: local capabilities when the transport is
// in-process, otherwise a client session with the configured remote host.
func connect(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	if cfg.Transport.Mode == "" || cfg.Transport.Mode == "local" {
		host, err := buildHost(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a = host
	}

	tr, err := a.buildTransport(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.transport = tr
	a.closers = append(a.closers, tr)
	return a, nil
}

// buildApp wires the whole chain: capabilities, transport, oracle and agent loop.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a, err := connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	prov, err := provider.NewFactory(logger).Build(ctx, cfg.Provider)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.provider = prov
	if c, ok := prov.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	a.loop = agent.NewLoop(agent.LoopConfig{
		Provider:  prov,
		Transport: a.transport,
		Prompt: agent.NewPromptBuilder(agent.PromptConfig{
			Workspace:         cfg.General.Workspace,
			SystemPromptExtra: cfg.General.SystemPromptExtra,
		}),
		Logger:        logger.With("component", "agent"),
		MaxIterations: cfg.General.MaxIterations,
		ToolTimeout:   time.Duration(cfg.General.ToolTimeoutSeconds) * time.Second,
		MaxTokens:     cfg.Provider.MaxTokens,
		Model:         cfg.Provider.Model,
	})
	return a, nil
}

// buildAuditSink fans every capability call out to the log, the metrics collector
// and, when enabled, the SQLite audit log.
func (a *app) buildAuditSink(cfg *config.Config) (domain.AuditSink, error) {
	a.metrics = metrics.NewCollector()
	sinks := audit.Multi{audit.NewLogSink(logger.With("component", "audit")), a.metrics}
	if !cfg.Audit.Enabled {
		return sinks, nil
	}
	db, err := audit.NewSQLiteSink(cfg.Audit.DBPath, logger.With("component", "audit"))
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	a.closers = append(a.closers, db)
	return append(sinks, db), nil
}

func (a *app) buildTransport(ctx context.Context) (capabilityTransport, error) {
	tc := a.cfg.Transport
	switch tc.Mode {
	case "", "local":
		return transport.NewLocal(a.invoker), nil
	}

	var (
		wire mcpsdk.Transport
		err  error
	)
	switch tc.Mode {
	case "stdio":
		wire, err = transport.CommandTransport(ctx, tc.Command)
	case "http":
		wire, err = transport.HTTPTransport(tc.Endpoint)
	default:
		return nil, fmt.Errorf("unknown transport mode %q", tc.Mode)
	}
	if err != nil {
		return nil, err
	}
	client, err := transport.Connect(ctx, wire, version, logger.With("component", "transport"))
	if err != nil {
		return nil, err
	}
	return client, nil
}

func runInitScript(ctx context.Context, store *database.Store, path string) error {
	if path == "" {
		return nil
	}
	script, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read init script: %w", err)
	}
	if err := store.RunScript(ctx, string(script)); err != nil {
		return fmt.Errorf("init script %s: %w", path, err)
	}
	logger.Info("database init script applied", "path", path)
	return nil
}

// registerTools builds the capability registry from the enabled tool sections.
func registerTools(cfg *config.Config, store *database.Store) (*tool.Registry, error) {
	reg := tool.NewRegistry(logger.With("component", "registry"))
	client := &http.Client{Timeout: time.Duration(cfg.General.ToolTimeoutSeconds) * time.Second}

	if cfg.Tools.Files.Enabled {
		guard, err := security.NewGuard(cfg.General.Workspace)
		if err != nil {
			return nil, err
		}
		reg.Add(tool.NewReadFileTool(guard))
		reg.Add(tool.NewWriteFileTool(guard))
		reg.Add(tool.NewListDirTool(guard))
	}

	if cfg.Tools.Code.Enabled {
		reg.Add(tool.NewCodeTool(tool.CodeConfig{
			Timeout:        time.Duration(cfg.Tools.Code.TimeoutSeconds) * time.Second,
			MaxOutputBytes: cfg.Tools.Code.MaxOutputBytes,
			Interpreters:   interpreters(cfg.Tools.Code.Interpreters),
		}))
	}

	reg.Add(tool.NewWebSearchTool(tool.SearchConfig{
		APIKey:   cfg.Tools.Search.APIKey,
		Endpoint: cfg.Tools.Search.Endpoint,
		Client:   client,
	}))
	if cfg.Tools.Web.FetchEnabled {
		reg.Add(tool.NewWebFetchTool(client))
	}
	if cfg.Tools.Weather.Enabled {
		reg.Add(tool.NewWeatherTool(cfg.Tools.Weather.Endpoint, client))
	}
	if cfg.Tools.Sports.Enabled {
		reg.Add(tool.NewSportsTool(tool.SportsConfig{
			APIKey:   cfg.Tools.Sports.APIKey,
			Endpoint: cfg.Tools.Sports.Endpoint,
			Client:   client,
		}))
	}
	if store != nil {
		reg.Add(tool.NewQueryTool(store))
	}

	logger.Debug("capabilities registered", "count", reg.Len(), "names", reg.Names())
	return reg, nil
}

func interpreters(in map[string]config.InterpreterConfig) map[string]tool.Interpreter {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]tool.Interpreter, len(in))
	for lang, ic := range in {
		out[lang] = tool.Interpreter{Command: ic.Command, Args: ic.Args, Extension: ic.Extension}
	}
	return out
}

// loadConfig reads the config file, falling back to defaults when it does not exist.
func loadConfig() (*config.Config, string, error) {
	cfgPath := resolveConfigPath()
	cfg, found, err := config.LoadOrDefaults(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config: %w", err)
	}
	if !found {
		logger.Warn("config not found, using defaults", "path", cfgPath)
	}
	return cfg, cfgPath, nil
}
