package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"toolpilot/internal/audit"
	"toolpilot/internal/channel"
	"toolpilot/internal/config"
	"toolpilot/internal/transport"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     = slog.Default()
	configPath string // overridable via --config flag
	logJSON    bool
	logLevel   string
)

func main() {
	root := &cobra.Command{
		Use:   "toolpilot",
		Short: "toolpilot: a tool-calling assistant",
		Long: "toolpilot answers questions by letting a language model call local capabilities\n" +
			"(files, code, web, weather, sports, SQL) through a uniform capability protocol.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogger()
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: ~/.toolpilot/config.yaml)")
	root.PersistentFlags().BoolVar(&logJSON, "log-json", false, "write logs as JSON")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override general.logLevel (debug, info, warn, error)")

	root.AddCommand(initCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(askCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(toolsCmd())
	root.AddCommand(configCmd())
	root.AddCommand(auditCmd())
	root.AddCommand(doctorCmd())

	err := root.Execute()
	closeLog()
	if err != nil {
		os.Exit(1)
	}
}

var logCloser interface{ Close() error } = nopCloser{}

func closeLog() { _ = logCloser.Close() }

// setupLogger reads only the logging fields of the config; a broken config is
// reported later by the command that needs it.
func setupLogger() error {
	level, file := "info", ""
	if cfg, _, err := config.LoadOrDefaults(resolveConfigPath()); err == nil {
		level, file = cfg.General.LogLevel, cfg.General.LogFile
	}
	if logLevel != "" {
		level = logLevel
	}
	l, c, err := newLogger(parseLevel(level), logJSON, file)
	if err != nil {
		return err
	}
	logger, logCloser = l, c
	slog.SetDefault(l)
	return nil
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config and create the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := config.ExpandPath(resolveConfigPath())
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			workspace := config.ExpandPath(cfg.General.Workspace)
			if err := os.MkdirAll(workspace, 0o755); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "workspace", workspace)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			cli := channel.NewCLI(channel.CLIConfig{
				Logger:  logger.With("channel", "cli"),
				Spinner: true,
			})
			return cli.Run(ctx, a.loop)
		},
	}
}

func askCmd() *cobra.Command {
	var showTranscript bool
	cmd := &cobra.Command{
		Use:   "ask [query]",
		Short: "Answer a single query and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			query := strings.Join(args, " ")
			if !showTranscript {
				return channel.Ask(ctx, a.loop, query, cmd.OutOrStdout())
			}
			tr, err := a.loop.ProcessQueryTranscript(ctx, query)
			if tr != nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(tr); encErr != nil && err == nil {
					err = encErr
				}
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&showTranscript, "transcript", false, "print the full conversation as JSON")
	return cmd
}

func serveCmd() *cobra.Command {
	var (
		overHTTP bool
		listen   string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run as a capability host (stdio by default)",
		Long: "Exposes the locally configured capabilities over the capability protocol.\n" +
			"Without --http the host speaks newline-delimited JSON-RPC on stdin/stdout.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			a, err := buildHost(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			host := transport.NewHost(a.invoker, version, logger.With("component", "host"))
			host.MountMetrics(a.metrics.Handler())
			if overHTTP || listen != "" {
				if listen == "" {
					listen = cfg.Transport.Listen
				}
				return host.ServeHTTP(ctx, listen)
			}
			return host.ServeStdio(ctx)
		},
	}
	cmd.Flags().BoolVar(&overHTTP, "http", false, "serve over streamable HTTP instead of stdio")
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (default: transport.listen)")
	return cmd
}

func toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the capabilities the transport exposes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			a, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			catalogue, err := a.transport.Discover(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, d := range catalogue {
				fmt.Fprintf(out, "%-20s %s\n", d.Name, d.Description)
			}
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. provider.model)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			val, err := config.GetByPath(config.Sanitize(cfg), args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. provider.name gemini)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			values := config.ListPaths(cfg)
			keys := make([]string, 0, len(values))
			for k := range values {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", k, values[k])
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), config.ExpandPath(resolveConfigPath()))
		},
	})

	return cmd
}

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the capability call log",
	}

	var limit int
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the most recent capability calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Audit.Enabled {
				return fmt.Errorf("audit log is disabled (audit.enabled=false)")
			}
			sink, err := audit.NewSQLiteSink(cfg.Audit.DBPath, logger)
			if err != nil {
				return err
			}
			defer sink.Close()

			entries, err := sink.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				status := "ok"
				if e.IsError {
					status = "ERR"
				}
				fmt.Fprintf(out, "%s  %-3s  %-18s %8s  query=%s  %s\n",
					e.At.Format("2006-01-02 15:04:05"), status, e.Capability, e.Duration.Round(time.Millisecond), e.QueryID, e.Outcome)
			}
			return nil
		},
	}
	tail.Flags().IntVarP(&limit, "lines", "n", 20, "number of entries to show")
	cmd.AddCommand(tail)
	return cmd
}
