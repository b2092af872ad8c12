package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"toolpilot/internal/config"
	"toolpilot/internal/database"
	"toolpilot/internal/provider"

	"github.com/spf13/cobra"
)

const doctorTimeout = 10 * time.Second

type checkReport struct {
	out                    io.Writer
	passed, warned, failed int
}

func (r *checkReport) pass(check, detail string) {
	r.passed++
	fmt.Fprintf(r.out, "  [PASS] %-20s %s\n", check, detail)
}

func (r *checkReport) fail(check, detail string) {
	r.failed++
	fmt.Fprintf(r.out, "  [FAIL] %-20s %s\n", check, detail)
}

func (r *checkReport) warn(check, detail string) {
	r.warned++
	fmt.Fprintf(r.out, "  [WARN] %-20s %s\n", check, detail)
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the installation",
		Long: `Verifies that the configuration, workspace, database, oracle backend and
capability transport are usable. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "toolpilot doctor v%s\n\n", version)
			r := &checkReport{out: out}

			cfgPath := config.ExpandPath(resolveConfigPath())
			cfg, found, err := config.LoadOrDefaults(cfgPath)
			switch {
			case err != nil:
				r.fail("Config", err.Error())
				fmt.Fprintf(out, "\n%d passed, %d failed\n", r.passed, r.failed)
				return fmt.Errorf("config is invalid")
			case !found:
				r.warn("Config", fmt.Sprintf("%s not found, using defaults (run 'toolpilot init')", cfgPath))
			default:
				r.pass("Config", cfgPath)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), doctorTimeout)
			defer cancel()

			checkWorkspace(r, cfg.General.Workspace)
			if cfg.Database.Enabled {
				checkDatabase(ctx, r, "Database", cfg.Database.Path)
			} else {
				r.warn("Database", "disabled, query_database will not be offered")
			}
			if cfg.Audit.Enabled {
				checkDatabase(ctx, r, "Audit log", cfg.Audit.DBPath)
			}
			checkProvider(ctx, r, cfg)
			checkTransport(ctx, r, cfg)

			fmt.Fprintf(out, "\nResults: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
			if r.failed > 0 {
				return fmt.Errorf("%d check(s) failed", r.failed)
			}
			return nil
		},
	}
}

func checkWorkspace(r *checkReport, workspace string) {
	info, err := os.Stat(workspace)
	switch {
	case err != nil:
		r.warn("Workspace", fmt.Sprintf("not found: %s (created on first run)", workspace))
	case !info.IsDir():
		r.fail("Workspace", fmt.Sprintf("not a directory: %s", workspace))
	default:
		r.pass("Workspace", workspace)
	}
}

// checkDatabase opens path and runs a read through the store's own dispatch path.
func checkDatabase(ctx context.Context, r *checkReport, name, path string) {
	store, err := database.NewSQLiteStore(database.StoreConfig{Path: path, Logger: logger})
	if err != nil {
		r.fail(name, err.Error())
		return
	}
	defer store.Close()
	if _, err := store.Execute(ctx, "SELECT 1"); err != nil {
		r.fail(name, err.Error())
		return
	}
	r.pass(name, path)
}

func checkProvider(ctx context.Context, r *checkReport, cfg *config.Config) {
	label := "Provider: " + cfg.Provider.Name
	p, err := provider.NewFactory(logger).Build(ctx, cfg.Provider)
	if err != nil {
		r.fail(label, err.Error())
		return
	}
	if c, ok := p.(io.Closer); ok {
		defer c.Close()
	}
	if err := p.Healthy(ctx); err != nil {
		r.fail(label, err.Error())
		return
	}
	r.pass(label, "ready")
}

func checkTransport(ctx context.Context, r *checkReport, cfg *config.Config) {
	label := "Transport: " + cfg.Transport.Mode
	a, err := connect(ctx, cfg)
	if err != nil {
		r.fail(label, err.Error())
		return
	}
	defer a.Close()

	catalogue, err := a.transport.Discover(ctx)
	if err != nil {
		r.fail(label, err.Error())
		return
	}
	if len(catalogue) == 0 {
		r.warn(label, "no capabilities exposed")
		return
	}
	r.pass(label, fmt.Sprintf("%d capabilities", len(catalogue)))
}
