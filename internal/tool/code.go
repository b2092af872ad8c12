package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"toolpilot/internal/domain"
)

const (
	defaultCodeTimeout    = 10 * time.Second
	defaultMaxOutputBytes = 65536
	killGracePeriod       = 2 * time.Second
)

// Interpreter describes how to run a snippet in one language.
type Interpreter struct {
	Command   string   `json:"command" yaml:"command"`
	Args      []string `json:"args,omitempty" yaml:"args,omitempty"`
	Extension string   `json:"extension" yaml:"extension"`
}

// DefaultInterpreters maps a language name to its interpreter.
func DefaultInterpreters() map[string]Interpreter {
	return map[string]Interpreter{
		"python": {Command: "python3", Extension: ".py"},
		"sh":     {Command: "sh", Extension: ".sh"},
		"bash":   {Command: "bash", Extension: ".sh"},
		"node":   {Command: "node", Extension: ".js"},
	}
}

// CodeConfig configures NewCodeTool.
type CodeConfig struct {
	Timeout        time.Duration
	MaxOutputBytes int
	// TempDir is where per-call scratch directories are created. Empty means os.TempDir().
	TempDir      string
	Interpreters map[string]Interpreter
}

// CodeTool runs a snippet in a subprocess under a hard wall-clock timeout. The snippet
// lives in a fresh scratch directory that is removed on every exit path.
type CodeTool struct {
	timeout        time.Duration
	maxOutputBytes int
	tempDir        string
	interpreters   map[string]Interpreter
}

func NewCodeTool(cfg CodeConfig) *CodeTool {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCodeTimeout
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = defaultMaxOutputBytes
	}
	if len(cfg.Interpreters) == 0 {
		cfg.Interpreters = DefaultInterpreters()
	}
	return &CodeTool{
		timeout:        cfg.Timeout,
		maxOutputBytes: cfg.MaxOutputBytes,
		tempDir:        cfg.TempDir,
		interpreters:   cfg.Interpreters,
	}
}

func (t *CodeTool) languages() []string {
	langs := make([]string, 0, len(t.interpreters))
	for l := range t.interpreters {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

func (t *CodeTool) Descriptor() domain.CapabilityDescriptor {
	langs := strings.Join(t.languages(), ", ")
	return domain.CapabilityDescriptor{
		Name: "execute_code",
		Description: fmt.Sprintf("Execute a code snippet and return its combined stdout and stderr. "+
			"Supported languages: %s. Runs with a %s timeout.", langs, t.timeout),
		InputSchema: Schema(map[string]Param{
			"code":     {Type: "string", Description: "Source code to execute"},
			"language": {Type: "string", Description: "One of: " + langs + " (default python)"},
		}, "code"),
	}
}

func (t *CodeTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	code := ArgsString(args, "code")
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("code is required")
	}
	lang := strings.ToLower(strings.TrimSpace(ArgsString(args, "language")))
	if lang == "" {
		lang = "python"
	}
	interp, ok := t.interpreters[lang]
	if !ok {
		return nil, fmt.Errorf("unsupported language %q (supported: %s)", lang, strings.Join(t.languages(), ", "))
	}

	dir, err := os.MkdirTemp(t.tempDir, "toolpilot-exec-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}
	defer os.RemoveAll(dir)

	script := filepath.Join(dir, "snippet"+interp.Extension)
	if err := os.WriteFile(script, []byte(code), 0o600); err != nil {
		return nil, fmt.Errorf("write snippet: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmdArgs := append(append([]string(nil), interp.Args...), script)
	cmd := exec.CommandContext(runCtx, interp.Command, cmdArgs...)
	cmd.Dir = dir
	killProcessGroup(cmd)
	cmd.WaitDelay = killGracePeriod

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	runErr := cmd.Run()
	output := t.truncate(out.String())

	if runErr != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("execution timed out after %s", t.timeout)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("execution cancelled: %w", ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("exit status %d:\n%s", exitErr.ExitCode(), output)
		}
		return nil, fmt.Errorf("run %s: %w", interp.Command, runErr)
	}

	if output == "" {
		return "(no output)", nil
	}
	return output, nil
}

func (t *CodeTool) truncate(s string) string {
	if t.maxOutputBytes > 0 && len(s) > t.maxOutputBytes {
		return s[:t.maxOutputBytes] + "\n... (output truncated)"
	}
	return s
}

var _ Capability = (*CodeTool)(nil)
