package agent

import (
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"toolpilot/internal/domain"
)

// PromptBuilder renders the system instructions from whatever catalogue the transport
// discovered, so new capabilities need no change here.
type PromptBuilder struct {
	workspace         string
	systemPromptExtra string
	now               func() time.Time
}

// PromptConfig holds configuration for the prompt builder.
type PromptConfig struct {
	Workspace         string
	SystemPromptExtra string
	// Now is the clock used for the timestamp line; defaults to time.Now.
	Now func() time.Time
}

func NewPromptBuilder(cfg PromptConfig) *PromptBuilder {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	ws := cfg.Workspace
	if abs, err := filepath.Abs(ws); err == nil && ws != "" {
		ws = abs
	}
	return &PromptBuilder{
		workspace:         ws,
		systemPromptExtra: strings.TrimSpace(cfg.SystemPromptExtra),
		now:               cfg.Now,
	}
}

// BuildSystemPrompt lists every capability with its arguments.
func (p *PromptBuilder) BuildSystemPrompt(catalogue []domain.CapabilityDescriptor) string {
	var b strings.Builder

	fmt.Fprintf(&b, `# toolpilot

You are a helpful assistant that answers by calling tools when they help.

## Current Time
%s

## Runtime
%s %s
`, p.now().Format("2006-01-02 15:04 (Monday)"), runtime.GOOS, runtime.GOARCH)

	if p.workspace != "" {
		fmt.Fprintf(&b, "\n## Workspace\nFile tools only see paths inside %s. Use paths relative to it.\n", p.workspace)
	}

	b.WriteString("\n## Tools\n")
	if len(catalogue) == 0 {
		b.WriteString("No tools are available; answer from your own knowledge.\n")
	}
	for _, d := range catalogue {
		fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Description)
		for _, line := range describeArgs(d.InputSchema) {
			fmt.Fprintf(&b, "    - %s\n", line)
		}
	}

	b.WriteString(`
## RULES
1. When the user asks you to DO something a tool can do, call the tool instead of guessing.
2. A tool result marked as an error means the call failed. Read the message, then fix the arguments, try another tool, or explain the failure.
3. Call tools one step at a time when later calls depend on earlier results.
4. Do NOT output raw JSON tool calls in your response. Use the tool calling mechanism.
5. After tool execution, present results clearly and concisely.
6. Respond in the same language the user writes in.`)

	if p.systemPromptExtra != "" {
		b.WriteString("\n\n## Custom Instructions\n")
		b.WriteString(p.systemPromptExtra)
	}
	return b.String()
}

// describeArgs renders argument lines with required ones first, each group sorted.
func describeArgs(s domain.InputSchema) []string {
	required := make(map[string]bool, len(s.Required))
	for _, r := range s.Required {
		required[r] = true
	}
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if required[names[i]] != required[names[j]] {
			return required[names[i]]
		}
		return names[i] < names[j]
	})

	lines := make([]string, 0, len(names))
	for _, name := range names {
		prop := s.Properties[name]
		status := "optional"
		if required[name] {
			status = "required"
		}
		line := fmt.Sprintf("%s (%s, %s)", name, prop.Type, status)
		if prop.Description != "" {
			line += ": " + prop.Description
		}
		lines = append(lines, line)
	}
	return lines
}
