package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"toolpilot/internal/domain"
	"toolpilot/internal/security"
)

const defaultMaxReadBytes = 1 << 20

// --- ReadFileTool ---

// ReadFileTool reads a file inside the confinement root.
type ReadFileTool struct {
	guard    *security.Guard
	maxBytes int64
}

func NewReadFileTool(guard *security.Guard) *ReadFileTool {
	return &ReadFileTool{guard: guard, maxBytes: defaultMaxReadBytes}
}

func (t *ReadFileTool) Descriptor() domain.CapabilityDescriptor {
	return domain.CapabilityDescriptor{
		Name:        "read_file",
		Description: "Read the contents of a text file in the workspace. Paths are relative to the workspace root.",
		InputSchema: Schema(map[string]Param{
			"path": {Type: "string", Description: "File path relative to the workspace"},
		}, "path"),
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	path, err := requireString(args, "path")
	if err != nil {
		return nil, err
	}
	resolved, err := t.guard.Resolve(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("read file: %s is a directory", path)
	}
	if info.Size() > t.maxBytes {
		return nil, fmt.Errorf("read file: %s is %d bytes, limit is %d", path, info.Size(), t.maxBytes)
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return string(data), nil
}

// --- WriteFileTool ---

// WriteFileTool writes content to a file, creating parent directories as needed.
type WriteFileTool struct {
	guard *security.Guard
}

func NewWriteFileTool(guard *security.Guard) *WriteFileTool {
	return &WriteFileTool{guard: guard}
}

func (t *WriteFileTool) Descriptor() domain.CapabilityDescriptor {
	return domain.CapabilityDescriptor{
		Name:        "write_file",
		Description: "Write content to a file in the workspace. Creates the file if it does not exist; overwrites it if it does.",
		InputSchema: Schema(map[string]Param{
			"path":    {Type: "string", Description: "File path relative to the workspace"},
			"content": {Type: "string", Description: "Content to write to the file"},
		}, "path", "content"),
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	path, err := requireString(args, "path")
	if err != nil {
		return nil, err
	}
	content := ArgsString(args, "content")
	resolved, err := t.guard.Resolve(path)
	if err != nil {
		return nil, err
	}
	if resolved == t.guard.Root() {
		return nil, fmt.Errorf("write file: %q is the workspace directory", path)
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("write file: %w", err)
	}
	return fmt.Sprintf("Wrote %d bytes to %s", len(content), t.guard.Rel(resolved)), nil
}

// --- ListDirTool ---

// ListDirTool lists the entries of a directory inside the confinement root.
type ListDirTool struct {
	guard *security.Guard
}

func NewListDirTool(guard *security.Guard) *ListDirTool {
	return &ListDirTool{guard: guard}
}

func (t *ListDirTool) Descriptor() domain.CapabilityDescriptor {
	return domain.CapabilityDescriptor{
		Name:        "list_dir",
		Description: "List files and directories at a workspace path. Use '.' or omit the path for the workspace root.",
		InputSchema: Schema(map[string]Param{
			"path": {Type: "string", Description: "Directory path relative to the workspace"},
		}),
	}
}

func (t *ListDirTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	path := ArgsString(args, "path")
	if path == "" {
		path = "."
	}
	resolved, err := t.guard.Resolve(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return nil, fmt.Errorf("list dir: %w", err)
	}
	if len(entries) == 0 {
		return "(empty directory)", nil
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			lines = append(lines, e.Name()+"/")
			continue
		}
		size := ""
		if info, err := e.Info(); err == nil {
			size = fmt.Sprintf(" %d", info.Size())
		}
		lines = append(lines, e.Name()+size)
	}
	return strings.Join(lines, "\n"), nil
}

var (
	_ Capability = (*ReadFileTool)(nil)
	_ Capability = (*WriteFileTool)(nil)
	_ Capability = (*ListDirTool)(nil)
)
