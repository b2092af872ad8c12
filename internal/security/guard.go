package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathEscapes is matched (via errors.Is) by every rejection from Guard.Resolve.
var ErrPathEscapes = errors.New("path escapes sandbox")

// EscapeError reports a rejected path. Path is the caller's original, unresolved input.
type EscapeError struct {
	Path string
	Root string
}

func (e *EscapeError) Error() string {
	return fmt.Sprintf("%s: %q is outside %q", ErrPathEscapes, e.Path, e.Root)
}

func (e *EscapeError) Is(target error) bool {
	return target == ErrPathEscapes
}

// Guard confines file-system capabilities to a single root directory.
// It is pure: it never consults the file system, so the root need not exist.
type Guard struct {
	root   string
	prefix string
}

// NewGuard canonicalizes root once; every Resolve call compares against that form.
func NewGuard(root string) (*Guard, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("sandbox root is empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve sandbox root: %w", err)
	}
	abs = filepath.Clean(abs)

	// "/" already ends in a separator; appending another would reject everything.
	prefix := abs
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return &Guard{root: abs, prefix: prefix}, nil
}

// Root returns the canonical confinement root.
func (g *Guard) Root() string { return g.root }

// Resolve maps userPath to an absolute path inside the root, or rejects it.
// Relative paths are joined to the root; absolute paths are checked as given.
func (g *Guard) Resolve(userPath string) (string, error) {
	p := strings.TrimSpace(userPath)
	if !filepath.IsAbs(p) {
		p = filepath.Join(g.root, p)
	}
	resolved := filepath.Clean(p)

	// The separator is part of the prefix so that /a/workspace2 never passes for /a/workspace.
	if resolved == g.root || strings.HasPrefix(resolved, g.prefix) {
		return resolved, nil
	}
	return "", &EscapeError{Path: userPath, Root: g.root}
}

// Rel returns the path of an already-resolved absolute path relative to the root,
// used to keep tool output free of host paths.
func (g *Guard) Rel(resolved string) string {
	rel, err := filepath.Rel(g.root, resolved)
	if err != nil {
		return resolved
	}
	return rel
}
