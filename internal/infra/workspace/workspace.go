package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Context exposes the configured workspace roots. Containment is checked on
// every call, never cached, since it is the only authorization besides the
// approval gate.
type Context interface {
	Directories() []string
	IsPathWithinWorkspace(path string) bool
}

// Workspace is a fixed, ordered set of absolute root directories.
type Workspace struct {
	roots []string
}

// New validates and normalises the given roots. Each root must be an
// existing directory.
func New(roots ...string) (*Workspace, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("workspace requires at least one root directory")
	}
	normalized := make([]string, 0, len(roots))
	seen := make(map[string]struct{}, len(roots))
	for _, root := range roots {
		trimmed := strings.TrimSpace(root)
		if trimmed == "" {
			continue
		}
		abs, err := filepath.Abs(filepath.Clean(trimmed))
		if err != nil {
			return nil, fmt.Errorf("resolve workspace root %q: %w", root, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("workspace root %q: %w", abs, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("workspace root %q is not a directory", abs)
		}
		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			abs = resolved
		}
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}
		normalized = append(normalized, abs)
	}
	if len(normalized) == 0 {
		return nil, fmt.Errorf("workspace requires at least one root directory")
	}
	return &Workspace{roots: normalized}, nil
}

// Directories returns a copy of the roots in configuration order.
func (w *Workspace) Directories() []string {
	out := make([]string, len(w.roots))
	copy(out, w.roots)
	return out
}

// IsPathWithinWorkspace reports whether path resolves under one of the roots.
func (w *Workspace) IsPathWithinWorkspace(path string) bool {
	_, ok := w.RootFor(path)
	return ok
}

// RootFor returns the root that contains path.
func (w *Workspace) RootFor(path string) (string, bool) {
	return RootFor(w, path)
}

// RootFor finds the workspace root containing path for any Context.
func RootFor(ws Context, path string) (string, bool) {
	if ws == nil || !filepath.IsAbs(path) {
		return "", false
	}
	resolved := resolveExisting(filepath.Clean(path))
	for _, root := range ws.Directories() {
		if PathWithinBase(root, resolved) {
			return root, true
		}
	}
	return "", false
}

// resolveExisting follows symlinks for the longest existing prefix of path so
// links pointing outside a root are not treated as contained.
func resolveExisting(path string) string {
	current := path
	var suffix []string
	for {
		if resolved, err := filepath.EvalSymlinks(current); err == nil {
			parts := append([]string{resolved}, suffix...)
			return filepath.Join(parts...)
		}
		parent := filepath.Dir(current)
		if parent == current {
			return path
		}
		suffix = append([]string{filepath.Base(current)}, suffix...)
		current = parent
	}
}

// PathWithinBase reports whether target is base or below it.
func PathWithinBase(base, target string) bool {
	baseClean, err := filepath.Abs(filepath.Clean(base))
	if err != nil {
		return false
	}
	targetClean, err := filepath.Abs(filepath.Clean(target))
	if err != nil {
		return false
	}

	rel, err := filepath.Rel(baseClean, targetClean)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
		return false
	}
	return true
}
