package fileops

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"fsgate/internal/infra/filesystem"
	"fsgate/internal/infra/tools/builtin/search"
	"fsgate/internal/infra/workspace"
	fserrors "fsgate/internal/shared/errors"
	"fsgate/internal/shared/logging"
)

const defaultReadConcurrency = 8

// ContentSearcher runs a content search in one directory.
type ContentSearcher interface {
	Search(ctx context.Context, req search.Request) (search.Outcome, error)
}

// Options wires an Engine's collaborators. Workspace is required; the rest
// fall back to host-backed defaults.
type Options struct {
	Workspace       workspace.Context
	FS              filesystem.Service
	Ignores         *workspace.IgnoreFilter
	Searcher        ContentSearcher
	Logger          logging.Logger
	Clock           func() time.Time
	ReadConcurrency int
}

// Engine implements the file operations exposed to agents. It holds no
// per-request state; one Engine serves every request for its workspace.
type Engine struct {
	workspace       workspace.Context
	fs              filesystem.Service
	ignores         *workspace.IgnoreFilter
	searcher        ContentSearcher
	logger          logging.Logger
	now             func() time.Time
	readConcurrency int
}

// NewEngine builds an Engine from opts.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Workspace == nil || len(opts.Workspace.Directories()) == 0 {
		return nil, fmt.Errorf("file operation engine requires a workspace")
	}
	logger := logging.OrNop(opts.Logger)
	e := &Engine{
		workspace:       opts.Workspace,
		fs:              opts.FS,
		ignores:         opts.Ignores,
		searcher:        opts.Searcher,
		logger:          logger,
		now:             opts.Clock,
		readConcurrency: opts.ReadConcurrency,
	}
	if e.fs == nil {
		e.fs = filesystem.NewLocal()
	}
	if e.ignores == nil {
		e.ignores = workspace.NewIgnoreFilter(0)
	}
	if e.searcher == nil {
		e.searcher = search.NewDefaultCascade(search.Options{Logger: logger})
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.readConcurrency <= 0 {
		e.readConcurrency = defaultReadConcurrency
	}
	return e, nil
}

// Workspace returns the workspace the engine is bound to.
func (e *Engine) Workspace() workspace.Context {
	return e.workspace
}

// resolvePath validates an absolute path parameter and checks it against the
// workspace on every call.
func (e *Engine) resolvePath(param, path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fserrors.Invalid("The '%s' parameter must be non-empty.", param)
	}
	if !filepath.IsAbs(trimmed) {
		return "", fserrors.Invalid("File path must be absolute, but was relative: %s. You must provide an absolute path.", trimmed)
	}
	clean := filepath.Clean(trimmed)
	if !e.workspace.IsPathWithinWorkspace(clean) {
		return "", e.outsideWorkspace(clean)
	}
	return clean, nil
}

func (e *Engine) outsideWorkspace(path string) error {
	return fserrors.New(
		fserrors.KindPathNotInWorkspace,
		"Path not in workspace: "+path,
		fmt.Sprintf("Path must be within one of the workspace directories: %s", strings.Join(e.workspace.Directories(), ", ")),
	)
}

// rootFor returns the workspace root containing path, falling back to the
// first root for paths that only resolve after creation.
func (e *Engine) rootFor(path string) string {
	if root, ok := workspace.RootFor(e.workspace, path); ok {
		return root
	}
	return e.workspace.Directories()[0]
}

func (e *Engine) displayPath(path string) string {
	root, ok := workspace.RootFor(e.workspace, path)
	if !ok {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}
