package tools

import (
	"context"
	"fmt"
	"sync"

	tools "fsgate/internal/domain/tools"
	fserrors "fsgate/internal/shared/errors"
	"fsgate/internal/shared/logging"
	"fsgate/internal/shared/observability"
)

// RegistryOptions configures the decorators applied to registered tools.
type RegistryOptions struct {
	Collector *SLACollector
	Tracer    *observability.TracerProvider
	Logger    logging.Logger
}

// Registry holds the tool declarations exposed to agents. Every registered
// tool is wrapped as SLA(MutationGate(Tracing(tool))).
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]tools.Executor
	order  []string
	opts   RegistryOptions
	logger logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(opts RegistryOptions) *Registry {
	return &Registry{
		tools:  make(map[string]tools.Executor),
		opts:   opts,
		logger: logging.OrNop(opts.Logger),
	}
}

// Register adds executors. Names must be unique.
func (r *Registry) Register(executors ...tools.Executor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, exec := range executors {
		if exec == nil {
			continue
		}
		name := exec.Definition().Name
		if name == "" {
			return fmt.Errorf("tool has no name")
		}
		if _, exists := r.tools[name]; exists {
			return fmt.Errorf("tool already registered: %s", name)
		}
		wrapped := NewTracingExecutor(exec, r.opts.Tracer)
		r.tools[name] = NewSLAExecutor(NewMutationGate(wrapped), r.opts.Collector)
		r.order = append(r.order, name)
		r.logger.Debug("registered tool %s (mutating=%t)", name, exec.Definition().Mutating)
	}
	return nil
}

// Get returns the decorated executor for name.
func (r *Registry) Get(name string) (tools.Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.tools[name]
	return exec, ok
}

// Definitions lists declarations in registration order.
func (r *Registry) Definitions() []tools.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]tools.Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Execute runs the named tool. Unknown names yield an invalid-params
// envelope.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) tools.Result {
	exec, ok := r.Get(name)
	if !ok {
		return tools.ErrorResult(fserrors.Invalid("Unknown tool: %s", name))
	}
	if err := ctx.Err(); err != nil {
		return tools.ErrorResult(err)
	}
	return exec.Execute(ctx, args)
}

// SLA exposes the collector snapshot, if metrics are enabled.
func (r *Registry) SLA() []ToolSLA {
	return r.opts.Collector.Snapshot()
}
