package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	tools "fsgate/internal/domain/tools"
	fserrors "fsgate/internal/shared/errors"
)

type approvedKey struct{}

// WithApproved marks ctx as carrying an approval decision for the mutation it
// is about to run. Only the approval coordinator sets it.
func WithApproved(ctx context.Context) context.Context {
	return context.WithValue(ctx, approvedKey{}, true)
}

// IsApproved reports whether ctx was marked by WithApproved.
func IsApproved(ctx context.Context) bool {
	approved, _ := ctx.Value(approvedKey{}).(bool)
	return approved
}

// MutationGate is an Executor decorator that refuses to run mutating tools
// unless the context carries an approval. Read-only tools pass through.
type MutationGate struct {
	delegate tools.Executor
}

// NewMutationGate wraps delegate.
func NewMutationGate(delegate tools.Executor) *MutationGate {
	return &MutationGate{delegate: delegate}
}

// Delegate returns the inner executor for unwrapping.
func (g *MutationGate) Delegate() tools.Executor {
	return g.delegate
}

func (g *MutationGate) Definition() tools.Definition {
	return g.delegate.Definition()
}

func (g *MutationGate) Execute(ctx context.Context, args map[string]any) tools.Result {
	if g.delegate == nil {
		return tools.ErrorResult(fmt.Errorf("tool executor missing"))
	}
	def := g.delegate.Definition()
	if !def.Mutating || IsApproved(ctx) {
		return g.delegate.Execute(ctx, args)
	}
	return tools.ErrorResult(fserrors.New(
		fserrors.KindApprovalRejected,
		fmt.Sprintf("%s requires approval", def.Name),
		buildApprovalSummary(def, args),
	))
}

func extractFilePath(args map[string]any) string {
	if args == nil {
		return ""
	}
	for _, key := range []string{"file_path", "absolute_path", "path"} {
		if val, ok := args[key].(string); ok {
			return strings.TrimSpace(val)
		}
	}
	return ""
}

func buildApprovalSummary(def tools.Definition, args map[string]any) string {
	parts := []string{fmt.Sprintf("Approval required for %s", def.Name)}
	if filePath := extractFilePath(args); filePath != "" {
		parts = append(parts, fmt.Sprintf("path=%s", filePath))
	}
	if keys := extractArgumentKeys(args); len(keys) > 0 {
		parts = append(parts, fmt.Sprintf("args=%s", strings.Join(keys, ", ")))
	}
	return strings.Join(parts, "; ")
}

func extractArgumentKeys(args map[string]any) []string {
	if len(args) == 0 {
		return nil
	}
	keys := make([]string, 0, len(args))
	for key := range args {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)
	if len(keys) > 8 {
		keys = append(keys[:8], "...")
	}
	return keys
}

var _ tools.Executor = (*MutationGate)(nil)
