package tools

import (
	"context"
	"time"

	tools "fsgate/internal/domain/tools"
	fserrors "fsgate/internal/shared/errors"
	"fsgate/internal/shared/observability"
)

// SLAExecutor wraps an Executor and records execution metrics via an
// SLACollector. When the collector is nil the wrapper is a transparent
// pass-through.
type SLAExecutor struct {
	delegate  tools.Executor
	collector *SLACollector
}

// NewSLAExecutor returns a new SLAExecutor.
func NewSLAExecutor(delegate tools.Executor, collector *SLACollector) *SLAExecutor {
	return &SLAExecutor{
		delegate:  delegate,
		collector: collector,
	}
}

// Execute measures the full execution time of the delegate, gate refusals
// included, and records the outcome.
func (e *SLAExecutor) Execute(ctx context.Context, args map[string]any) tools.Result {
	if e.collector == nil {
		return e.delegate.Execute(ctx, args)
	}

	start := time.Now()
	result := e.delegate.Execute(ctx, args)
	e.collector.RecordExecution(e.delegate.Definition().Name, time.Since(start), resultError(result))
	return result
}

func (e *SLAExecutor) Definition() tools.Definition {
	return e.delegate.Definition()
}

// Delegate returns the wrapped executor.
func (e *SLAExecutor) Delegate() tools.Executor {
	return e.delegate
}

func resultError(result tools.Result) error {
	if result.Error == nil {
		return nil
	}
	return fserrors.New(result.Error.Type, result.Error.Message, result.Error.Message)
}

// TracingExecutor opens a span around each call.
type TracingExecutor struct {
	delegate tools.Executor
	tracer   *observability.TracerProvider
}

// NewTracingExecutor wraps delegate. A nil tracer produces no-op spans.
func NewTracingExecutor(delegate tools.Executor, tracer *observability.TracerProvider) *TracingExecutor {
	return &TracingExecutor{delegate: delegate, tracer: tracer}
}

func (e *TracingExecutor) Execute(ctx context.Context, args map[string]any) tools.Result {
	name := e.delegate.Definition().Name
	attrs := observability.ToolAttrs(name)
	ctx, span := e.tracer.StartSpan(ctx, observability.SpanToolExecute, attrs...)
	result := e.delegate.Execute(ctx, args)
	observability.EndSpan(span, resultError(result))
	return result
}

func (e *TracingExecutor) Definition() tools.Definition {
	return e.delegate.Definition()
}

// Delegate returns the wrapped executor.
func (e *TracingExecutor) Delegate() tools.Executor {
	return e.delegate
}

var (
	_ tools.Executor = (*SLAExecutor)(nil)
	_ tools.Executor = (*TracingExecutor)(nil)
)
