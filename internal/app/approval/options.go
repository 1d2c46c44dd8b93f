package approval

import (
	"time"

	"fsgate/internal/infra/workspace"
	"fsgate/internal/shared/logging"
	"fsgate/internal/shared/observability"
)

// Option configures optional dependencies for the coordinator.
type Option func(*Coordinator)

// WithLogger overrides the default coordinator logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *Coordinator) {
		if !logging.IsNil(logger) {
			c.logger = logger
		}
	}
}

// WithClock overrides the wall clock used for timestamps and expiry.
func WithClock(clock func() time.Time) Option {
	return func(c *Coordinator) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithPreviewer enables diff previews in confirmation requests.
func WithPreviewer(previewer Previewer) Option {
	return func(c *Coordinator) {
		if previewer != nil {
			c.previewer = previewer
		}
	}
}

// WithRemote mirrors approval traffic to an out-of-process transport.
func WithRemote(remote RemoteTransport) Option {
	return func(c *Coordinator) {
		if remote != nil {
			c.remote = remote
		}
	}
}

// WithWorkspace rejects gated requests outside the workspace before a
// confirmation is ever sent.
func WithWorkspace(ws workspace.Context) Option {
	return func(c *Coordinator) {
		if ws != nil {
			c.workspace = ws
		}
	}
}

// WithMetrics records approval and operation metrics.
func WithMetrics(metrics *observability.MetricsCollector) Option {
	return func(c *Coordinator) {
		c.metrics = metrics
	}
}

// WithTracer wraps handlers in spans.
func WithTracer(tracer *observability.TracerProvider) Option {
	return func(c *Coordinator) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithPendingTTL expires approvals that stay unanswered longer than ttl.
// Expired entries are swept every interval by Run. A zero ttl keeps pending
// approvals until they are answered.
func WithPendingTTL(ttl, interval time.Duration) Option {
	return func(c *Coordinator) {
		if ttl <= 0 {
			return
		}
		c.pendingTTL = ttl
		if interval <= 0 {
			interval = ttl / 2
		}
		c.sweepInterval = interval
	}
}
