package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ValidationIssue represents a single validation finding.
type ValidationIssue struct {
	ID      string
	Message string
	Hint    string
}

func (i ValidationIssue) Error() string {
	if i.Hint == "" {
		return fmt.Sprintf("%s: %s", i.ID, i.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", i.ID, i.Message, i.Hint)
}

// Validate reports every blocking problem in cfg at once.
func Validate(cfg Config) error {
	var issues []error
	add := func(id, message, hint string) {
		issues = append(issues, ValidationIssue{ID: id, Message: message, Hint: hint})
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		add("server-port", fmt.Sprintf("port %d out of range", cfg.Server.Port), "Use 0 for an ephemeral port or 1-65535.")
	}
	if cfg.Server.ShutdownTimeout < 0 {
		add("server-shutdown", "shutdown_timeout must not be negative", "")
	}
	if len(cfg.Workspace.Directories) == 0 {
		add("workspace", "at least one workspace directory is required", "Set workspace.directories or pass --workspace.")
	}
	if cfg.Approval.PendingTTL < 0 {
		add("approval-ttl", "pending_ttl must not be negative", "Use 0 to keep approvals until decided.")
	}
	if cfg.Approval.PendingTTL > 0 && cfg.Approval.SweepInterval > cfg.Approval.PendingTTL {
		add("approval-sweep", "sweep_interval must not exceed pending_ttl", "")
	}
	if cfg.Remote.URL != "" {
		u, err := url.Parse(cfg.Remote.URL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			add("remote-url", fmt.Sprintf("invalid remote url %q", cfg.Remote.URL), "Expected ws:// or wss:// with a host.")
		}
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("logging-level", fmt.Sprintf("unknown log level %q", cfg.Logging.Level), "Use debug, info, warn or error.")
	}
	if tracing := cfg.Observability.Tracing; tracing.Enabled {
		switch strings.ToLower(tracing.Exporter) {
		case "", "otlp", "zipkin":
		default:
			add("tracing-exporter", fmt.Sprintf("unsupported exporter %q", tracing.Exporter), "Use otlp or zipkin.")
		}
		if tracing.SampleRate < 0 || tracing.SampleRate > 1 {
			add("tracing-sample-rate", fmt.Sprintf("sample_rate %.2f out of range", tracing.SampleRate), "Use a value between 0 and 1.")
		}
	}
	return errors.Join(issues...)
}
