package config

import (
	"time"

	"fsgate/internal/shared/observability"
)

// EnvLookup resolves environment variables.
type EnvLookup func(string) (string, bool)

// Config is the resolved runtime configuration of the gateway.
type Config struct {
	Server        ServerConfig         `json:"server"`
	Workspace     WorkspaceConfig      `json:"workspace"`
	Approval      ApprovalConfig       `json:"approval"`
	Remote        RemoteConfig         `json:"remote"`
	Search        SearchConfig         `json:"search"`
	Logging       LoggingConfig        `json:"logging"`
	Observability observability.Config `json:"observability"`
}

// ServerConfig configures the HTTP and websocket listener.
type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	AllowedOrigins  []string      `json:"allowedOrigins,omitempty"`
	ReadTimeout     time.Duration `json:"readTimeout"`
	WriteTimeout    time.Duration `json:"writeTimeout"`
	ShutdownTimeout time.Duration `json:"shutdownTimeout"`
	SendBuffer      int           `json:"sendBuffer"`
	Debug           bool          `json:"debug"`
}

// WorkspaceConfig lists the directories file operations are confined to.
type WorkspaceConfig struct {
	Directories     []string `json:"directories"`
	ReadConcurrency int      `json:"readConcurrency"`
}

// ApprovalConfig controls pending approval lifetime. A zero PendingTTL keeps
// approvals until decided.
type ApprovalConfig struct {
	PendingTTL    time.Duration `json:"pendingTtl"`
	SweepInterval time.Duration `json:"sweepInterval"`
}

// RemoteConfig configures the optional cross-process approval link.
type RemoteConfig struct {
	URL                  string        `json:"url,omitempty"`
	MaxReconnectInterval time.Duration `json:"maxReconnectInterval"`
}

// Enabled reports whether a remote endpoint is configured.
func (r RemoteConfig) Enabled() bool {
	return r.URL != ""
}

// SearchConfig toggles grep strategies. The in-process scan is always on.
type SearchConfig struct {
	DisableGitGrep    bool `json:"disableGitGrep"`
	DisableSystemGrep bool `json:"disableSystemGrep"`
}

// LoggingConfig configures the process-wide log sink.
type LoggingConfig struct {
	Level  string `json:"level"`
	Dir    string `json:"dir,omitempty"`
	Stderr bool   `json:"stderr"`
}

// Overrides carries values from flags or the environment that take
// precedence over the file. Nil fields are left alone.
type Overrides struct {
	Host       *string
	Port       *int
	Workspace  []string
	RemoteURL  *string
	LogLevel   *string
	PendingTTL *time.Duration
	Debug      *bool
}
