package config

import (
	"time"

	"fsgate/internal/shared/observability"
)

const (
	DefaultHost                 = "127.0.0.1"
	DefaultPort                 = 8765
	DefaultReadTimeout          = 30 * time.Second
	DefaultWriteTimeout         = 30 * time.Second
	DefaultShutdownTimeout      = 10 * time.Second
	DefaultSendBuffer           = 64
	DefaultReadConcurrency      = 8
	DefaultMaxReconnectInterval = 30 * time.Second
	DefaultLogLevel             = "info"
)

// Default returns the configuration used when no file is present. The
// workspace defaults to the current directory at load time.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
			SendBuffer:      DefaultSendBuffer,
		},
		Workspace: WorkspaceConfig{
			ReadConcurrency: DefaultReadConcurrency,
		},
		Remote: RemoteConfig{
			MaxReconnectInterval: DefaultMaxReconnectInterval,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Stderr: true,
		},
		Observability: observability.DefaultConfig(),
	}
}
