package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Metadata describes where the configuration came from.
type Metadata struct {
	Path       string
	FileLoaded bool
}

// Load merges defaults, the YAML file and overrides, then validates the
// result.
func Load(opts ...Option) (Config, Metadata, error) {
	options := newLoadOptions(opts)
	cfg := Default()

	file, path, err := loadFileConfig(options)
	meta := Metadata{Path: path}
	if err != nil {
		return Config{}, meta, err
	}
	meta.FileLoaded = file != (FileConfig{})

	if err := applyFileConfig(&cfg, file); err != nil {
		return Config{}, meta, fmt.Errorf("config %s: %w", path, err)
	}
	applyOverrides(&cfg, options.overrides)

	if err := normalize(&cfg, options); err != nil {
		return Config{}, meta, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, meta, err
	}
	return cfg, meta, nil
}

func applyFileConfig(cfg *Config, file FileConfig) error {
	var errs []error
	parseInt := func(field, raw string, into *int) {
		if raw == "" {
			return
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid integer %q", field, raw))
			return
		}
		*into = v
	}
	parseDuration := func(field, raw string, into *time.Duration) {
		if raw == "" {
			return
		}
		v, err := time.ParseDuration(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", field, raw))
			return
		}
		*into = v
	}
	setBool := func(src *bool, into *bool) {
		if src != nil {
			*into = *src
		}
	}
	setString := func(raw string, into *string) {
		if raw != "" {
			*into = raw
		}
	}

	if s := file.Server; s != nil {
		setString(s.Host, &cfg.Server.Host)
		parseInt("server.port", s.Port, &cfg.Server.Port)
		if len(s.AllowedOrigins) > 0 {
			cfg.Server.AllowedOrigins = s.AllowedOrigins
		}
		parseDuration("server.read_timeout", s.ReadTimeout, &cfg.Server.ReadTimeout)
		parseDuration("server.write_timeout", s.WriteTimeout, &cfg.Server.WriteTimeout)
		parseDuration("server.shutdown_timeout", s.ShutdownTimeout, &cfg.Server.ShutdownTimeout)
		parseInt("server.send_buffer", s.SendBuffer, &cfg.Server.SendBuffer)
		setBool(s.Debug, &cfg.Server.Debug)
	}
	if w := file.Workspace; w != nil {
		if len(w.Directories) > 0 {
			cfg.Workspace.Directories = w.Directories
		}
		parseInt("workspace.read_concurrency", w.ReadConcurrency, &cfg.Workspace.ReadConcurrency)
	}
	if a := file.Approval; a != nil {
		parseDuration("approval.pending_ttl", a.PendingTTL, &cfg.Approval.PendingTTL)
		parseDuration("approval.sweep_interval", a.SweepInterval, &cfg.Approval.SweepInterval)
	}
	if r := file.Remote; r != nil {
		setString(r.URL, &cfg.Remote.URL)
		parseDuration("remote.reconnect_max_interval", r.MaxReconnectInterval, &cfg.Remote.MaxReconnectInterval)
	}
	if s := file.Search; s != nil {
		setBool(s.DisableGitGrep, &cfg.Search.DisableGitGrep)
		setBool(s.DisableSystemGrep, &cfg.Search.DisableSystemGrep)
	}
	if l := file.Logging; l != nil {
		setString(l.Level, &cfg.Logging.Level)
		setString(l.Dir, &cfg.Logging.Dir)
		setBool(l.Stderr, &cfg.Logging.Stderr)
	}
	if o := file.Observability; o != nil {
		if o.Metrics != nil {
			setBool(o.Metrics.Enabled, &cfg.Observability.Metrics.Enabled)
		}
		if t := o.Tracing; t != nil {
			tracing := &cfg.Observability.Tracing
			setBool(t.Enabled, &tracing.Enabled)
			setString(t.Exporter, &tracing.Exporter)
			setString(t.OTLPEndpoint, &tracing.OTLPEndpoint)
			setString(t.ZipkinEndpoint, &tracing.ZipkinEndpoint)
			setString(t.ServiceName, &tracing.ServiceName)
			setString(t.ServiceVersion, &tracing.ServiceVersion)
			if t.SampleRate != "" {
				v, err := strconv.ParseFloat(t.SampleRate, 64)
				if err != nil {
					errs = append(errs, fmt.Errorf("observability.tracing.sample_rate: invalid number %q", t.SampleRate))
				} else {
					tracing.SampleRate = v
				}
			}
		}
	}
	return errors.Join(errs...)
}

func applyOverrides(cfg *Config, o Overrides) {
	if o.Host != nil {
		cfg.Server.Host = *o.Host
	}
	if o.Port != nil {
		cfg.Server.Port = *o.Port
	}
	if len(o.Workspace) > 0 {
		cfg.Workspace.Directories = append([]string(nil), o.Workspace...)
	}
	if o.RemoteURL != nil {
		cfg.Remote.URL = *o.RemoteURL
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
	if o.PendingTTL != nil {
		cfg.Approval.PendingTTL = *o.PendingTTL
	}
	if o.Debug != nil {
		cfg.Server.Debug = *o.Debug
	}
}

// normalize fills derived values: the default workspace, absolute workspace
// paths and the sweep interval.
func normalize(cfg *Config, options loadOptions) error {
	cfg.Remote.URL = strings.TrimSpace(cfg.Remote.URL)
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))

	if len(cfg.Workspace.Directories) == 0 {
		wd, err := options.workingDir()
		if err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
		cfg.Workspace.Directories = []string{wd}
	}
	dirs := make([]string, 0, len(cfg.Workspace.Directories))
	for _, dir := range cfg.Workspace.Directories {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			continue
		}
		if !filepath.IsAbs(dir) {
			wd, err := options.workingDir()
			if err != nil {
				return fmt.Errorf("resolve working directory: %w", err)
			}
			dir = filepath.Join(wd, dir)
		}
		dirs = append(dirs, filepath.Clean(dir))
	}
	cfg.Workspace.Directories = dirs

	if cfg.Approval.PendingTTL > 0 && cfg.Approval.SweepInterval <= 0 {
		cfg.Approval.SweepInterval = cfg.Approval.PendingTTL / 2
	}
	if cfg.Workspace.ReadConcurrency <= 0 {
		cfg.Workspace.ReadConcurrency = DefaultReadConcurrency
	}
	if cfg.Server.SendBuffer <= 0 {
		cfg.Server.SendBuffer = DefaultSendBuffer
	}
	return nil
}
