package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Option customizes loading.
type Option func(*loadOptions)

type loadOptions struct {
	configPath string
	envLookup  EnvLookup
	readFile   func(string) ([]byte, error)
	homeDir    func() (string, error)
	workingDir func() (string, error)
	overrides  Overrides
}

// WithConfigPath pins the file to load.
func WithConfigPath(path string) Option {
	return func(o *loadOptions) { o.configPath = path }
}

// WithEnv replaces the environment lookup used for ${VAR} expansion.
func WithEnv(lookup EnvLookup) Option {
	return func(o *loadOptions) {
		if lookup != nil {
			o.envLookup = lookup
		}
	}
}

// WithFileReader replaces os.ReadFile.
func WithFileReader(read func(string) ([]byte, error)) Option {
	return func(o *loadOptions) {
		if read != nil {
			o.readFile = read
		}
	}
}

// WithHomeDir replaces os.UserHomeDir.
func WithHomeDir(home func() (string, error)) Option {
	return func(o *loadOptions) { o.homeDir = home }
}

// WithWorkingDir replaces os.Getwd for the default workspace.
func WithWorkingDir(wd func() (string, error)) Option {
	return func(o *loadOptions) {
		if wd != nil {
			o.workingDir = wd
		}
	}
}

// WithOverrides applies flag and environment values on top of the file.
func WithOverrides(overrides Overrides) Option {
	return func(o *loadOptions) { o.overrides = overrides }
}

func newLoadOptions(opts []Option) loadOptions {
	options := loadOptions{
		envLookup:  DefaultEnvLookup,
		readFile:   os.ReadFile,
		homeDir:    os.UserHomeDir,
		workingDir: os.Getwd,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// LoadFileConfig loads the YAML config file and returns all sections with env
// interpolation applied. A missing file yields an empty config.
func LoadFileConfig(opts ...Option) (FileConfig, string, error) {
	return loadFileConfig(newLoadOptions(opts))
}

func loadFileConfig(options loadOptions) (FileConfig, string, error) {
	configPath := strings.TrimSpace(options.configPath)
	explicit := configPath != ""
	if configPath == "" {
		configPath, _ = ResolveConfigPath(options.envLookup, options.homeDir)
	}
	if configPath == "" {
		return FileConfig{}, "", nil
	}

	data, err := options.readFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return FileConfig{}, configPath, nil
		}
		return FileConfig{}, configPath, fmt.Errorf("read config file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return FileConfig{}, configPath, nil
	}

	var parsed FileConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return FileConfig{}, configPath, fmt.Errorf("parse config file: %w", err)
	}

	return expandFileConfigEnv(options.envLookup, parsed), configPath, nil
}

func expandFileConfigEnv(lookup EnvLookup, parsed FileConfig) FileConfig {
	if s := parsed.Server; s != nil {
		s.Host = expandEnvValue(lookup, s.Host)
		s.Port = expandEnvValue(lookup, s.Port)
		s.AllowedOrigins = expandEnvList(lookup, s.AllowedOrigins)
		s.ReadTimeout = expandEnvValue(lookup, s.ReadTimeout)
		s.WriteTimeout = expandEnvValue(lookup, s.WriteTimeout)
		s.ShutdownTimeout = expandEnvValue(lookup, s.ShutdownTimeout)
		s.SendBuffer = expandEnvValue(lookup, s.SendBuffer)
	}
	if w := parsed.Workspace; w != nil {
		w.Directories = expandEnvList(lookup, w.Directories)
		w.ReadConcurrency = expandEnvValue(lookup, w.ReadConcurrency)
	}
	if a := parsed.Approval; a != nil {
		a.PendingTTL = expandEnvValue(lookup, a.PendingTTL)
		a.SweepInterval = expandEnvValue(lookup, a.SweepInterval)
	}
	if r := parsed.Remote; r != nil {
		r.URL = expandEnvValue(lookup, r.URL)
		r.MaxReconnectInterval = expandEnvValue(lookup, r.MaxReconnectInterval)
	}
	if l := parsed.Logging; l != nil {
		l.Level = expandEnvValue(lookup, l.Level)
		l.Dir = expandEnvValue(lookup, l.Dir)
	}
	if o := parsed.Observability; o != nil && o.Tracing != nil {
		t := o.Tracing
		t.Exporter = expandEnvValue(lookup, t.Exporter)
		t.OTLPEndpoint = expandEnvValue(lookup, t.OTLPEndpoint)
		t.ZipkinEndpoint = expandEnvValue(lookup, t.ZipkinEndpoint)
		t.SampleRate = expandEnvValue(lookup, t.SampleRate)
		t.ServiceName = expandEnvValue(lookup, t.ServiceName)
		t.ServiceVersion = expandEnvValue(lookup, t.ServiceVersion)
	}
	return parsed
}

// expandEnvValue replaces $VAR, ${VAR} and ${VAR:-fallback} references.
// Unset variables expand to the fallback or the empty string.
func expandEnvValue(lookup EnvLookup, value string) string {
	if !strings.Contains(value, "$") {
		return strings.TrimSpace(value)
	}
	if lookup == nil {
		lookup = DefaultEnvLookup
	}
	expanded := os.Expand(value, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if v, ok := lookup(name); ok && v != "" {
			return v
		}
		if hasFallback {
			return fallback
		}
		return ""
	})
	return strings.TrimSpace(expanded)
}

func expandEnvList(lookup EnvLookup, values []string) []string {
	if len(values) == 0 {
		return values
	}
	out := make([]string, 0, len(values))
	for _, value := range values {
		if expanded := expandEnvValue(lookup, value); expanded != "" {
			out = append(out, expanded)
		}
	}
	return out
}
