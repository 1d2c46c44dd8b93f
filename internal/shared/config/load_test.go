package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(values map[string]string) EnvLookup {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func fixedWD(dir string) func() (string, error) {
	return func() (string, error) { return dir, nil }
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	home := t.TempDir()
	cfg, meta, err := Load(
		WithEnv(envMap(nil)),
		WithHomeDir(func() (string, error) { return home, nil }),
		WithWorkingDir(fixedWD("/srv/project")),
	)
	require.NoError(t, err)
	assert.False(t, meta.FileLoaded)
	assert.Equal(t, filepath.Join(home, ".fsgate", "config.yaml"), meta.Path)

	assert.Equal(t, DefaultHost, cfg.Server.Host)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, []string{"/srv/project"}, cfg.Workspace.Directories)
	assert.Zero(t, cfg.Approval.PendingTTL)
	assert.Zero(t, cfg.Approval.SweepInterval)
	assert.False(t, cfg.Remote.Enabled())
	assert.True(t, cfg.Observability.Metrics.Enabled)
	assert.False(t, cfg.Observability.Tracing.Enabled)
}

func TestLoadFileWithEnvInterpolation(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 0.0.0.0
  port: ${FSGATE_TEST_PORT}
  allowed_origins: ["${ORIGIN}", "${MISSING}"]
  shutdown_timeout: 5s
workspace:
  directories: ["${PROJECT_DIR:-/fallback}", "relative/dir"]
  read_concurrency: 4
approval:
  pending_ttl: 10m
remote:
  url: ws://${REMOTE_HOST}/approvals
search:
  disable_system_grep: true
logging:
  level: DEBUG
observability:
  tracing:
    enabled: true
    exporter: zipkin
    sample_rate: 0.25
`)
	cfg, meta, err := Load(
		WithConfigPath(path),
		WithEnv(envMap(map[string]string{
			"FSGATE_TEST_PORT": "9001",
			"ORIGIN":           "http://localhost:3000",
			"REMOTE_HOST":      "approvals.internal:7000",
		})),
		WithWorkingDir(fixedWD("/work")),
	)
	require.NoError(t, err)
	assert.True(t, meta.FileLoaded)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, []string{"/fallback", "/work/relative/dir"}, cfg.Workspace.Directories)
	assert.Equal(t, 4, cfg.Workspace.ReadConcurrency)
	assert.Equal(t, 10*time.Minute, cfg.Approval.PendingTTL)
	assert.Equal(t, 5*time.Minute, cfg.Approval.SweepInterval)
	assert.Equal(t, "ws://approvals.internal:7000/approvals", cfg.Remote.URL)
	assert.True(t, cfg.Search.DisableSystemGrep)
	assert.False(t, cfg.Search.DisableGitGrep)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "zipkin", cfg.Observability.Tracing.Exporter)
	assert.InDelta(t, 0.25, cfg.Observability.Tracing.SampleRate, 1e-9)
}

func TestOverridesWinOverFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\nlogging:\n  level: warn\n")
	port := 7777
	level := "error"
	ttl := time.Minute
	cfg, _, err := Load(
		WithConfigPath(path),
		WithEnv(envMap(nil)),
		WithWorkingDir(fixedWD("/work")),
		WithOverrides(Overrides{Port: &port, LogLevel: &level, PendingTTL: &ttl, Workspace: []string{"/override"}}),
	)
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Equal(t, time.Minute, cfg.Approval.PendingTTL)
	assert.Equal(t, 30*time.Second, cfg.Approval.SweepInterval)
	assert.Equal(t, []string{"/override"}, cfg.Workspace.Directories)
}

func TestExplicitMissingFileIsAnError(t *testing.T) {
	_, _, err := Load(WithConfigPath(filepath.Join(t.TempDir(), "nope.yaml")), WithWorkingDir(fixedWD("/work")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestEnvPathIsUsedAndEmptyFileIsFine(t *testing.T) {
	path := writeConfig(t, "   \n")
	_, meta, err := Load(
		WithEnv(envMap(map[string]string{"FSGATE_CONFIG_PATH": path})),
		WithWorkingDir(fixedWD("/work")),
	)
	require.NoError(t, err)
	assert.Equal(t, path, meta.Path)
	assert.False(t, meta.FileLoaded)
}

func TestLoadReportsParseErrors(t *testing.T) {
	path := writeConfig(t, "server:\n  port: eighty\napproval:\n  pending_ttl: soon\n")
	_, _, err := Load(WithConfigPath(path), WithEnv(envMap(nil)), WithWorkingDir(fixedWD("/work")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "approval.pending_ttl")

	path = writeConfig(t, "server: [unclosed")
	_, _, err = Load(WithConfigPath(path), WithWorkingDir(fixedWD("/work")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config file")
}

func TestValidateCollectsIssues(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 70000
	cfg.Approval.PendingTTL = time.Minute
	cfg.Approval.SweepInterval = time.Hour
	cfg.Remote.URL = "http://not-a-websocket"
	cfg.Logging.Level = "chatty"
	cfg.Observability.Tracing.Enabled = true
	cfg.Observability.Tracing.Exporter = "jaeger"

	err := Validate(cfg)
	require.Error(t, err)
	for _, id := range []string{"server-port", "workspace", "approval-sweep", "remote-url", "logging-level", "tracing-exporter"} {
		assert.Contains(t, err.Error(), id)
	}

	var issue ValidationIssue
	assert.True(t, errors.As(err, &issue))
}

func TestExpandEnvValue(t *testing.T) {
	lookup := envMap(map[string]string{"A": "alpha", "EMPTY": ""})
	assert.Equal(t, "alpha", expandEnvValue(lookup, "${A}"))
	assert.Equal(t, "alpha-x", expandEnvValue(lookup, "$A-x"))
	assert.Equal(t, "def", expandEnvValue(lookup, "${EMPTY:-def}"))
	assert.Equal(t, "", expandEnvValue(lookup, "${NOPE}"))
	assert.Equal(t, "plain", expandEnvValue(lookup, "  plain  "))
}

func TestResolveConfigPathFallback(t *testing.T) {
	path, source := ResolveConfigPath(envMap(nil), func() (string, error) { return "", errors.New("no home") })
	assert.Equal(t, filepath.Join("configs", "config.yaml"), path)
	assert.Equal(t, "fallback", source)
}
