package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fsgate/internal/shared/config"
	"fsgate/internal/shared/logging"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Workspace.Directories = []string{t.TempDir()}
	cfg.Server.Port = 0
	return cfg
}

func TestBuildContainerRegistersFileTools(t *testing.T) {
	c, err := BuildContainer(testConfig(t), logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })

	names := make([]string, 0)
	for _, def := range c.Tools.Definitions() {
		names = append(names, def.Name)
	}
	assert.ElementsMatch(t, []string{
		"write_file", "replace", "list_directory", "read_file",
		"read_many_files", "glob", "search_file_content",
	}, names)
	assert.Nil(t, c.Remote)
	assert.Empty(t, c.Degraded.Names())
}

func TestBuildContainerServesHealth(t *testing.T) {
	c, err := BuildContainer(testConfig(t), logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })

	rec := httptest.NewRecorder()
	c.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Status  string `json:"status"`
			Version string `json:"version"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "ok", body.Data.Status)
	assert.Equal(t, Version, body.Data.Version)
}

func TestBuildContainerReadsThroughHTTP(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(cfg.Workspace.Directories[0], "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello\n"), 0o644))

	c, err := BuildContainer(cfg, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })

	srv := httptest.NewServer(c.Router)
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{"absolute_path": path})
	resp, err := http.Post(srv.URL+"/api/tools/read_file", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBuildContainerFailsOnMissingWorkspace(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workspace.Directories = []string{filepath.Join(t.TempDir(), "missing")}

	_, err := BuildContainer(cfg, logging.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workspace")
}

func TestBuildContainerDegradesOnTracingFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Observability.Tracing.Enabled = true
	cfg.Observability.Tracing.Exporter = "carrier-pigeon"

	c, err := BuildContainer(cfg, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })

	assert.Equal(t, []string{"tracing"}, c.Degraded.Names())

	rec := httptest.NewRecorder()
	c.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
}

func TestBuildContainerWiresRemote(t *testing.T) {
	cfg := testConfig(t)
	cfg.Remote.URL = "ws://127.0.0.1:1/approvals"

	c, err := BuildContainer(cfg, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })

	require.NotNil(t, c.Remote)
	assert.False(t, c.Remote.Connected())
}

func TestContainerRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Approval.PendingTTL = time.Minute
	cfg.Approval.SweepInterval = 10 * time.Millisecond

	c, err := BuildContainer(cfg, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("container did not stop")
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	c, err := BuildContainer(testConfig(t), logging.Nop())
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	server := &http.Server{Handler: c.Router, ReadHeaderTimeout: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, server, listener, c, logging.Nop()) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + listener.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
