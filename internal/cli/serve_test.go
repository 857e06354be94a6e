package cli

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nexus/internal/config"
)

func TestServeOptions_Apply(t *testing.T) {
	opts := &ServeOptions{RootOptions: &RootOptions{}, Listen: ":9090", Database: "other.db"}

	cfg, err := opts.apply(config.Default())
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "other.db", cfg.Database)
	assert.Equal(t, "http://localhost:8080", cfg.PublicURL)

	opts = &ServeOptions{RootOptions: &RootOptions{}, PublicURL: "not a url"}
	_, err = opts.apply(config.Default())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestServeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	serve, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	for _, name := range []string{"listen", "public-url", "db", "blob-dir"} {
		assert.NotNil(t, serve.Flags().Lookup(name), name)
	}
}

func TestNewApp(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Database = filepath.Join(dir, "nexus.db")
	cfg.Blobs.Dir = filepath.Join(dir, "blobs")
	cfg.PublicURL = "http://nexus.test/"

	a, err := newApp(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer a.Close()

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/v0/organizations/bbp", strings.NewReader(`{"description": "x"}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Contains(t, string(body), `"@id":"http://nexus.test/v0/organizations/bbp"`)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "nexus_store_writes_total")
}

func TestNewApp_BadBlobDir(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Database = filepath.Join(dir, "nexus.db")
	// A file where the blob directory should be.
	cfg.Blobs.Dir = cfg.Database

	_, err := newApp(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
