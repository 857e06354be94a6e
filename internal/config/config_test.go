package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
listen: "127.0.0.1:9000"
public_url: "https://nexus.example.org/"
log:
  level: debug
blobs:
  backend: s3
  s3:
    bucket: attachments
    region: eu-west-1
index:
  shards: 8
nats:
  url: nats://localhost:4222
  stream: NEXUS
`))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, "https://nexus.example.org", cfg.BaseURL())
	assert.Equal(t, "nexus.db", cfg.Database, "unset keys keep defaults")
	assert.Equal(t, BackendS3, cfg.Blobs.Backend)
	assert.Equal(t, "attachments", cfg.Blobs.S3.Bucket)
	assert.Equal(t, int64(100<<20), cfg.Blobs.MaxSize)
	assert.Equal(t, 8, cfg.Index.Shards)
	assert.Equal(t, "nexus.revisions", cfg.NATS.Subject)
	assert.Equal(t, "NEXUS", cfg.NATS.Stream)
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown key", "listn: x", "field listn not found"},
		{"bad backend", "blobs: {backend: ftp}", "blobs.backend"},
		{"s3 without bucket", "blobs: {backend: s3}", "blobs.s3.bucket"},
		{"bad level", "log: {level: loud}", "log.level"},
		{"relative url", "public_url: /nexus", "public_url"},
		{"no shards", "index: {shards: 0}", "index.shards"},
		{"nats without subject", "nats: {url: 'nats://x', subject: ''}", "nats.subject"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nexus.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: /var/lib/nexus.db\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/nexus.db", cfg.Database)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)
}
