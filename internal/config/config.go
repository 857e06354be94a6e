// Package config loads the server configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Blob backends.
const (
	BackendFS = "fs"
	BackendS3 = "s3"
)

// Config is the full server configuration.
type Config struct {
	Listen    string  `yaml:"listen"`
	PublicURL string  `yaml:"public_url"`
	Database  string  `yaml:"database"`
	Log       Log     `yaml:"log"`
	Blobs     Blobs   `yaml:"blobs"`
	Index     Index   `yaml:"index"`
	NATS      NATS    `yaml:"nats"`
	Tracing   Tracing `yaml:"tracing"`
}

// Log configures the shared logger.
type Log struct {
	Level string `yaml:"level"`
}

// Blobs selects and configures attachment storage.
type Blobs struct {
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
	MaxSize int64  `yaml:"max_size"`
	S3      S3     `yaml:"s3"`
}

// S3 locates the bucket used by the s3 backend.
type S3 struct {
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// Index configures the search indexer.
type Index struct {
	Shards int `yaml:"shards"`
}

// NATS publishing is off while URL is empty.
type NATS struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
	Stream  string `yaml:"stream"`
}

// Tracing is off unless File or OTLPHTTP is set. OTLP endpoints come from
// the standard OTEL_EXPORTER_OTLP_* environment.
type Tracing struct {
	File     string `yaml:"file"`
	OTLPHTTP bool   `yaml:"otlp_http"`
	Insecure bool   `yaml:"insecure"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Listen:    ":8080",
		PublicURL: "http://localhost:8080",
		Database:  "nexus.db",
		Log:       Log{Level: "info"},
		Blobs: Blobs{
			Backend: BackendFS,
			Dir:     "blobs",
			MaxSize: 100 << 20,
		},
		Index: Index{Shards: 4},
		NATS:  NATS{Subject: "nexus.revisions"},
	}
}

// Load reads path over the defaults. Unknown keys are errors.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen must be set")
	}
	if c.Database == "" {
		return errors.New("database must be set")
	}
	u, err := url.Parse(c.PublicURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("public_url %q must be an absolute URL", c.PublicURL)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Blobs.Backend {
	case BackendFS:
		if c.Blobs.Dir == "" {
			return errors.New("blobs.dir must be set for the fs backend")
		}
	case BackendS3:
		if c.Blobs.S3.Bucket == "" {
			return errors.New("blobs.s3.bucket must be set for the s3 backend")
		}
	default:
		return fmt.Errorf("blobs.backend %q must be %q or %q", c.Blobs.Backend, BackendFS, BackendS3)
	}
	if c.Blobs.MaxSize <= 0 {
		return errors.New("blobs.max_size must be positive")
	}
	if c.Index.Shards <= 0 {
		return errors.New("index.shards must be positive")
	}
	if c.NATS.URL != "" && c.NATS.Subject == "" {
		return errors.New("nats.subject must be set when nats.url is")
	}
	return nil
}

// BaseURL is PublicURL without a trailing slash.
func (c Config) BaseURL() string {
	return strings.TrimRight(c.PublicURL, "/")
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", s, err)
	}
	return level, nil
}
