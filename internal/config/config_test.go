package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/difflog/internal/compress"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Publisher.Interval != 300*time.Millisecond {
		t.Fatalf("expected 300ms interval, got %s", cfg.Publisher.Interval)
	}
	if cfg.Publisher.SinkTimeout != 10*time.Second {
		t.Fatalf("expected 10s sink timeout, got %s", cfg.Publisher.SinkTimeout)
	}
	if cfg.Output.Path != "-" || cfg.Output.Compression != compress.None {
		t.Fatalf("expected stdout output without compression, got %+v", cfg.Output)
	}
	if cfg.Redis.Enabled || cfg.PubSub.Enabled || cfg.Postgres.Enabled || cfg.Archive.Enabled {
		t.Fatalf("expected remote sinks disabled by default")
	}
	if cfg.Archive.Compression != compress.Zstd {
		t.Fatalf("expected zstd archives, got %q", cfg.Archive.Compression)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
logging:
  development: true
  level: debug
publisher:
  interval: 50ms
  sink_timeout: 2s
  show_trace: true
output:
  path: frames.log.gz
  compression: gzip
  log_frames: true
server:
  enabled: true
  port: 9090
redis:
  enabled: true
  addr: redis:6379
  stream: builds
  max_len: 500
pubsub:
  enabled: true
  project_id: proj
  topic_name: frames
postgres:
  enabled: true
  dsn: postgres://localhost/difflog
  table: build_frames
archive:
  enabled: true
  backend: gcs
  bucket: archives
  compression: br
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !cfg.Logging.Development || cfg.Logging.Level != "debug" {
		t.Fatalf("expected logging overrides, got %+v", cfg.Logging)
	}
	if cfg.Publisher.Interval != 50*time.Millisecond || !cfg.Publisher.ShowTrace {
		t.Fatalf("expected publisher overrides, got %+v", cfg.Publisher)
	}
	if cfg.Output.Compression != "gzip" || !cfg.Output.LogFrames {
		t.Fatalf("expected output overrides, got %+v", cfg.Output)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Redis.Stream != "builds" || cfg.Redis.MaxLen != 500 {
		t.Fatalf("expected redis overrides, got %+v", cfg.Redis)
	}
	if cfg.Postgres.Table != "build_frames" || cfg.Postgres.MaxConns != 4 {
		t.Fatalf("expected postgres overrides, got %+v", cfg.Postgres)
	}
	if cfg.Archive.Backend != BackendGCS || cfg.Archive.Bucket != "archives" {
		t.Fatalf("expected archive overrides, got %+v", cfg.Archive)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{
			Publisher: PublisherConfig{Interval: time.Second, SinkTimeout: time.Second},
			Output:    OutputConfig{Compression: compress.None},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "ok", mutate: func(*Config) {}},
		{name: "zero interval", mutate: func(c *Config) { c.Publisher.Interval = 0 }, want: "publisher.interval"},
		{name: "zero timeout", mutate: func(c *Config) { c.Publisher.SinkTimeout = 0 }, want: "publisher.sink_timeout"},
		{name: "lz4 output", mutate: func(c *Config) { c.Output.Compression = "lz4" }, want: "output.compression"},
		{name: "xz output", mutate: func(c *Config) { c.Output.Compression = compress.Xz }},
		{name: "bzip2 archive", mutate: func(c *Config) {
			c.Archive = ArchiveConfig{Enabled: true, Backend: BackendMemory, Compression: compress.Bzip2}
		}},
		{name: "server port", mutate: func(c *Config) { c.Server = ServerConfig{Enabled: true} }, want: "server.port"},
		{name: "redis addr", mutate: func(c *Config) { c.Redis.Enabled = true }, want: "redis.addr"},
		{name: "pubsub topic", mutate: func(c *Config) { c.PubSub = PubSubConfig{Enabled: true, ProjectID: "p"} }, want: "pubsub"},
		{name: "postgres dsn", mutate: func(c *Config) { c.Postgres.Enabled = true }, want: "postgres.dsn"},
		{name: "archive backend", mutate: func(c *Config) { c.Archive = ArchiveConfig{Enabled: true, Backend: "s3"} }, want: "archive.backend"},
		{name: "archive bucket", mutate: func(c *Config) { c.Archive = ArchiveConfig{Enabled: true, Backend: BackendGCS} }, want: "archive.bucket"},
		{
			name: "memory archive",
			mutate: func(c *Config) {
				c.Archive = ArchiveConfig{Enabled: true, Backend: BackendMemory, Compression: compress.Snappy}
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.want == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate() error = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestValidateWrapsCompressionError(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Publisher: PublisherConfig{Interval: time.Second, SinkTimeout: time.Second},
		Output:    OutputConfig{Compression: "lz4"},
	}
	if err := cfg.Validate(); !errors.Is(err, compress.ErrUnknownMethod) {
		t.Fatalf("expected ErrUnknownMethod, got %v", err)
	}
}
