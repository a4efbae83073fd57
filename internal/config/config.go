// Package config loads and validates difflog configuration via Viper.
package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/difflog/internal/compress"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Output    OutputConfig    `mapstructure:"output"`
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// PublisherConfig controls the frame publishing loop.
type PublisherConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	SinkTimeout time.Duration `mapstructure:"sink_timeout"`
	ShowTrace   bool          `mapstructure:"show_trace"`
}

// OutputConfig selects the line file. Path "-" is stdout; empty disables it.
type OutputConfig struct {
	Path        string `mapstructure:"path"`
	Compression string `mapstructure:"compression"`
	// LogFrames also forwards every line to the structured logger.
	LogFrames bool `mapstructure:"log_frames"`
}

// ServerConfig controls the optional HTTP API.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// RedisConfig configures the Redis stream sink.
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Stream   string        `mapstructure:"stream"`
	MaxLen   int64         `mapstructure:"max_len"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// PubSubConfig configures the Pub/Sub sink.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// PostgresConfig configures frame persistence and replay.
type PostgresConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ArchiveConfig configures the end-of-session archive upload.
type ArchiveConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Backend     string `mapstructure:"backend"`
	BaseDir     string `mapstructure:"base_dir"`
	Bucket      string `mapstructure:"bucket"`
	Prefix      string `mapstructure:"prefix"`
	Compression string `mapstructure:"compression"`
}

// Archive backends.
const (
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendMemory = "memory"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DIFFLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("publisher.interval", 300*time.Millisecond)
	v.SetDefault("publisher.sink_timeout", 10*time.Second)
	v.SetDefault("publisher.show_trace", false)
	v.SetDefault("output.path", "-")
	v.SetDefault("output.compression", compress.None)
	v.SetDefault("output.log_frames", false)
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "difflog:frames")
	v.SetDefault("redis.max_len", 100000)
	v.SetDefault("redis.timeout", 5*time.Second)
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("postgres.enabled", false)
	v.SetDefault("postgres.table", "frames")
	v.SetDefault("postgres.max_conns", 4)
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.backend", BackendLocal)
	v.SetDefault("archive.base_dir", "data/archive")
	v.SetDefault("archive.prefix", "sessions")
	v.SetDefault("archive.compression", compress.Zstd)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Publisher.Interval <= 0 {
		return fmt.Errorf("publisher.interval must be > 0")
	}
	if c.Publisher.SinkTimeout <= 0 {
		return fmt.Errorf("publisher.sink_timeout must be > 0")
	}
	if err := checkWritable(c.Output.Compression); err != nil {
		return fmt.Errorf("output.compression: %w", err)
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("server.port must be in 1..65535 when the server is enabled")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr must be set when redis is enabled")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	if c.Postgres.Enabled && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn must be set when postgres is enabled")
	}
	if c.Archive.Enabled {
		if err := c.Archive.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (a ArchiveConfig) validate() error {
	switch a.Backend {
	case BackendLocal:
		if a.BaseDir == "" {
			return fmt.Errorf("archive.base_dir must be set for the local backend")
		}
	case BackendGCS:
		if a.Bucket == "" {
			return fmt.Errorf("archive.bucket must be set for the gcs backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("archive.backend %q is not one of local, gcs, memory", a.Backend)
	}
	if err := checkWritable(a.Compression); err != nil {
		return fmt.Errorf("archive.compression: %w", err)
	}
	return nil
}

func checkWritable(method string) error {
	w, err := compress.NewWriter(method, io.Discard)
	if err != nil {
		return err
	}
	return w.Close()
}
