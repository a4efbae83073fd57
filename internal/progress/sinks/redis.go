package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/difflog/internal/progress"
)

// RedisConfig controls where RedisSink appends entries.
type RedisConfig struct {
	// Stream is the stream key (default "difflog:frames").
	Stream string
	// MaxLen caps the stream approximately; zero keeps everything.
	MaxLen int64
	// Session tags every entry.
	Session uuid.UUID
}

// streamAdder is the subset of redis.Cmdable the sink needs.
type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisSink appends each line to a Redis stream as {session, seq, level, text}.
// Consumers XREAD the stream and feed text into a replica.
type RedisSink struct {
	client streamAdder
	cfg    RedisConfig

	mu  sync.Mutex
	seq int64
}

// NewRedisSink builds a sink over an existing client. The client is owned by
// the caller.
func NewRedisSink(client streamAdder, cfg RedisConfig) (*RedisSink, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg.Stream == "" {
		cfg.Stream = "difflog:frames"
	}
	return &RedisSink{client: client, cfg: cfg}, nil
}

// Log adds one stream entry and returns its id error, if any.
func (s *RedisSink) Log(ctx context.Context, level progress.Level, text string) error {
	s.mu.Lock()
	seq := s.seq
	s.seq++
	s.mu.Unlock()

	args := &redis.XAddArgs{
		Stream: s.cfg.Stream,
		Values: map[string]any{
			"session": s.cfg.Session.String(),
			"seq":     seq,
			"level":   int(level),
			"text":    text,
		},
	}
	if s.cfg.MaxLen > 0 {
		args.MaxLen = s.cfg.MaxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.cfg.Stream, err)
	}
	return nil
}

// Close implements the Sink interface; the client outlives the sink.
func (s *RedisSink) Close(context.Context) error {
	return nil
}
