package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/difflog/internal/progress"
)

// LogSink forwards lines to a zap logger. It is the plain logger a publisher
// decorates when no remote consumer is configured.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Log writes text at the zap level closest to level.
func (s *LogSink) Log(_ context.Context, level progress.Level, text string) error {
	fields := []zap.Field{zap.String("level", level.String())}
	switch {
	case level <= progress.LevelError:
		s.logger.Error(text, fields...)
	case level == progress.LevelWarn:
		s.logger.Warn(text, fields...)
	case level <= progress.LevelInfo:
		s.logger.Info(text, fields...)
	default:
		s.logger.Debug(text, fields...)
	}
	return nil
}

// Close flushes buffered log entries.
func (s *LogSink) Close(context.Context) error {
	// Sync fails on some terminals (EINVAL on /dev/stderr); nothing is lost.
	_ = s.logger.Sync()
	return nil
}
