package sinks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/difflog/internal/progress"
)

func TestLogSinkMapsLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))
	ctx := context.Background()

	require.NoError(t, sink.Log(ctx, progress.FrameLevel, progress.FramePrefix+"{}"))
	require.NoError(t, sink.Log(ctx, progress.LevelWarn, "careful"))
	require.NoError(t, sink.Log(ctx, progress.LevelNotice, "note"))
	require.NoError(t, sink.Log(ctx, progress.LevelVomit, "noise"))
	require.NoError(t, sink.Close(ctx))

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)
	require.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	require.Equal(t, "@diff {}", entries[0].Message)
	require.Equal(t, zapcore.WarnLevel, entries[1].Level)
	require.Equal(t, zapcore.InfoLevel, entries[2].Level)
	require.Equal(t, zapcore.DebugLevel, entries[3].Level)
	require.Equal(t, "vomit", entries[3].ContextMap()["level"])
}

func TestNewLogSinkNilLogger(t *testing.T) {
	t.Parallel()

	sink := NewLogSink(nil)
	require.NoError(t, sink.Log(context.Background(), progress.LevelInfo, "dropped"))
}
