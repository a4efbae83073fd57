package sinks

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/difflog/internal/progress"
)

type fakeStream struct {
	args []*redis.XAddArgs
	err  error
}

func (f *fakeStream) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.args = append(f.args, a)
	return redis.NewStringResult("1-0", f.err)
}

func TestRedisSinkAddsEntries(t *testing.T) {
	t.Parallel()

	client := &fakeStream{}
	session := uuid.New()
	sink, err := NewRedisSink(client, RedisConfig{MaxLen: 1000, Session: session})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sink.Log(ctx, progress.FrameLevel, "@diff {}"))
	require.NoError(t, sink.Log(ctx, progress.LevelWarn, "result for unknown activity 2"))
	require.NoError(t, sink.Close(ctx))

	require.Len(t, client.args, 2)
	first := client.args[0]
	require.Equal(t, "difflog:frames", first.Stream)
	require.True(t, first.Approx)
	require.Equal(t, int64(1000), first.MaxLen)
	values := client.args[1].Values.(map[string]any)
	require.Equal(t, session.String(), values["session"])
	require.Equal(t, int64(1), values["seq"])
	require.Equal(t, int(progress.LevelWarn), values["level"])
}

func TestRedisSinkPropagatesErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("READONLY")
	sink, err := NewRedisSink(&fakeStream{err: boom}, RedisConfig{Stream: "s"})
	require.NoError(t, err)
	require.ErrorIs(t, sink.Log(context.Background(), progress.LevelInfo, "x"), boom)

	_, err = NewRedisSink(nil, RedisConfig{})
	require.Error(t, err)
}
