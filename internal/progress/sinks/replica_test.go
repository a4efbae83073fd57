package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/difflog/internal/progress"
	"github.com/JakeFAU/difflog/internal/tree"
)

func TestReplicaSinkMirrorsPublisher(t *testing.T) {
	t.Parallel()

	sink := NewReplicaSink()
	require.Nil(t, sink.State())

	pub := progress.NewPublisher(sink, progress.Config{Interval: time.Millisecond})
	require.NoError(t, pub.StartActivity(1, progress.ActBuilds, "", nil, 0))
	require.NoError(t, pub.RecordResult(2, progress.Fields{}))
	require.NoError(t, pub.RecordMessage("hello"))
	require.NoError(t, pub.Stop())

	require.True(t, tree.Equal(pub.Snapshot(), sink.State()))
	require.GreaterOrEqual(t, sink.Frames(), 1)
	require.Equal(t, []string{"result for unknown activity 2"}, sink.Warnings())
}

func TestReplicaSinkRejectsBrokenPatch(t *testing.T) {
	t.Parallel()

	sink := NewReplicaSink()
	ctx := context.Background()
	require.NoError(t, sink.Log(ctx, progress.FrameLevel, "@diff {}"))
	require.Error(t, sink.Log(ctx, progress.FrameLevel, `@diff [{"op":"remove","path":"/missing"}]`))
}
