package sinks

import (
	"context"
	"sort"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/difflog/internal/progress"
)

func TestPubSubSinkPublishesLines(t *testing.T) {
	ctx := context.Background()

	srv := pstest.NewServer()
	defer func() { _ = srv.Close() }()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	topic, err := client.CreateTopic(ctx, "frames")
	require.NoError(t, err)

	session := uuid.New()
	sink, err := NewPubSubSink(topic, session)
	require.NoError(t, err)

	require.NoError(t, sink.Log(ctx, progress.FrameLevel, "@diff {}"))
	require.NoError(t, sink.Log(ctx, progress.FrameLevel, "@diff []"))
	require.NoError(t, sink.Close(ctx))

	var msgs []*pstest.Message
	require.Eventually(t, func() bool {
		msgs = srv.Messages()
		return len(msgs) == 2
	}, 5*time.Second, 10*time.Millisecond)

	sort.Slice(msgs, func(i, j int) bool {
		return msgs[i].Attributes["seq"] < msgs[j].Attributes["seq"]
	})
	require.Equal(t, "@diff {}", string(msgs[0].Data))
	require.Equal(t, "1", msgs[1].Attributes["seq"])
	require.Equal(t, session.String(), msgs[1].Attributes["session"])
	require.Equal(t, "0", msgs[1].Attributes["level"])
}

func TestPubSubSinkRequiresTopic(t *testing.T) {
	t.Parallel()

	_, err := NewPubSubSink(nil, uuid.Nil)
	require.Error(t, err)
}

