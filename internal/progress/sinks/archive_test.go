package sinks

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/difflog/internal/clock/system"
	"github.com/JakeFAU/difflog/internal/compress"
	"github.com/JakeFAU/difflog/internal/hash/sha256"
	"github.com/JakeFAU/difflog/internal/progress"
	"github.com/JakeFAU/difflog/internal/replica"
	"github.com/JakeFAU/difflog/internal/storage/memory"
)

func TestArchiveSinkUploadsOnClose(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	session := uuid.MustParse("01890a5d-ac96-774b-bcce-b302099a8057")
	sink, err := NewArchiveSink(blobs, ArchiveConfig{
		Prefix:      "archives",
		Compression: compress.Brotli,
		Session:     session,
		Now:         system.Fixed(time.Date(2026, 10, 16, 23, 0, 0, 0, time.UTC)).Now,
	})
	require.NoError(t, err)
	require.Equal(t, "archives/2026-10-16/"+session.String()+".frames.br", sink.Path())

	ctx := context.Background()
	require.NoError(t, sink.Log(ctx, progress.FrameLevel, `@diff {"activities":{},"messages":[]}`))
	require.NoError(t, sink.Log(ctx, progress.LevelWarn, "result for unknown activity 9"))
	require.NoError(t, sink.Log(ctx, progress.FrameLevel, `@diff [{"op":"add","path":"/messages/0","value":{"level":3,"msg":"m","raw_msg":"m"}}]`))
	require.Empty(t, blobs.Paths())

	require.NoError(t, sink.Close(ctx))
	require.NoError(t, sink.Close(ctx))
	require.Equal(t, "memory://"+sink.Path(), sink.URI())

	data, ok := blobs.Object(sink.Path())
	require.True(t, ok)
	require.True(t, sha256.Verify(data, sink.Digest()))
	r, err := compress.NewReader(compress.Brotli, bytes.NewReader(data))
	require.NoError(t, err)
	rep, err := replica.Read(r)
	require.NoError(t, err)
	require.Equal(t, 2, rep.Frames())
}

type failingBlobs struct{}

func (failingBlobs) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket missing")
}

func TestArchiveSinkReportsUploadFailure(t *testing.T) {
	t.Parallel()

	sink, err := NewArchiveSink(failingBlobs{}, ArchiveConfig{Compression: compress.Gzip})
	require.NoError(t, err)
	require.NoError(t, sink.Log(context.Background(), progress.LevelInfo, "x"))
	require.Error(t, sink.Close(context.Background()))
	require.Empty(t, sink.URI())
	require.Empty(t, sink.Digest())
	require.Error(t, sink.Log(context.Background(), progress.LevelInfo, "late"))
}
