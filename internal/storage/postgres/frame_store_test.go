package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/difflog/internal/store"
)

func TestAppendFrameInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	fs, err := NewFrameStoreWithPool(mock, "frames")
	require.NoError(t, err)

	frame := store.Frame{
		Session:   uuid.MustParse("01890a5d-ac96-774b-bcce-b302099a8057"),
		Seq:       3,
		Level:     0,
		Text:      `@diff []`,
		CreatedAt: time.Unix(1700000000, 0).UTC(),
	}
	mock.ExpectExec("INSERT INTO frames").
		WithArgs(frame.Session, frame.Seq, frame.Level, frame.Text, frame.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, fs.AppendFrame(context.Background(), frame))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendFrameWrapsExecError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	fs, err := NewFrameStoreWithPool(mock, "")
	require.NoError(t, err)

	boom := errors.New("connection reset")
	mock.ExpectExec("INSERT INTO frames").WillReturnError(boom)

	err = fs.AppendFrame(context.Background(), store.Frame{Session: uuid.New(), Seq: 1})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendFrameRequiresSession(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	fs, err := NewFrameStoreWithPool(mock, "")
	require.NoError(t, err)
	require.Error(t, fs.AppendFrame(context.Background(), store.Frame{}))
}

func TestListFramesScansInOrder(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	fs, err := NewFrameStoreWithPool(mock, "frames")
	require.NoError(t, err)

	session := uuid.New()
	at := time.Unix(1700000000, 0).UTC()
	rows := pgxmock.NewRows([]string{"session_id", "seq", "level", "body", "created_at"}).
		AddRow(session, int64(0), 0, `@diff {"activities":{},"messages":[]}`, at).
		AddRow(session, int64(1), 1, `result for unknown activity 2`, at.Add(time.Second))
	mock.ExpectQuery("SELECT session_id, seq, level, body, created_at").
		WithArgs(session).
		WillReturnRows(rows)

	frames, err := fs.ListFrames(context.Background(), session)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	require.Equal(t, int64(1), frames[1].Seq)
	require.Equal(t, 1, frames[1].Level)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListFramesEmptyIsNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	fs, err := NewFrameStoreWithPool(mock, "frames")
	require.NoError(t, err)

	session := uuid.New()
	mock.ExpectQuery("SELECT session_id").
		WithArgs(session).
		WillReturnRows(pgxmock.NewRows([]string{"session_id", "seq", "level", "body", "created_at"}))

	_, err = fs.ListFrames(context.Background(), session)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestNewFrameStoreWithPoolRejectsBadTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewFrameStoreWithPool(mock, "frames; DROP TABLE x")
	require.Error(t, err)
	_, err = NewFrameStoreWithPool(nil, "frames")
	require.Error(t, err)
}
