package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/difflog/internal/store"
)

type fakeFrameRepo struct {
	frames map[uuid.UUID][]store.Frame
	err    error
}

func (f *fakeFrameRepo) AppendFrame(_ context.Context, fr store.Frame) error {
	f.frames[fr.Session] = append(f.frames[fr.Session], fr)
	return nil
}

func (f *fakeFrameRepo) ListFrames(_ context.Context, session uuid.UUID) ([]store.Frame, error) {
	if f.err != nil {
		return nil, f.err
	}
	frames, ok := f.frames[session]
	if !ok {
		return nil, store.ErrNotFound
	}
	return frames, nil
}

func (f *fakeFrameRepo) Close() {}

func newSessionRepo(session uuid.UUID, texts ...string) *fakeFrameRepo {
	repo := &fakeFrameRepo{frames: map[uuid.UUID][]store.Frame{}}
	at := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	for i, text := range texts {
		_ = repo.AppendFrame(context.Background(), store.Frame{
			Session:   session,
			Seq:       int64(i),
			Text:      text,
			CreatedAt: at.Add(time.Duration(i) * time.Second),
		})
	}
	return repo
}

func TestSessions_GetStateReplaysFrames(t *testing.T) {
	t.Parallel()

	session := uuid.New()
	repo := newSessionRepo(session,
		`@diff {"activities":{},"messages":[]}`,
		`result for unknown activity 1`,
		`@diff [{"op":"add","path":"/messages/0","value":{"level":3,"msg":"m","raw_msg":"m"}}]`,
	)
	server := NewServer(nil, repo, nil)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/"+session.String()+"/state", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t,
		`{"frames":2,"state":{"activities":{},"messages":[{"level":3,"msg":"m","raw_msg":"m"}]}}`,
		rec.Body.String())
}

func TestSessions_GetStateBrokenSession(t *testing.T) {
	t.Parallel()

	session := uuid.New()
	repo := newSessionRepo(session, `@diff [{"op":"add","path":"/x","value":1}]`)
	server := NewServer(nil, repo, nil)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/"+session.String()+"/state", nil))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSessions_ListFramesPaging(t *testing.T) {
	t.Parallel()

	session := uuid.New()
	repo := newSessionRepo(session, "@diff {}", "@diff []", "@diff []")
	server := NewServer(nil, repo, nil)

	rec := httptest.NewRecorder()
	url := "/v1/sessions/" + session.String() + "/frames?limit=1&offset=1"
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t,
		`{"total":3,"frames":[{"seq":1,"level":0,"text":"@diff []","created_at":"2026-10-16T09:00:01Z"}]}`,
		rec.Body.String())
}

func TestSessions_Errors(t *testing.T) {
	t.Parallel()

	known := uuid.New()
	tests := []struct {
		name string
		repo store.FrameRepository
		path string
		want int
	}{
		{name: "no repo", repo: nil, path: "/v1/sessions/" + known.String() + "/frames", want: http.StatusServiceUnavailable},
		{name: "bad id", repo: newSessionRepo(known), path: "/v1/sessions/not-a-uuid/frames", want: http.StatusBadRequest},
		{name: "unknown", repo: newSessionRepo(known), path: "/v1/sessions/" + uuid.NewString() + "/state", want: http.StatusNotFound},
		{name: "bad limit", repo: newSessionRepo(known, "@diff {}"), path: "/v1/sessions/" + known.String() + "/frames?limit=0", want: http.StatusBadRequest},
		{name: "bad offset", repo: newSessionRepo(known, "@diff {}"), path: "/v1/sessions/" + known.String() + "/frames?offset=-1", want: http.StatusBadRequest},
		{
			name: "repo failure",
			repo: &fakeFrameRepo{err: errors.New("pool closed")},
			path: "/v1/sessions/" + known.String() + "/frames",
			want: http.StatusInternalServerError,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			server := NewServer(nil, tc.repo, nil)
			rec := httptest.NewRecorder()
			server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
			require.Equal(t, tc.want, rec.Code)
		})
	}
}
