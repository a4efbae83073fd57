package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/difflog/internal/replica"
	"github.com/JakeFAU/difflog/internal/store"
)

const (
	defaultFrameLimit = 100
	maxFrameLimit     = 1000
	sessionTimeout    = 5 * time.Second
)

// SessionHandler exposes persisted sessions read from a FrameRepository.
type SessionHandler struct {
	repo    store.FrameRepository
	timeout time.Duration
	logger  *zap.Logger
}

// NewSessionHandler wires the repository and logger.
func NewSessionHandler(repo store.FrameRepository, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{repo: repo, timeout: sessionTimeout, logger: logger}
}

// ListFrames handles GET /v1/sessions/{session_id}/frames?limit=&offset=. It
// returns {"frames": [...]}, 400 for a bad id or paging, 404 for an unknown
// session, or 503 when no repository is configured.
func (h *SessionHandler) ListFrames(w http.ResponseWriter, r *http.Request) {
	frames, ok := h.load(w, r)
	if !ok {
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultFrameLimit, maxFrameLimit)
	if err != nil {
		writeError(h.logger, w, http.StatusBadRequest, err.Error())
		return
	}
	page := []frameDTO{}
	for i := offset; i < len(frames) && len(page) < limit; i++ {
		page = append(page, toFrameDTO(frames[i]))
	}
	writeJSON(h.logger, w, http.StatusOK, map[string]any{
		"total":  len(frames),
		"frames": page,
	})
}

// GetState handles GET /v1/sessions/{session_id}/state by replaying every
// stored frame. A session whose frames do not replay cleanly answers 422.
func (h *SessionHandler) GetState(w http.ResponseWriter, r *http.Request) {
	frames, ok := h.load(w, r)
	if !ok {
		return
	}
	rep := replica.New()
	for _, f := range frames {
		if err := rep.Apply(f.Text); err != nil && !errors.Is(err, replica.ErrNotFrame) {
			h.logger.Warn("session replay failed", zap.Int64("seq", f.Seq), zap.Error(err))
			writeError(h.logger, w, http.StatusUnprocessableEntity, fmt.Sprintf("frame %d: %v", f.Seq, err))
			return
		}
	}
	writeJSON(h.logger, w, http.StatusOK, map[string]any{
		"frames": rep.Frames(),
		"state":  rep.State(),
	})
}

func (h *SessionHandler) load(w http.ResponseWriter, r *http.Request) ([]store.Frame, bool) {
	if h.repo == nil {
		writeError(h.logger, w, http.StatusServiceUnavailable, "frame repository unavailable")
		return nil, false
	}
	session, err := uuid.Parse(chi.URLParam(r, "session_id"))
	if err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "invalid session id")
		return nil, false
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	frames, err := h.repo.ListFrames(ctx, session)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(h.logger, w, http.StatusNotFound, "session not found")
			return nil, false
		}
		h.logger.Error("list frames failed", zap.Error(err))
		writeError(h.logger, w, http.StatusInternalServerError, "failed to list frames")
		return nil, false
	}
	return frames, true
}

type frameDTO struct {
	Seq       int64     `json:"seq"`
	Level     int       `json:"level"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

func toFrameDTO(f store.Frame) frameDTO {
	return frameDTO{Seq: f.Seq, Level: f.Level, Text: f.Text, CreatedAt: f.CreatedAt}
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	limit := def
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return 0, 0, fmt.Errorf("limit must be a positive integer")
		}
		limit = min(v, maxLimit)
	}
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return 0, 0, fmt.Errorf("offset must be a non-negative integer")
		}
		offset = v
	}
	return limit, offset, nil
}
