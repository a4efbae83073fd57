package sinks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/difflog/internal/progress"
	"github.com/JakeFAU/difflog/internal/store"
)

// StoreSink persists every line through a store.FrameRepository so a session
// can be replayed later.
type StoreSink struct {
	repo    store.FrameRepository
	session uuid.UUID
	now     func() time.Time

	mu  sync.Mutex
	seq int64
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.FrameRepository, session uuid.UUID) (*StoreSink, error) {
	if repo == nil {
		return nil, fmt.Errorf("frame repository is required")
	}
	return &StoreSink{repo: repo, session: session, now: time.Now}, nil
}

// Log appends one frame row. The sequence number only advances on success,
// so stored sequences stay gapless when a row is rejected.
func (s *StoreSink) Log(ctx context.Context, level progress.Level, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	frame := store.Frame{
		Session:   s.session,
		Seq:       s.seq,
		Level:     int(level),
		Text:      text,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.AppendFrame(ctx, frame); err != nil {
		return fmt.Errorf("append frame: %w", err)
	}
	s.seq++
	return nil
}

// Close implements the Sink interface; the repository outlives the sink.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
