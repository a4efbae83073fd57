package sinks

import (
	"context"
	"errors"
	"sync"

	"github.com/JakeFAU/difflog/internal/progress"
	"github.com/JakeFAU/difflog/internal/replica"
)

// ReplicaSink applies frames to an in-process replica so the HTTP API can
// serve the state a remote consumer would see.
type ReplicaSink struct {
	mu       sync.RWMutex
	rep      *replica.Replica
	warnings []string
}

// NewReplicaSink returns a sink with an empty replica.
func NewReplicaSink() *ReplicaSink {
	return &ReplicaSink{rep: replica.New()}
}

// Log applies frame lines and keeps other lines as warnings.
func (s *ReplicaSink) Log(_ context.Context, _ progress.Level, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.rep.Apply(text)
	if errors.Is(err, replica.ErrNotFrame) {
		s.warnings = append(s.warnings, text)
		return nil
	}
	return err
}

// State returns a copy of the replicated state, nil before the baseline.
func (s *ReplicaSink) State() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rep.State()
}

// Frames reports how many frames were applied.
func (s *ReplicaSink) Frames() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rep.Frames()
}

// Warnings returns the non-frame lines received so far.
func (s *ReplicaSink) Warnings() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.warnings...)
}

// Close implements the Sink interface; it performs no action.
func (s *ReplicaSink) Close(context.Context) error {
	return nil
}
