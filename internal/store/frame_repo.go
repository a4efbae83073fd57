// Package store declares interfaces for persisting published frames.
package store

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("frame record not found")

// Frame is one line a publisher transmitted during a session.
type Frame struct {
	// Session identifies the publisher lifetime that produced the frame.
	Session uuid.UUID
	// Seq is the 0-based transmission order within the session.
	Seq int64
	// Level is the log level the line was sent at.
	Level int
	// Text is the full line, including any frame prefix.
	Text string
	// CreatedAt is when the sink accepted the line.
	CreatedAt time.Time
}

// FrameRepository persists frames in transmission order.
type FrameRepository interface {
	// AppendFrame stores one frame. Seq must be unique per session.
	AppendFrame(ctx context.Context, frame Frame) error
	// ListFrames returns a session's frames ordered by Seq, or ErrNotFound.
	ListFrames(ctx context.Context, session uuid.UUID) ([]Frame, error)
	// Close releases underlying resources.
	Close()
}

// BlobStore uploads whole objects and returns their URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}
