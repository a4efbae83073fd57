package sinks

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/multierr"

	"github.com/JakeFAU/difflog/internal/compress"
	"github.com/JakeFAU/difflog/internal/progress"
)

// WriterSink writes one line per Log call, optionally through a compressor.
// The level is not recorded; consumers tell frames apart by their prefix.
type WriterSink struct {
	mu     sync.Mutex
	enc    io.WriteCloser
	owned  io.Closer
	closed bool
}

// NewWriterSink wraps w. Close flushes the compressor but leaves w open.
func NewWriterSink(w io.Writer, method string) (*WriterSink, error) {
	enc, err := compress.NewWriter(method, w)
	if err != nil {
		return nil, fmt.Errorf("writer sink: %w", err)
	}
	return &WriterSink{enc: enc}, nil
}

// OpenFileSink creates (or truncates) path and writes frames to it. Close
// closes the file.
func OpenFileSink(path, method string) (*WriterSink, error) {
	// #nosec G304 -- path comes from operator configuration.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open output %s: %w", path, err)
	}
	s, err := NewWriterSink(f, method)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	s.owned = f
	return s, nil
}

// Log appends text and a newline.
func (s *WriterSink) Log(_ context.Context, _ progress.Level, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("writer sink is closed")
	}
	if _, err := io.WriteString(s.enc, text+"\n"); err != nil {
		return fmt.Errorf("write line: %w", err)
	}
	return nil
}

// Close flushes the compressor and closes an owned file. Later calls are no-ops.
func (s *WriterSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.enc.Close()
	if s.owned != nil {
		err = multierr.Append(err, s.owned.Close())
	}
	return err
}
