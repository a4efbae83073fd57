package sinks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/difflog/internal/compress"
	"github.com/JakeFAU/difflog/internal/hash/sha256"
	"github.com/JakeFAU/difflog/internal/progress"
	"github.com/JakeFAU/difflog/internal/store"
)

// ArchiveConfig controls how ArchiveSink names and encodes its object.
type ArchiveConfig struct {
	// Prefix is prepended to the object path.
	Prefix string
	// Compression is a compress method name.
	Compression string
	// Session names the object.
	Session uuid.UUID
	// Now dates the object path (defaults to time.Now).
	Now func() time.Time
}

// ArchiveSink buffers compressed lines in memory and uploads them as one
// object when closed: <prefix>/<yyyy-mm-dd>/<session>.frames<ext>.
type ArchiveSink struct {
	blobs store.BlobStore
	path  string

	mu     sync.Mutex
	buf    bytes.Buffer
	enc    io.WriteCloser
	uri    string
	digest string
	closed bool
}

// NewArchiveSink prepares an archive that uploads to blobs on Close.
func NewArchiveSink(blobs store.BlobStore, cfg ArchiveConfig) (*ArchiveSink, error) {
	if blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	s := &ArchiveSink{
		blobs: blobs,
		path: path.Join(
			cfg.Prefix,
			now().UTC().Format("2006-01-02"),
			cfg.Session.String()+".frames"+compress.Extension(cfg.Compression),
		),
	}
	enc, err := compress.NewWriter(cfg.Compression, &s.buf)
	if err != nil {
		return nil, fmt.Errorf("archive sink: %w", err)
	}
	s.enc = enc
	return s, nil
}

// Path is the object path Close uploads to.
func (s *ArchiveSink) Path() string {
	return s.path
}

// URI is the uploaded object's location, empty until Close succeeds.
func (s *ArchiveSink) URI() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uri
}

// Digest is the sha256 digest of the uploaded object, empty until Close
// succeeds.
func (s *ArchiveSink) Digest() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.digest
}

// Log buffers one line.
func (s *ArchiveSink) Log(_ context.Context, _ progress.Level, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("archive sink is closed")
	}
	if _, err := io.WriteString(s.enc, text+"\n"); err != nil {
		return fmt.Errorf("buffer line: %w", err)
	}
	return nil
}

// Close finishes the compressed stream and uploads it once.
func (s *ArchiveSink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.enc.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	data := s.buf.Bytes()
	uri, err := s.blobs.PutObject(ctx, s.path, "application/x-ndjson", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("upload archive %s: %w", s.path, err)
	}
	s.uri = uri
	s.digest = sha256.Digest(data)
	return nil
}
