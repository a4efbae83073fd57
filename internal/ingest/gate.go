package ingest

import (
	"sync"
	"sync/atomic"

	"github.com/JakeFAU/difflog/internal/progress"
)

// Gate forwards to a Recorder until it is closed. Close waits for a call in
// flight, so once it returns nothing more reaches the Recorder. Calls after
// Close are dropped and counted.
type Gate struct {
	rec     Recorder
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// NewGate returns an open Gate in front of rec.
func NewGate(rec Recorder) *Gate {
	return &Gate{rec: rec}
}

// Close shuts the gate. It is safe to call more than once.
func (g *Gate) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

// Dropped reports how many calls arrived after Close.
func (g *Gate) Dropped() int {
	return int(g.dropped.Load())
}

func (g *Gate) pass(fn func() error) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		g.dropped.Add(1)
		return nil
	}
	return fn()
}

// Log implements Recorder.
func (g *Gate) Log(level progress.Level, text string) error {
	return g.pass(func() error { return g.rec.Log(level, text) })
}

// RecordError implements Recorder.
func (g *Gate) RecordError(ei progress.ErrorInfo) error {
	return g.pass(func() error { return g.rec.RecordError(ei) })
}

// StartActivity implements Recorder.
func (g *Gate) StartActivity(id progress.ActivityID, typ progress.ActivityType, text string, fields progress.Fields, parent progress.ActivityID) error {
	return g.pass(func() error { return g.rec.StartActivity(id, typ, text, fields, parent) })
}

// StopActivity implements Recorder.
func (g *Gate) StopActivity(id progress.ActivityID) error {
	return g.pass(func() error { return g.rec.StopActivity(id) })
}

// RecordResult implements Recorder.
func (g *Gate) RecordResult(id progress.ActivityID, fields progress.Fields) error {
	return g.pass(func() error { return g.rec.RecordResult(id, fields) })
}
