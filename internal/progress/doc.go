// Package progress accumulates build progress (log messages and named
// activities) into an in-memory state model and publishes it incrementally.
// A Publisher snapshots the model on a background goroutine, diffs the
// snapshot against the last one it transmitted, and forwards only the patch
// to a downstream Sink. The first frame of every session is a full baseline.
package progress
