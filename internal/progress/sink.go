package progress

import "context"

// Sink consumes forwarded lines. Publishers call Log while holding their state
// lock, so implementations must return promptly and must never call back into
// the Publisher. Log may be invoked from several goroutines.
type Sink interface {
	Log(ctx context.Context, level Level, text string) error
	Close(ctx context.Context) error
}

// SinkFunc adapts a plain function to the Sink interface. Close is a no-op.
type SinkFunc func(ctx context.Context, level Level, text string) error

// Log calls f.
func (f SinkFunc) Log(ctx context.Context, level Level, text string) error {
	return f(ctx, level, text)
}

// Close implements Sink.
func (SinkFunc) Close(context.Context) error {
	return nil
}

// Observer receives publisher instrumentation callbacks. Implementations are
// invoked under the publisher lock and must not block.
type Observer interface {
	FrameSent(kind string, bytes, ops int)
	TickUnchanged()
	FlushFailed()
}

type nopObserver struct{}

func (nopObserver) FrameSent(string, int, int) {}
func (nopObserver) TickUnchanged()             {}
func (nopObserver) FlushFailed()               {}
