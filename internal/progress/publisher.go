package progress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/difflog/internal/tree"
)

// Config controls publishing for a Publisher.
//   - Interval: time between state polls (default 300ms).
//   - SinkTimeout: per-call timeout applied to Sink.Log (default 10s).
//   - ShowTrace: record error traces on messages (default false).
//   - BaseContext: parent context passed to sink calls (defaults to context.Background()).
//   - Logger: optional structured logger used for warnings.
//   - Observer: optional instrumentation hooks.
type Config struct {
	Interval    time.Duration
	SinkTimeout time.Duration
	ShowTrace   bool
	BaseContext context.Context
	Logger      *zap.Logger
	Observer    Observer
}

const (
	defaultInterval    = 300 * time.Millisecond
	defaultSinkTimeout = 10 * time.Second
)

// Status is the lifecycle stage of a Publisher. Transitions only move forward;
// a Publisher is NotStarted until its loop goroutine begins.
type Status int

// Publisher lifecycle stages.
const (
	StatusNotStarted Status = iota
	StatusRunning
	StatusStopping
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusNotStarted:
		return "not_started"
	case StatusRunning:
		return "running"
	case StatusStopping:
		return "stopping"
	case StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Publisher records progress from any number of goroutines and periodically
// forwards the difference since the last transmitted snapshot to a Sink.
// All mutators are safe for concurrent use.
type Publisher struct {
	cfg      Config
	sink     Sink
	logger   *zap.Logger
	observer Observer

	mu       sync.Mutex
	state    *State
	lastSent map[string]any
	status   Status

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	stopErr  error
}

// NewPublisher starts a Publisher that forwards frames to sink. The background
// goroutine transmits a baseline frame first, then patches every
// cfg.Interval. Callers must call Stop to drain the final state.
func NewPublisher(sink Sink, cfg Config) *Publisher {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	observer := cfg.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	if sink == nil {
		sink = SinkFunc(func(context.Context, Level, string) error { return nil })
	}
	p := &Publisher{
		cfg:      cfg,
		sink:     sink,
		logger:   logger,
		observer: observer,
		state:    newState(),
		status:   StatusNotStarted,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go p.run()
	return p
}

// RecordMessage appends a plain-text message at LevelInfo.
func (p *Publisher) RecordMessage(text string) error {
	return p.Log(LevelInfo, text)
}

// Log appends a plain-text message at the given level.
func (p *Publisher) Log(level Level, text string) error {
	return p.mutate(func(s *State) {
		s.appendMessage(Message{Level: level, Msg: text, Raw: text})
	})
}

// RecordError appends a message derived from a structured error. Trace frames
// are stored innermost first and only when Config.ShowTrace is set.
func (p *Publisher) RecordError(ei ErrorInfo) error {
	msg := Message{
		Level: ei.Level,
		Msg:   ei.Msg,
		Raw:   ei.Raw,
		Pos:   ei.Pos.clone(),
	}
	if p.cfg.ShowTrace && len(ei.Traces) > 0 {
		msg.Trace = make([]Trace, 0, len(ei.Traces))
		for i := len(ei.Traces) - 1; i >= 0; i-- {
			msg.Trace = append(msg.Trace, Trace{Raw: ei.Traces[i].Raw, Pos: ei.Traces[i].Pos.clone()})
		}
	}
	return p.mutate(func(s *State) {
		s.appendMessage(msg)
	})
}

// StartActivity records a new, incomplete activity. Callers guarantee id
// uniqueness; starting an existing id overwrites it.
func (p *Publisher) StartActivity(id ActivityID, typ ActivityType, text string, fields Fields, parent ActivityID) error {
	return p.mutate(func(s *State) {
		s.putActivity(id, Activity{Type: typ, Text: text, Fields: fields, Parent: parent})
	})
}

// StopActivity marks an activity complete. Unknown ids are ignored, since
// activities may be filtered before they reach the Publisher.
func (p *Publisher) StopActivity(id ActivityID) error {
	return p.mutate(func(s *State) {
		if act, ok := s.activity(id); ok {
			act.IsComplete = true
		}
	})
}

// RecordResult replaces the fields of an activity. An unknown id leaves the
// state untouched and forwards a warning line to the Sink instead.
func (p *Publisher) RecordResult(id ActivityID, fields Fields) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	act, ok := p.state.activity(id)
	if !ok {
		if err := p.send(LevelWarn, fmt.Sprintf("result for unknown activity %d", id)); err != nil {
			return fmt.Errorf("report unknown activity %d: %w", id, err)
		}
		return nil
	}
	act.Fields = fields.Clone()
	return p.afterMutationLocked()
}

// Snapshot returns a copy of the current state in wire shape.
func (p *Publisher) Snapshot() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.snapshot()
}

// Status reports the lifecycle stage.
func (p *Publisher) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Stop halts the background loop, waits for it to exit, and performs one
// final synchronous flush. It is safe to call multiple times; later calls
// return the result of the first. Stop does not close the Sink, because
// mutators that run after Stop still flush through it.
func (p *Publisher) Stop() error {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.status = StatusStopping
		p.mu.Unlock()

		close(p.stopCh)
		<-p.doneCh

		p.mu.Lock()
		defer p.mu.Unlock()
		if _, err := p.flushLocked(); err != nil {
			p.stopErr = fmt.Errorf("final flush: %w", err)
		}
		p.status = StatusStopped
	})
	return p.stopErr
}

func (p *Publisher) mutate(fn func(*State)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p.state)
	return p.afterMutationLocked()
}

// afterMutationLocked flushes synchronously once the loop is gone, so updates
// racing with or following Stop are still transmitted.
func (p *Publisher) afterMutationLocked() error {
	if p.status != StatusStopped {
		return nil
	}
	_, err := p.flushLocked()
	return err
}

func (p *Publisher) run() {
	defer close(p.doneCh)

	p.mu.Lock()
	if p.status == StatusNotStarted {
		p.status = StatusRunning
	}
	p.mu.Unlock()

	p.tick()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *Publisher) tick() {
	p.mu.Lock()
	defer p.mu.Unlock()
	sent, err := p.flushLocked()
	switch {
	case err != nil:
		p.observer.FlushFailed()
		p.logger.Warn("state flush failed", zap.Error(err))
	case !sent:
		p.observer.TickUnchanged()
	}
}

// flushLocked transmits the baseline if nothing has been sent yet, otherwise
// the patch from lastSent to the current state. lastSent advances as soon as
// the frame is handed to the sink, even when the sink reports an error: a
// fan-out sink may have delivered it to some members, and patches are not
// idempotent. Failed frames are reported, never resent.
func (p *Publisher) flushLocked() (bool, error) {
	current := p.state.snapshot()

	var (
		kind  string
		frame string
		ops   int
		err   error
	)
	if p.lastSent == nil {
		kind = FrameBaseline
		frame, err = BaselineFrame(current)
	} else {
		if tree.Equal(p.lastSent, current) {
			return false, nil
		}
		patch := tree.Diff(p.lastSent, current)
		kind, ops = FramePatch, len(patch)
		frame, err = PatchFrame(patch)
	}
	if err != nil {
		return false, fmt.Errorf("encode %s frame: %w", kind, err)
	}
	p.lastSent = current
	if err := p.send(FrameLevel, frame); err != nil {
		return true, fmt.Errorf("transmit %s frame: %w", kind, err)
	}
	p.observer.FrameSent(kind, len(frame), ops)
	return true, nil
}

func (p *Publisher) send(level Level, text string) error {
	ctx, cancel := context.WithTimeout(p.cfg.BaseContext, p.cfg.SinkTimeout)
	defer cancel()
	return p.sink.Log(ctx, level, text)
}
