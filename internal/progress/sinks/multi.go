package sinks

import (
	"context"

	"go.uber.org/multierr"

	"github.com/JakeFAU/difflog/internal/progress"
)

// MultiSink fans every line out to all members. A failing member does not
// stop delivery to the others; errors are combined.
type MultiSink struct {
	sinks []progress.Sink
}

// NewMultiSink combines sinks, skipping nil entries.
func NewMultiSink(sinks ...progress.Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Len reports the number of members.
func (m *MultiSink) Len() int {
	return len(m.sinks)
}

// Log forwards to every member.
func (m *MultiSink) Log(ctx context.Context, level progress.Level, text string) error {
	var err error
	for _, s := range m.sinks {
		err = multierr.Append(err, s.Log(ctx, level, text))
	}
	return err
}

// Close closes every member.
func (m *MultiSink) Close(ctx context.Context) error {
	var err error
	for _, s := range m.sinks {
		err = multierr.Append(err, s.Close(ctx))
	}
	return err
}
