package sinks

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"

	"github.com/JakeFAU/difflog/internal/progress"
)

// PubSubSink publishes each line as one Pub/Sub message and waits for the
// server ack. Ordering is carried by the seq attribute.
type PubSubSink struct {
	topic   *pubsub.Topic
	session uuid.UUID

	mu  sync.Mutex
	seq int64
}

// NewPubSubSink publishes to topic, tagging messages with session.
func NewPubSubSink(topic *pubsub.Topic, session uuid.UUID) (*PubSubSink, error) {
	if topic == nil {
		return nil, fmt.Errorf("pubsub topic is required")
	}
	return &PubSubSink{topic: topic, session: session}, nil
}

// Log publishes text and blocks until the message id is known.
func (s *PubSubSink) Log(ctx context.Context, level progress.Level, text string) error {
	s.mu.Lock()
	seq := s.seq
	s.seq++
	s.mu.Unlock()

	msg := &pubsub.Message{
		Data: []byte(text),
		Attributes: map[string]string{
			"session": s.session.String(),
			"seq":     strconv.FormatInt(seq, 10),
			"level":   strconv.Itoa(int(level)),
		},
	}
	if _, err := s.topic.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("publish line %d: %w", seq, err)
	}
	return nil
}

// Close flushes outstanding publishes and stops the topic's goroutines.
func (s *PubSubSink) Close(context.Context) error {
	s.topic.Stop()
	return nil
}
