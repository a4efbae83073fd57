package progress

import (
	"strconv"
	"strings"
)

// Field is a scalar activity attribute: an integer, or text when IsText is set.
type Field struct {
	Num    int64
	Text   string
	IsText bool
}

// IntField returns an integer Field.
func IntField(n int64) Field {
	return Field{Num: n}
}

// TextField returns a string Field.
func TextField(s string) Field {
	return Field{Text: s, IsText: true}
}

func (f Field) value() any {
	if f.IsText {
		return sanitize(f.Text)
	}
	return f.Num
}

// Fields maps attribute names to scalar values.
type Fields map[string]Field

// Clone returns an independent copy of f. A nil map clones to an empty one.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Activity is a tracked unit of in-progress work.
type Activity struct {
	Type       ActivityType
	Text       string
	Fields     Fields
	Parent     ActivityID
	IsComplete bool
}

// Position locates a message in a source file.
type Position struct {
	Line   int
	Column int
	File   string
}

func (p *Position) clone() *Position {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// Trace is one frame of an error trace.
type Trace struct {
	Raw string
	Pos *Position
}

// Message is one logged event.
type Message struct {
	Level Level
	Pos   *Position
	Trace []Trace
	// Msg is the formatted display text; Raw is the unformatted text.
	Msg string
	Raw string
}

// ErrorInfo is a structured error that can be recorded as a Message. Traces
// are ordered outermost first.
type ErrorInfo struct {
	Level  Level
	Msg    string
	Raw    string
	Pos    *Position
	Traces []Trace
}

// Error implements the error interface.
func (e ErrorInfo) Error() string {
	return e.Msg
}

// State is the mutable progress record. Entries are only ever added or
// updated in place; nothing is removed for the lifetime of a Publisher.
// State is not safe for concurrent use; the Publisher guards it.
type State struct {
	activities map[ActivityID]*Activity
	messages   []Message
}

func newState() *State {
	return &State{activities: make(map[ActivityID]*Activity)}
}

func (s *State) appendMessage(m Message) {
	s.messages = append(s.messages, m)
}

func (s *State) putActivity(id ActivityID, a Activity) {
	a.Fields = a.Fields.Clone()
	s.activities[id] = &a
}

func (s *State) activity(id ActivityID) (*Activity, bool) {
	a, ok := s.activities[id]
	return a, ok
}

// snapshot renders the state as a freshly allocated tree that shares nothing
// with the live model.
func (s *State) snapshot() map[string]any {
	activities := make(map[string]any, len(s.activities))
	for id, a := range s.activities {
		activities[strconv.FormatUint(uint64(id), 10)] = a.tree()
	}
	messages := make([]any, 0, len(s.messages))
	for i := range s.messages {
		messages = append(messages, s.messages[i].tree())
	}
	return map[string]any{
		"activities": activities,
		"messages":   messages,
	}
}

func (a *Activity) tree() map[string]any {
	fields := make(map[string]any, len(a.Fields))
	for name, f := range a.Fields {
		fields[sanitize(name)] = f.value()
	}
	return map[string]any{
		"is_complete": a.IsComplete,
		"type":        int64(a.Type),
		"text":        sanitize(a.Text),
		"fields":      fields,
		"parent":      uint64(a.Parent),
	}
}

func (m *Message) tree() map[string]any {
	out := map[string]any{
		"level":   int64(m.Level),
		"msg":     sanitize(m.Msg),
		"raw_msg": sanitize(m.Raw),
	}
	putPosition(out, m.Pos)
	if len(m.Trace) > 0 {
		traces := make([]any, 0, len(m.Trace))
		for _, t := range m.Trace {
			entry := map[string]any{"raw_msg": sanitize(t.Raw)}
			putPosition(entry, t.Pos)
			traces = append(traces, entry)
		}
		out["trace"] = traces
	}
	return out
}

func putPosition(dst map[string]any, pos *Position) {
	if pos == nil {
		return
	}
	dst["line"] = int64(pos.Line)
	dst["column"] = int64(pos.Column)
	dst["file"] = sanitize(pos.File)
}

// sanitize replaces invalid UTF-8 so the snapshot matches what the wire
// carries after encoding.
func sanitize(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}
