// Package replica rebuilds publisher state on the consuming side of a frame
// stream. The first frame replaces the whole value; every later frame is a
// patch applied in arrival order.
package replica

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/valyala/fastjson"

	"github.com/JakeFAU/difflog/internal/progress"
	"github.com/JakeFAU/difflog/internal/tree"
)

// ErrNotFrame reports a line that does not carry the frame prefix, such as a
// warning forwarded on the same sink.
var ErrNotFrame = errors.New("line is not a state frame")

// ErrNoBaseline reports a patch frame received before any baseline.
var ErrNoBaseline = errors.New("patch frame received before baseline")

const maxLineBytes = 64 << 20

// Replica holds the reconstructed state. It is not safe for concurrent use.
type Replica struct {
	parser fastjson.Parser
	state  any
	frames int
}

// New returns an empty Replica awaiting its baseline frame.
func New() *Replica {
	return &Replica{}
}

// Apply consumes one line. Lines without the frame prefix return ErrNotFrame
// and leave the replica unchanged.
func (r *Replica) Apply(line string) error {
	payload, ok := strings.CutPrefix(strings.TrimRight(line, "\r\n"), progress.FramePrefix)
	if !ok {
		return ErrNotFrame
	}
	v, err := r.parser.Parse(payload)
	if err != nil {
		return fmt.Errorf("parse frame %d: %w", r.frames, err)
	}
	if r.frames == 0 {
		if v.Type() == fastjson.TypeArray {
			return ErrNoBaseline
		}
		if v.Type() != fastjson.TypeObject {
			return fmt.Errorf("baseline frame must be an object, got %s", v.Type())
		}
		r.state = toTree(v)
		r.frames++
		return nil
	}
	if v.Type() != fastjson.TypeArray {
		return fmt.Errorf("patch frame must be an array, got %s", v.Type())
	}
	patch, err := toPatch(v)
	if err != nil {
		return fmt.Errorf("decode patch frame %d: %w", r.frames, err)
	}
	next, err := tree.Apply(r.state, patch)
	if err != nil {
		return fmt.Errorf("apply patch frame %d: %w", r.frames, err)
	}
	r.state = next
	r.frames++
	return nil
}

// ApplyPatch applies an already decoded patch. It fails with ErrNoBaseline
// until a baseline frame has been applied.
func (r *Replica) ApplyPatch(patch tree.Patch) error {
	if r.frames == 0 {
		return ErrNoBaseline
	}
	next, err := tree.Apply(r.state, patch)
	if err != nil {
		return fmt.Errorf("apply patch: %w", err)
	}
	r.state = next
	r.frames++
	return nil
}

// State returns a copy of the reconstructed value, or nil before the baseline.
func (r *Replica) State() any {
	return tree.Clone(r.state)
}

// Frames reports how many frames have been applied.
func (r *Replica) Frames() int {
	return r.frames
}

// Read replays every frame in r, skipping non-frame lines.
func Read(r io.Reader) (*Replica, error) {
	rep := New()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if err := rep.Apply(scanner.Text()); err != nil && !errors.Is(err, ErrNotFrame) {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read frames: %w", err)
	}
	return rep, nil
}

func toPatch(v *fastjson.Value) (tree.Patch, error) {
	items, err := v.Array()
	if err != nil {
		return nil, err
	}
	patch := make(tree.Patch, 0, len(items))
	for i, item := range items {
		op := string(item.GetStringBytes("op"))
		if op == "" {
			return nil, fmt.Errorf("op %d: missing op", i)
		}
		if !item.Exists("path") {
			return nil, fmt.Errorf("op %d: missing path", i)
		}
		entry := tree.Op{Op: op, Path: string(item.GetStringBytes("path"))}
		if val := item.Get("value"); val != nil {
			entry.Value = toTree(val)
		} else if op != tree.OpRemove {
			return nil, fmt.Errorf("op %d: %s without value", i, op)
		}
		patch = append(patch, entry)
	}
	return patch, nil
}

// toTree copies a parsed value out of the parser's buffers. Integral numbers
// become int64, or uint64 above the int64 range, to match in-memory snapshots.
func toTree(v *fastjson.Value) any {
	switch v.Type() {
	case fastjson.TypeObject:
		obj := v.GetObject()
		out := make(map[string]any, obj.Len())
		obj.Visit(func(key []byte, child *fastjson.Value) {
			out[string(key)] = toTree(child)
		})
		return out
	case fastjson.TypeArray:
		items := v.GetArray()
		out := make([]any, 0, len(items))
		for _, item := range items {
			out = append(out, toTree(item))
		}
		return out
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeNumber:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if n, err := v.Uint64(); err == nil {
			return n
		}
		return v.GetFloat64()
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	default:
		return nil
	}
}
