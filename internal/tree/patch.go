package tree

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/goccy/go-json"
)

// Supported patch operation names.
const (
	OpAdd     = "add"
	OpRemove  = "remove"
	OpReplace = "replace"
)

// ErrPath reports a patch operation whose path does not resolve against the
// document it is applied to.
var ErrPath = errors.New("invalid patch path")

// Op is a single path-addressed edit.
type Op struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// MarshalJSON omits value for remove and always writes it otherwise, null
// included.
func (o Op) MarshalJSON() ([]byte, error) {
	if o.Op == OpRemove {
		return json.Marshal(struct {
			Op   string `json:"op"`
			Path string `json:"path"`
		}{o.Op, o.Path})
	}
	type plain Op
	return json.Marshal(plain(o))
}

// Patch is an ordered list of operations. Operations must be applied in order.
type Patch []Op

// Diff returns the operations that transform a into b. The result is
// deterministic and empty when Equal(a, b) holds. Mappings and sequences are
// descended into so that a small change yields a small patch.
func Diff(a, b any) Patch {
	var ops Patch
	diffAt("", a, b, &ops)
	return ops
}

func diffAt(path string, a, b any, ops *Patch) {
	switch av := a.(type) {
	case map[string]any:
		if bv, ok := b.(map[string]any); ok {
			diffMaps(path, av, bv, ops)
			return
		}
	case []any:
		if bv, ok := b.([]any); ok {
			diffSlices(path, av, bv, ops)
			return
		}
	}
	if !Equal(a, b) {
		*ops = append(*ops, Op{Op: OpReplace, Path: path, Value: Clone(b)})
	}
}

func diffMaps(path string, a, b map[string]any, ops *Patch) {
	for _, k := range sortedKeys(a) {
		if _, ok := b[k]; !ok {
			*ops = append(*ops, Op{Op: OpRemove, Path: Pointer(path, k)})
		}
	}
	for _, k := range sortedKeys(b) {
		achild, ok := a[k]
		if !ok {
			*ops = append(*ops, Op{Op: OpAdd, Path: Pointer(path, k), Value: Clone(b[k])})
			continue
		}
		diffAt(Pointer(path, k), achild, b[k], ops)
	}
}

func diffSlices(path string, a, b []any, ops *Patch) {
	common := min(len(a), len(b))
	for i := 0; i < common; i++ {
		diffAt(Pointer(path, strconv.Itoa(i)), a[i], b[i], ops)
	}
	for i := common; i < len(b); i++ {
		*ops = append(*ops, Op{Op: OpAdd, Path: Pointer(path, strconv.Itoa(i)), Value: Clone(b[i])})
	}
	for i := len(a) - 1; i >= common; i-- {
		*ops = append(*ops, Op{Op: OpRemove, Path: Pointer(path, strconv.Itoa(i))})
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Apply returns the result of applying patch to a deep copy of doc. The input
// document is never modified.
func Apply(doc any, patch Patch) (any, error) {
	out := Clone(doc)
	for i, op := range patch {
		tokens, err := ParsePointer(op.Path)
		if err != nil {
			return nil, fmt.Errorf("op %d: %w", i, err)
		}
		out, err = applyAt(out, tokens, op)
		if err != nil {
			return nil, fmt.Errorf("op %d (%s %s): %w", i, op.Op, op.Path, err)
		}
	}
	return out, nil
}

func applyAt(node any, tokens []string, op Op) (any, error) {
	if len(tokens) == 0 {
		switch op.Op {
		case OpAdd, OpReplace:
			return Clone(op.Value), nil
		case OpRemove:
			return nil, pathErrorf(op.Path, "cannot remove the document root")
		default:
			return nil, fmt.Errorf("unsupported op %q", op.Op)
		}
	}
	switch n := node.(type) {
	case map[string]any:
		return applyMap(n, tokens, op)
	case []any:
		return applySlice(n, tokens, op)
	default:
		return nil, pathErrorf(op.Path, "cannot descend into a scalar")
	}
}

func applyMap(m map[string]any, tokens []string, op Op) (any, error) {
	key := tokens[0]
	child, found := m[key]
	if len(tokens) > 1 {
		if !found {
			return nil, pathErrorf(op.Path, "missing key %q", key)
		}
		next, err := applyAt(child, tokens[1:], op)
		if err != nil {
			return nil, err
		}
		m[key] = next
		return m, nil
	}
	switch op.Op {
	case OpAdd:
		m[key] = Clone(op.Value)
	case OpReplace:
		if !found {
			return nil, pathErrorf(op.Path, "missing key %q", key)
		}
		m[key] = Clone(op.Value)
	case OpRemove:
		if !found {
			return nil, pathErrorf(op.Path, "missing key %q", key)
		}
		delete(m, key)
	default:
		return nil, fmt.Errorf("unsupported op %q", op.Op)
	}
	return m, nil
}

func applySlice(s []any, tokens []string, op Op) (any, error) {
	last := len(tokens) == 1
	if last && op.Op == OpAdd && tokens[0] == "-" {
		return append(s, Clone(op.Value)), nil
	}
	idx, err := strconv.Atoi(tokens[0])
	if err != nil || idx < 0 {
		return nil, pathErrorf(op.Path, "bad index %q", tokens[0])
	}
	if !last {
		if idx >= len(s) {
			return nil, pathErrorf(op.Path, "index %d out of range", idx)
		}
		next, err := applyAt(s[idx], tokens[1:], op)
		if err != nil {
			return nil, err
		}
		s[idx] = next
		return s, nil
	}
	switch op.Op {
	case OpAdd:
		if idx > len(s) {
			return nil, pathErrorf(op.Path, "index %d out of range", idx)
		}
		s = append(s, nil)
		copy(s[idx+1:], s[idx:])
		s[idx] = Clone(op.Value)
	case OpReplace:
		if idx >= len(s) {
			return nil, pathErrorf(op.Path, "index %d out of range", idx)
		}
		s[idx] = Clone(op.Value)
	case OpRemove:
		if idx >= len(s) {
			return nil, pathErrorf(op.Path, "index %d out of range", idx)
		}
		s = append(s[:idx], s[idx+1:]...)
	default:
		return nil, fmt.Errorf("unsupported op %q", op.Op)
	}
	return s, nil
}

func pathErrorf(path, format string, args ...any) error {
	return fmt.Errorf("%w %q: %s", ErrPath, path, fmt.Sprintf(format, args...))
}
