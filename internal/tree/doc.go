// Package tree implements structural equality, diffing, and patching over the
// JSON-shaped values that make up a state snapshot: mappings
// (map[string]any), ordered sequences ([]any), and scalars (string, int64,
// bool). Patches use RFC 6902 operation names and RFC 6901 paths so that any
// JSON Patch client can replay them.
package tree
