package tree

import (
	"strings"
)

var (
	pointerEscaper   = strings.NewReplacer("~", "~0", "/", "~1")
	pointerUnescaper = strings.NewReplacer("~1", "/", "~0", "~")
)

// Pointer appends one reference token to a JSON Pointer.
func Pointer(parent, token string) string {
	return parent + "/" + pointerEscaper.Replace(token)
}

// ParsePointer splits a JSON Pointer into unescaped reference tokens. The
// empty pointer addresses the whole document and yields no tokens.
func ParsePointer(ptr string) ([]string, error) {
	if ptr == "" {
		return nil, nil
	}
	if !strings.HasPrefix(ptr, "/") {
		return nil, pathErrorf(ptr, "pointer must start with '/'")
	}
	parts := strings.Split(ptr[1:], "/")
	for i, part := range parts {
		parts[i] = pointerUnescaper.Replace(part)
	}
	return parts, nil
}
