// Package sha256 computes content digests for uploaded archives.
package sha256

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// Prefix labels digests produced by this package.
const Prefix = "sha256:"

// Digest returns the "sha256:<hex>" digest of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return Prefix + hex.EncodeToString(sum[:])
}

// Verify reports whether data matches digest. The prefix is optional and the
// hex part is case-insensitive.
func Verify(data []byte, digest string) bool {
	want := strings.ToLower(strings.TrimPrefix(digest, Prefix))
	got := strings.TrimPrefix(Digest(data), Prefix)
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
