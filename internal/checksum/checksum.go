// Package checksum fingerprints capture content for optimistic concurrency and
// enrichment snapshots.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// String returns the digest of a content string.
func String(s string) string {
	return Sum([]byte(s))
}

// Matches reports whether want is empty or equals the digest of s.
// An empty want means the caller did not ask for a version check.
func Matches(s, want string) bool {
	return want == "" || String(s) == want
}
