package guard

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Normalize canonicalizes a unit of work for fingerprinting: lower-cased,
// whitespace collapsed, trimmed. Two requests that differ only in casing or
// spacing are the same work.
func Normalize(work string) string {
	return strings.Join(strings.Fields(strings.ToLower(work)), " ")
}

// Fingerprint returns the duplicate-detection hash of a unit of work.
func Fingerprint(work string) string {
	sum := sha256.Sum256([]byte(Normalize(work)))
	return hex.EncodeToString(sum[:8])
}
