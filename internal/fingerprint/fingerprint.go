// Package fingerprint computes the content identity keys used for
// deduplication and caching.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// MaxContentLength bounds the text that participates in a fingerprint.
// The extension truncates captured pages to the same length, so hashing
// more here would make extension-side and server-side keys diverge.
const MaxContentLength = 10000

// Hash computes the SHA-256 hex digest of content. It is deterministic and
// total; it does NOT normalize. Callers producing a fingerprint for logical
// page content must run the text through Normalize first, identically on
// every path, or cache keys silently diverge.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Normalize collapses runs of whitespace to a single space, trims, and
// truncates to maxLen runes. A maxLen <= 0 means MaxContentLength.
func Normalize(content string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = MaxContentLength
	}

	var b strings.Builder
	b.Grow(len(content))

	inSpace := false
	for _, r := range content {
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if inSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		inSpace = false
		b.WriteRune(r)
	}

	normalized := b.String()
	runes := []rune(normalized)
	if len(runes) > maxLen {
		normalized = string(runes[:maxLen])
	}

	return normalized
}
