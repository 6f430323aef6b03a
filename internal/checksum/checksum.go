// Package checksum derives the content versions used for optimistic
// concurrency on document edits.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ETag returns Sum as a quoted HTTP entity tag.
func ETag(data []byte) string {
	return `"` + Sum(data) + `"`
}

// Match reports whether an If-Match value accepts data. An empty value or
// "*" accepts anything; quotes and a weak prefix are ignored.
func Match(ifMatch string, data []byte) bool {
	v := strings.TrimSpace(ifMatch)
	if v == "" || v == "*" {
		return true
	}
	v = strings.TrimPrefix(v, "W/")
	return strings.Trim(v, `"`) == Sum(data)
}
