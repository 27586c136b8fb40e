// Package checksum fingerprints archived layout documents for change
// detection.
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

// NormalizeETag strips the quotes S3 wraps around ETag values so they
// compare cleanly against stored checksums.
func NormalizeETag(etag string) string {
	return strings.Trim(etag, `"`)
}
