package ingest

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint computes the content-addressable identity of a document: the
// SHA-256 of its raw text, hex-encoded. It is the sole key used for
// duplicate detection, so two documents share a fingerprint exactly when
// their text matches byte for byte.
func Fingerprint(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
