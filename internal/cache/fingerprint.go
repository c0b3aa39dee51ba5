package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint derives the stable cache key for a media locator. The
// same locator must always hash to the same key as it is used both to
// look entries up and to name them on disk, so callers must not mutate
// the locator between resolution and storage.
func Fingerprint(locator string) string {
	sum := sha256.Sum256([]byte(locator))
	return hex.EncodeToString(sum[:])
}
