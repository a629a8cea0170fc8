package checksum

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/cespare/xxhash/v2"
)

// Sum64 returns the xxhash digest of data. Used for fast byte-identity
// checks between a freshly read file and its cached record.
func Sum64(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// Key returns the hex-encoded SHA-256 digest of data. Used as the stable
// key for the persistent conversion cache.
func Key(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
