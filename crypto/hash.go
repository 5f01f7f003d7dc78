package crypto

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Hash returns the SHA-256 (256-bit) hash of data as a lowercase hex string.
// Used for microblock/transaction content hashes.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// HashBytes returns the raw SHA-256 bytes of data.
func HashBytes(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}

// Hash512 returns the BLAKE2b-512 (512-bit) hash of data as a lowercase hex
// string. Used where a wider commitment is needed: macroblock merkle roots
// and VRF seed/output expansion.
func Hash512(data []byte) string {
	h := blake2b.Sum512(data)
	return hex.EncodeToString(h[:])
}

// HashBytes512 returns the raw BLAKE2b-512 bytes of data.
func HashBytes512(data []byte) []byte {
	h := blake2b.Sum512(data)
	return h[:]
}
