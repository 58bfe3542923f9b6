// Package checksum computes BLAKE3 digests. The atomic-commit journal
// stores one over its record stream, so Recover can detect a torn or
// corrupted journal without trusting length fields alone.
package checksum

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Size is the digest length in bytes.
const Size = 32

// Sum returns data's BLAKE3 digest.
func Sum(data []byte) [Size]byte {
	return blake3.Sum256(data)
}

// Hex returns data's BLAKE3 digest as a lowercase hex string, the same
// representation the teacher's content-addressed store uses for its own
// BLAKE3 pointers.
func Hex(data []byte) string {
	sum := Sum(data)
	return hex.EncodeToString(sum[:])
}

// Verify reports whether data's digest matches want.
func Verify(data []byte, want [Size]byte) bool {
	got := Sum(data)
	return got == want
}

// Fragment computes a digest over a fragment payload, its length byte and
// its terminal flag. core/bytestore does not store or check it: fragments
// carry no digest and Decode does not verify one.
func Fragment(payload []byte, length int, terminal bool) [Size]byte {
	tag := make([]byte, len(payload)+2)
	copy(tag, payload)
	tag[len(payload)] = byte(length)
	if terminal {
		tag[len(payload)+1] = 1
	}
	return Sum(tag)
}
