// Package admission implements the room-key digest scheme used to gate
// joins without ever storing or echoing a plaintext secret.
package admission

import (
	"crypto/sha256"
	"crypto/subtle"
)

// Digest is a SHA-256 digest of a room key. Rooms store only the digest;
// the plaintext key never appears in a Room value, a log line, or a wire
// frame.
type Digest [sha256.Size]byte

// HashSecret digests a plaintext room key at create-room time.
func HashSecret(secret string) Digest {
	return sha256.Sum256([]byte(secret))
}

// Verify reports whether candidate hashes to the same digest as want, using
// a constant-time comparison so join attempts can't be timed to learn
// anything about the stored key.
func Verify(want Digest, candidate string) bool {
	got := HashSecret(candidate)
	return subtle.ConstantTimeCompare(want[:], got[:]) == 1
}
