package secure

import (
	"golang.org/x/crypto/argon2"
)

// KDF parameters; changing these invalidates every key derived so far
const (
	KdfMemory      = 64 * 1024 // KiB
	KdfIterations  = 4
	KdfParallelism = 2
	KdfSaltLength  = 16
	KdfKeyLength   = 32
)

// DeriveKey derives a 32-byte data key from a master secret and salt
// using argon2id
func DeriveKey(masterSecret []byte, salt []byte) []byte {
	return argon2.IDKey(masterSecret, salt, KdfIterations, KdfMemory, KdfParallelism, KdfKeyLength)
}
