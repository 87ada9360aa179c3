package secure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"
	"sync"

	"github.com/oddbit-project/s3browser/utils"
)

const (
	ErrInvalidKeyLength     = utils.Error("key length must be 32 bytes")
	ErrDataTooShort         = utils.Error("data too short")
	ErrAuthenticationFailed = utils.Error("authentication failed")
)

// AES256GCM encrypts and decrypts byte slices; ciphertexts are
// nonce || sealed data, with a fresh random nonce per encryption
type AES256GCM interface {
	Encrypt(data []byte) ([]byte, error)
	Decrypt(data []byte) ([]byte, error)
	Clear()
}

type aes256Gcm struct {
	key []byte
	mu  sync.Mutex
}

// NewAES256GCM creates a AES256GCM object; key must be exactly 32 bytes
func NewAES256GCM(key []byte) (AES256GCM, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKeyLength
	}
	result := &aes256Gcm{
		key: make([]byte, len(key)),
	}
	copy(result.key, key)
	return result, nil
}

// Clear zeroes the key material
func (a *aes256Gcm) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.key {
		a.key[i] = 0
	}
	a.key = nil
}

func (a *aes256Gcm) aead() (cipher.AEAD, error) {
	if len(a.key) != 32 {
		return nil, ErrInvalidKeyLength
	}
	block, err := aes.NewCipher(a.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt encrypts data using AES256-GCM and prepends the nonce
func (a *aes256Gcm) Encrypt(data []byte) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	gcm, err := a.aead()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return append(nonce, gcm.Seal(nil, nonce, data, nil)...), nil
}

// Decrypt decrypts data produced by Encrypt; a tag mismatch returns
// ErrAuthenticationFailed
func (a *aes256Gcm) Decrypt(data []byte) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	gcm, err := a.aead()
	if err != nil {
		return nil, err
	}

	if len(data) < gcm.NonceSize()+gcm.Overhead() {
		return nil, ErrDataTooShort
	}

	nonce := data[:gcm.NonceSize()]
	plaintext, err := gcm.Open(nil, nonce, data[gcm.NonceSize():], nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}
