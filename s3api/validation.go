package s3api

import (
	"strings"

	"github.com/oddbit-project/s3browser/apperr"
)

const maxObjectKeyLength = 1024

// SanitizeKey validates an object key before it reaches S3. Empty keys,
// leading slashes, traversal segments and control characters are
// rejected; the key is returned unchanged when valid. Duplicate slashes
// pass so pre-existing pathological keys stay reachable.
func SanitizeKey(key string) (string, error) {
	if key == "" {
		return "", apperr.New(apperr.InvalidInput, "object key cannot be empty")
	}
	if len(key) > maxObjectKeyLength {
		return "", apperr.Newf(apperr.InvalidInput, "object key exceeds %d characters", maxObjectKeyLength)
	}
	if strings.HasPrefix(key, "/") {
		return "", apperr.New(apperr.InvalidInput, "object key cannot start with /")
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." {
			return "", apperr.New(apperr.InvalidInput, "object key cannot contain traversal segments")
		}
	}
	if containsControlChars(key) {
		return "", apperr.New(apperr.InvalidInput, "object key cannot contain control characters")
	}
	return key, nil
}

// SanitizeDestinationKey validates a key the gateway is about to create
// (copy and move destinations, uploads). On top of the SanitizeKey
// rules it rejects duplicate slashes, which existing objects may carry
// but new ones must not.
func SanitizeDestinationKey(key string) (string, error) {
	key, err := SanitizeKey(key)
	if err != nil {
		return "", err
	}
	if strings.Contains(key, "//") {
		return "", apperr.New(apperr.InvalidInput, "object key cannot contain duplicate slashes")
	}
	return key, nil
}

// SanitizeFolderPath validates a new folder path and normalizes it to
// end with a single /
func SanitizeFolderPath(path string) (string, error) {
	trimmed := strings.TrimSuffix(path, "/")
	if trimmed == "" {
		return "", apperr.New(apperr.InvalidInput, "folder path cannot be empty")
	}
	if _, err := SanitizeDestinationKey(trimmed); err != nil {
		return "", err
	}
	return trimmed + "/", nil
}

// SanitizePrefix validates a listing prefix; the empty prefix is the
// bucket root, any other prefix must pass key validation and end with /
func SanitizePrefix(prefix string) (string, error) {
	if prefix == "" {
		return "", nil
	}
	trimmed := strings.TrimSuffix(prefix, "/")
	if _, err := SanitizeKey(trimmed); err != nil {
		return "", err
	}
	return trimmed + "/", nil
}

func containsControlChars(key string) bool {
	for _, r := range key {
		if r < 0x20 || r == 0x7F {
			return true
		}
	}
	return false
}
