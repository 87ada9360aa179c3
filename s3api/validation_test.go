package s3api

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddbit-project/s3browser/apperr"
)

func TestSanitizeKeyValid(t *testing.T) {
	for _, key := range []string{
		"file.txt",
		"dir/file.txt",
		"dir/sub/deep/file.txt",
		"dir with spaces/file (1).txt",
		"folder/",
		"..leading-dots-are-fine",
		"trailing-dots..",
		"a//pathological-but-pre-existing",
	} {
		result, err := SanitizeKey(key)
		require.NoError(t, err, key)
		assert.Equal(t, key, result)
	}
}

func TestSanitizeKeyRejected(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"leading slash":  "/etc/passwd",
		"traversal":      "a/../b",
		"traversal only": "..",
		"nul byte":       "a\x00b",
		"control char":   "a\x1bb",
		"delete char":    "a\x7fb",
		"oversized":      strings.Repeat("k", maxObjectKeyLength+1),
	}
	for name, key := range cases {
		_, err := SanitizeKey(key)
		require.Error(t, err, name)
		assert.True(t, apperr.Is(err, apperr.InvalidInput), name)
	}
}

func TestSanitizeDestinationKey(t *testing.T) {
	result, err := SanitizeDestinationKey("dir/file.txt")
	require.NoError(t, err)
	assert.Equal(t, "dir/file.txt", result)

	// keys the gateway creates must not carry duplicate slashes, even
	// though existing objects with them stay addressable
	_, err = SanitizeDestinationKey("a//b")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.InvalidInput))

	_, err = SanitizeDestinationKey("a/../b")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.InvalidInput))
}

func TestSanitizeFolderPath(t *testing.T) {
	result, err := SanitizeFolderPath("reports")
	require.NoError(t, err)
	assert.Equal(t, "reports/", result)

	result, err = SanitizeFolderPath("reports/2026/")
	require.NoError(t, err)
	assert.Equal(t, "reports/2026/", result)

	for _, path := range []string{"", "/", "a//b", "a/../b"} {
		_, err = SanitizeFolderPath(path)
		require.Error(t, err, path)
		assert.True(t, apperr.Is(err, apperr.InvalidInput), path)
	}
}

func TestSanitizePrefix(t *testing.T) {
	result, err := SanitizePrefix("")
	require.NoError(t, err)
	assert.Equal(t, "", result)

	result, err = SanitizePrefix("dir")
	require.NoError(t, err)
	assert.Equal(t, "dir/", result)

	result, err = SanitizePrefix("dir/sub/")
	require.NoError(t, err)
	assert.Equal(t, "dir/sub/", result)

	_, err = SanitizePrefix("a/../b/")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.InvalidInput))

	_, err = SanitizePrefix("/rooted/")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.InvalidInput))
}
