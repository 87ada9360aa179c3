package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddbit-project/s3browser/apperr"
)

func TestListWindowFoldersAndFiles(t *testing.T) {
	svc := NewListingService(nil)
	fake := newFakeS3()
	fake.put("dir/", nil, "application/x-directory")
	fake.put("dir/a.txt", []byte("a"), "text/plain")
	fake.put("dir/sub/", nil, "application/x-directory")
	fake.put("dir/sub/b.txt", []byte("b"), "text/plain")

	window, err := svc.ListWindow(context.Background(), fake, "b", "dir/", "", false)
	require.NoError(t, err)

	keys := make(map[string]bool)
	for _, obj := range window.Objects {
		keys[obj.Key] = obj.IsFolder
	}
	// the sub-prefix appears as one folder row, the prefix placeholder
	// itself is not a row
	assert.Equal(t, map[string]bool{
		"dir/sub/":  true,
		"dir/a.txt": false,
	}, keys)
}

func TestListWindowNames(t *testing.T) {
	svc := NewListingService(nil)
	fake := newFakeS3()
	fake.put("dir/sub/", nil, "application/x-directory")
	fake.put("dir/a.txt", []byte("a"), "text/plain")

	window, err := svc.ListWindow(context.Background(), fake, "b", "dir/", "", false)
	require.NoError(t, err)

	names := make(map[string]string)
	for _, obj := range window.Objects {
		names[obj.Key] = obj.Name
	}
	assert.Equal(t, "sub", names["dir/sub/"])
	assert.Equal(t, "a.txt", names["dir/a.txt"])
}

func TestEnumeratePrefixRecursive(t *testing.T) {
	svc := NewListingService(nil)
	fake := newFakeS3()
	fake.put("dir/", nil, "application/x-directory")
	fake.put("dir/a", []byte("a"), "text/plain")
	fake.put("dir/sub/", nil, "application/x-directory")
	fake.put("dir/sub/deep/c", []byte("c"), "text/plain")
	fake.put("other/x", []byte("x"), "text/plain")

	keys, complete, err := svc.EnumeratePrefix(context.Background(), fake, "b", "dir/", nil)
	require.NoError(t, err)
	assert.True(t, complete)
	assert.ElementsMatch(t, []string{"dir/", "dir/a", "dir/sub/", "dir/sub/deep/c"}, keys)
}

func TestEnumeratePrefixPromptStops(t *testing.T) {
	svc := NewListingService(nil)
	fake := newFakeS3()
	for i := 0; i < 600; i++ {
		fake.put(fmt.Sprintf("dir/f-%04d", i), nil, "text/plain")
	}

	prompted := 0
	keys, complete, err := svc.EnumeratePrefix(context.Background(), fake, "b", "dir/",
		func(_ context.Context, collected int) (bool, error) {
			prompted++
			assert.GreaterOrEqual(t, collected, 500)
			return false, nil
		})
	require.NoError(t, err)
	assert.False(t, complete)
	assert.Equal(t, 1, prompted)
	assert.NotEmpty(t, keys)
}

func TestEnumeratePrefixCancellation(t *testing.T) {
	svc := NewListingService(nil)
	fake := newFakeS3()
	fake.put("dir/a", nil, "text/plain")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := svc.EnumeratePrefix(ctx, fake, "b", "dir/", nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Cancelled))
}

func TestListWindowRejectsTraversalPrefix(t *testing.T) {
	svc := NewListingService(nil)
	fake := newFakeS3()

	_, err := svc.ListWindow(context.Background(), fake, "b", "a/../b", "", false)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.InvalidInput))
}

func TestBucketInfoBestEffort(t *testing.T) {
	svc := NewBucketInfoService(nil)
	fake := newFakeS3()

	info, err := svc.Inspect(context.Background(), fake, "b")
	require.NoError(t, err)
	require.NotNil(t, info.Versioning)
	assert.Equal(t, "Enabled", info.Versioning.Status)
	require.NotNil(t, info.Encryption)
	assert.Equal(t, "AES256", info.Encryption.Algorithm)
}
