package services

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddbit-project/s3browser/apperr"
	"github.com/oddbit-project/s3browser/s3api"
)

func TestInitiateComputesParts(t *testing.T) {
	svc := NewUploadService(nil)
	fake := newFakeS3()

	// 25 MiB → 3 parts of 10 MiB
	result, err := svc.Initiate(context.Background(), fake, 1, "b", "file.bin", "application/octet-stream", 26214400)
	require.NoError(t, err)
	assert.Equal(t, int64(10485760), result.PartSize)
	assert.Equal(t, 3, result.TotalParts)
	assert.Equal(t, "file.bin", result.Key)
	assert.NotEmpty(t, result.UploadID)
	assert.Equal(t, 1, svc.PendingUploads())
}

func TestInitiateRejectsOversizedFile(t *testing.T) {
	svc := NewUploadService(nil)
	fake := newFakeS3()

	_, err := svc.Initiate(context.Background(), fake, 1, "b", "big", "", MaxUploadSize+1)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.InvalidInput))
	assert.Zero(t, svc.PendingUploads())
}

func TestInitiateRejectsTraversalKey(t *testing.T) {
	svc := NewUploadService(nil)
	fake := newFakeS3()

	_, err := svc.Initiate(context.Background(), fake, 1, "b", "../escape", "", 1024)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.InvalidInput))
}

func TestUploadPartOwnership(t *testing.T) {
	svc := NewUploadService(nil)
	fake := newFakeS3()

	result, err := svc.Initiate(context.Background(), fake, 1, "b", "file", "", 1024)
	require.NoError(t, err)

	// another session's connection cannot touch the upload
	_, err = svc.UploadPart(context.Background(), fake, 2, "b", result.UploadID, "file", 1, bytes.NewReader([]byte("x")), 1)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Forbidden))

	_, err = svc.UploadPart(context.Background(), fake, 1, "b", "unknown-id", "file", 1, bytes.NewReader([]byte("x")), 1)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestUploadPartNumberBounds(t *testing.T) {
	svc := NewUploadService(nil)
	fake := newFakeS3()

	result, err := svc.Initiate(context.Background(), fake, 1, "b", "file", "", 1024)
	require.NoError(t, err)

	for _, number := range []int{0, -1, MaxPartNumber + 1} {
		_, err = svc.UploadPart(context.Background(), fake, 1, "b", result.UploadID, "file", number, bytes.NewReader(nil), 0)
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.InvalidInput))
	}
}

func TestCompleteSortsAndDeduplicates(t *testing.T) {
	svc := NewUploadService(nil)
	fake := newFakeS3()

	result, err := svc.Initiate(context.Background(), fake, 1, "b", "file", "", 26214400)
	require.NoError(t, err)

	// out of order, with a duplicate part number whose last etag wins
	key, err := svc.Complete(context.Background(), fake, 1, "b", result.UploadID, "file", []s3api.CompletedPart{
		{PartNumber: 3, ETag: "e3"},
		{PartNumber: 1, ETag: "stale"},
		{PartNumber: 2, ETag: "e2"},
		{PartNumber: 1, ETag: "e1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "file", key)

	completed := fake.completedParts[result.UploadID]
	require.Len(t, completed, 3)
	assert.Equal(t, []s3api.CompletedPart{
		{PartNumber: 1, ETag: "e1"},
		{PartNumber: 2, ETag: "e2"},
		{PartNumber: 3, ETag: "e3"},
	}, completed)

	// completing drops the registry entry
	assert.Zero(t, svc.PendingUploads())
}

func TestCompleteRequiresParts(t *testing.T) {
	svc := NewUploadService(nil)
	fake := newFakeS3()

	result, err := svc.Initiate(context.Background(), fake, 1, "b", "file", "", 1024)
	require.NoError(t, err)

	_, err = svc.Complete(context.Background(), fake, 1, "b", result.UploadID, "file", nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.InvalidInput))
}

func TestAbortIsIdempotent(t *testing.T) {
	svc := NewUploadService(nil)
	fake := newFakeS3()

	result, err := svc.Initiate(context.Background(), fake, 1, "b", "file", "", 1024)
	require.NoError(t, err)

	require.NoError(t, svc.Abort(context.Background(), fake, 1, "b", result.UploadID, "file"))
	assert.Len(t, fake.aborted, 1)

	// second abort finds no registry entry and succeeds silently
	require.NoError(t, svc.Abort(context.Background(), fake, 1, "b", result.UploadID, "file"))
	assert.Len(t, fake.aborted, 1)
}

func TestPutSingleStreams(t *testing.T) {
	svc := NewUploadService(nil)
	fake := newFakeS3()

	key, err := svc.PutSingle(context.Background(), fake, "b", "doc.txt", "text/plain", bytes.NewReader([]byte("hello")), 5)
	require.NoError(t, err)
	assert.Equal(t, "doc.txt", key)
	assert.Equal(t, []byte("hello"), fake.objects["doc.txt"])
}
