package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oddbit-project/s3browser/s3api"
)

// fakeS3 is an in-memory API implementation that records every call so
// tests can assert on batching, ordering and call counts
type fakeS3 struct {
	mu       sync.Mutex
	endpoint string

	// objects maps key to body; the fake serves a single bucket
	objects map[string][]byte
	meta    map[string]*s3api.ObjectMetadata

	deleteBatches [][]s3api.ObjectIdentifier
	deletes       []string
	copies        []string
	puts          []string

	uploadCounter  int
	uploadedParts  map[string][]int32
	completedParts map[string][]s3api.CompletedPart
	aborted        []string

	locationCalls int
	location      string

	copyErr   map[string]error
	deleteErr map[string]error

	// copyStarted receives one signal per copy begun; with copyGate set
	// copies block until the gate closes or the context ends
	copyStarted chan struct{}
	copyGate    chan struct{}
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		endpoint:       "https://s3.example.com",
		objects:        make(map[string][]byte),
		meta:           make(map[string]*s3api.ObjectMetadata),
		uploadedParts:  make(map[string][]int32),
		completedParts: make(map[string][]s3api.CompletedPart),
		copyErr:        make(map[string]error),
		deleteErr:      make(map[string]error),
		location:       "us-east-1",
	}
}

func (f *fakeS3) put(key string, body []byte, contentType string) {
	f.objects[key] = body
	f.meta[key] = &s3api.ObjectMetadata{
		ContentType: contentType,
		Size:        int64(len(body)),
		ETag:        fmt.Sprintf("etag-%s", key),
	}
}

func (f *fakeS3) sortedKeys() []string {
	keys := make([]string, 0, len(f.objects))
	for key := range f.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (f *fakeS3) ListBuckets(_ context.Context) ([]s3api.BucketEntry, error) {
	return []s3api.BucketEntry{{Name: "test-bucket"}}, nil
}

// ListObjectsV2 serves the in-memory key set with delimiter semantics
func (f *fakeS3) ListObjectsV2(_ context.Context, input s3api.ListInput) (*s3api.ListPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	page := &s3api.ListPage{}
	seenPrefixes := make(map[string]bool)
	for _, key := range f.sortedKeys() {
		if !strings.HasPrefix(key, input.Prefix) {
			continue
		}
		rest := key[len(input.Prefix):]
		if input.Delimiter != "" {
			// any delimiter after the prefix rolls the key into a common
			// prefix, trailing placeholders included, as S3 does
			idx := strings.Index(rest, input.Delimiter)
			if idx >= 0 {
				cp := input.Prefix + rest[:idx+1]
				if !seenPrefixes[cp] {
					seenPrefixes[cp] = true
					page.CommonPrefixes = append(page.CommonPrefixes, cp)
				}
				continue
			}
		}
		page.Objects = append(page.Objects, s3api.ObjectEntry{
			Key:  key,
			Size: int64(len(f.objects[key])),
		})
	}
	return page, nil
}

func (f *fakeS3) ListObjectVersions(ctx context.Context, input s3api.ListInput) (*s3api.ListPage, error) {
	return f.ListObjectsV2(ctx, input)
}

func (f *fakeS3) HeadObject(_ context.Context, _, key, _ string) (*s3api.ObjectMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if meta, ok := f.meta[key]; ok {
		return meta, nil
	}
	return nil, errNotFound(key)
}

func (f *fakeS3) GetObject(_ context.Context, _, key string) (io.ReadCloser, *s3api.ObjectMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.objects[key]
	if !ok {
		return nil, nil, errNotFound(key)
	}
	return io.NopCloser(bytes.NewReader(body)), f.meta[key], nil
}

func (f *fakeS3) PutObject(_ context.Context, _, key, contentType string, body io.Reader, _ int64) error {
	data, _ := io.ReadAll(body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, key)
	f.put(key, data, contentType)
	return nil
}

func (f *fakeS3) DeleteObject(_ context.Context, _, key, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.deleteErr[key]; ok {
		return err
	}
	f.deletes = append(f.deletes, key)
	delete(f.objects, key)
	return nil
}

func (f *fakeS3) DeleteObjects(_ context.Context, _ string, objects []s3api.ObjectIdentifier) (*s3api.BatchDeleteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := make([]s3api.ObjectIdentifier, len(objects))
	copy(batch, objects)
	f.deleteBatches = append(f.deleteBatches, batch)

	result := &s3api.BatchDeleteResult{}
	for _, obj := range objects {
		delete(f.objects, obj.Key)
		result.Deleted = append(result.Deleted, s3api.DeletedObject{
			Key:       obj.Key,
			VersionID: obj.VersionID,
		})
	}
	return result, nil
}

func (f *fakeS3) CopyObject(ctx context.Context, _, sourceKey, destinationKey, _ string) error {
	if f.copyStarted != nil {
		f.copyStarted <- struct{}{}
	}
	if f.copyGate != nil {
		select {
		case <-f.copyGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.copyErr[sourceKey]; ok {
		return err
	}
	f.copies = append(f.copies, sourceKey+" -> "+destinationKey)
	if body, ok := f.objects[sourceKey]; ok {
		f.put(destinationKey, body, f.meta[sourceKey].ContentType)
	}
	return nil
}

func (f *fakeS3) CreateMultipartUpload(_ context.Context, _, key, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadCounter++
	return fmt.Sprintf("upload-%d-%s", f.uploadCounter, key), nil
}

func (f *fakeS3) UploadPart(_ context.Context, _, _, uploadID string, partNumber int32, body io.Reader, _ int64) (string, error) {
	_, _ = io.ReadAll(body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadedParts[uploadID] = append(f.uploadedParts[uploadID], partNumber)
	return fmt.Sprintf("etag-%d", partNumber), nil
}

func (f *fakeS3) CompleteMultipartUpload(_ context.Context, _, _, uploadID string, parts []s3api.CompletedPart) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completedParts[uploadID] = parts
	return nil
}

func (f *fakeS3) AbortMultipartUpload(_ context.Context, _, _, uploadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted = append(f.aborted, uploadID)
	return nil
}

func (f *fakeS3) PresignGetObject(_ context.Context, _, key, _ string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("%s/%s?expires=%d", f.endpoint, key, int(expiry.Seconds())), nil
}

func (f *fakeS3) GetBucketLocation(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locationCalls++
	return f.location, nil
}

func (f *fakeS3) GetBucketVersioning(_ context.Context, _ string) (*s3api.VersioningInfo, error) {
	return &s3api.VersioningInfo{Status: "Enabled"}, nil
}

func (f *fakeS3) GetBucketEncryption(_ context.Context, _ string) (*s3api.EncryptionInfo, error) {
	return &s3api.EncryptionInfo{Algorithm: "AES256"}, nil
}

func (f *fakeS3) GetBucketLifecycle(_ context.Context, _ string) ([]s3api.LifecycleRule, error) {
	return nil, nil
}

func (f *fakeS3) Endpoint() string {
	return f.endpoint
}

type fakeNotFound string

func (e fakeNotFound) Error() string { return string(e) }

func errNotFound(key string) error {
	return fakeNotFound("no such key: " + key)
}
