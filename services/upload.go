package services

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/oddbit-project/s3browser/apperr"
	"github.com/oddbit-project/s3browser/log"
	"github.com/oddbit-project/s3browser/s3api"
)

const (
	// UploadPartSize is the fixed multipart part size
	UploadPartSize = int64(10 * 1024 * 1024)

	// MaxUploadSize caps uploads at the single-copy S3 object limit
	MaxUploadSize = int64(5 * 1024 * 1024 * 1024)

	// MaxPartNumber is the S3 part number ceiling
	MaxPartNumber = 10000

	// uploadRegistryTTL bounds how long an abandoned uploadId context is
	// kept before the reaper drops it
	uploadRegistryTTL = 24 * time.Hour

	uploadReapInterval = time.Hour
)

// uploadContext validates that part/complete/abort requests belong to
// the session that initiated the upload
type uploadContext struct {
	connectionID int64
	bucket       string
	key          string
	contentType  string
	createdAt    time.Time
}

// InitiateResult is the response of a multipart initiation
type InitiateResult struct {
	UploadID   string `json:"uploadId"`
	Key        string `json:"key"`
	PartSize   int64  `json:"partSize"`
	TotalParts int    `json:"totalParts"`
}

// UploadService proxies single-PUT and multipart uploads. The server is
// stateless across parts except for the uploadId registry; clients
// drive part parallelism and retries.
type UploadService struct {
	logger   *log.Logger
	registry map[string]*uploadContext
	mu       sync.Mutex

	stopReaper    chan struct{}
	reaperRunning bool
}

func NewUploadService(logger *log.Logger) *UploadService {
	if logger == nil {
		logger = log.New("upload-service")
	}
	return &UploadService{
		logger:     logger,
		registry:   make(map[string]*uploadContext),
		stopReaper: make(chan struct{}),
	}
}

// PutSingle streams a whole object body to S3 in one request
func (s *UploadService) PutSingle(ctx context.Context, api s3api.API, bucket, key, contentType string, body io.Reader, size int64) (string, error) {
	key, err := s3api.SanitizeDestinationKey(key)
	if err != nil {
		return "", err
	}
	if size > MaxUploadSize {
		return "", apperr.Newf(apperr.InvalidInput, "file size exceeds %d bytes", MaxUploadSize)
	}
	if err = api.PutObject(ctx, bucket, key, contentType, body, size); err != nil {
		return "", err
	}
	return key, nil
}

// Initiate starts a multipart upload and registers its context
func (s *UploadService) Initiate(ctx context.Context, api s3api.API, connectionID int64, bucket, key, contentType string, fileSize int64) (*InitiateResult, error) {
	key, err := s3api.SanitizeDestinationKey(key)
	if err != nil {
		return nil, err
	}
	if fileSize <= 0 {
		return nil, apperr.New(apperr.InvalidInput, "file size must be positive")
	}
	if fileSize > MaxUploadSize {
		return nil, apperr.Newf(apperr.InvalidInput, "file size exceeds %d bytes", MaxUploadSize)
	}

	totalParts := int((fileSize + UploadPartSize - 1) / UploadPartSize)
	if totalParts > MaxPartNumber {
		return nil, apperr.Newf(apperr.InvalidInput, "file requires more than %d parts", MaxPartNumber)
	}

	uploadID, err := api.CreateMultipartUpload(ctx, bucket, key, contentType)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.registry[uploadID] = &uploadContext{
		connectionID: connectionID,
		bucket:       bucket,
		key:          key,
		contentType:  contentType,
		createdAt:    time.Now(),
	}
	s.mu.Unlock()

	s.logger.Info("multipart upload initiated", log.KV{
		"bucket":      bucket,
		"key":         key,
		"total_parts": totalParts,
	})
	return &InitiateResult{
		UploadID:   uploadID,
		Key:        key,
		PartSize:   UploadPartSize,
		TotalParts: totalParts,
	}, nil
}

// UploadPart streams one part body to S3. Parts may arrive in any order
// and part numbers may repeat; S3 keeps the last write.
func (s *UploadService) UploadPart(ctx context.Context, api s3api.API, connectionID int64, bucket, uploadID, key string, partNumber int, body io.Reader, size int64) (string, error) {
	if partNumber < 1 || partNumber > MaxPartNumber {
		return "", apperr.Newf(apperr.InvalidInput, "part number must be between 1 and %d", MaxPartNumber)
	}
	uc, err := s.lookup(uploadID, connectionID, bucket, key)
	if err != nil {
		return "", err
	}
	return api.UploadPart(ctx, uc.bucket, uc.key, uploadID, int32(partNumber), body, size)
}

// Complete finishes a multipart upload. Parts are sorted by ascending
// part number as S3 requires and deduplicated keeping the last etag
// supplied for each number.
func (s *UploadService) Complete(ctx context.Context, api s3api.API, connectionID int64, bucket, uploadID, key string, parts []s3api.CompletedPart) (string, error) {
	if len(parts) == 0 {
		return "", apperr.New(apperr.InvalidInput, "part list cannot be empty")
	}
	uc, err := s.lookup(uploadID, connectionID, bucket, key)
	if err != nil {
		return "", err
	}

	if err = api.CompleteMultipartUpload(ctx, uc.bucket, uc.key, uploadID, normalizeParts(parts)); err != nil {
		return "", err
	}

	s.mu.Lock()
	delete(s.registry, uploadID)
	s.mu.Unlock()

	s.logger.Info("multipart upload completed", log.KV{
		"bucket": uc.bucket,
		"key":    uc.key,
	})
	return uc.key, nil
}

// Abort cancels a multipart upload; aborting twice is not an error
func (s *UploadService) Abort(ctx context.Context, api s3api.API, connectionID int64, bucket, uploadID, key string) error {
	uc, err := s.lookup(uploadID, connectionID, bucket, key)
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			// already aborted or reaped
			return nil
		}
		return err
	}

	if err = api.AbortMultipartUpload(ctx, uc.bucket, uc.key, uploadID); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.registry, uploadID)
	s.mu.Unlock()
	return nil
}

// PendingUploads returns the number of registered upload contexts
func (s *UploadService) PendingUploads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.registry)
}

func (s *UploadService) lookup(uploadID string, connectionID int64, bucket, key string) (*uploadContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	uc, ok := s.registry[uploadID]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "unknown upload id")
	}
	if uc.connectionID != connectionID || uc.bucket != bucket || uc.key != key {
		return nil, apperr.New(apperr.Forbidden, "upload does not belong to this session")
	}
	return uc, nil
}

// normalizeParts sorts ascending and keeps the last etag supplied per
// part number
func normalizeParts(parts []s3api.CompletedPart) []s3api.CompletedPart {
	latest := make(map[int32]string, len(parts))
	for _, p := range parts {
		latest[p.PartNumber] = p.ETag
	}
	result := make([]s3api.CompletedPart, 0, len(latest))
	for number, etag := range latest {
		result = append(result, s3api.CompletedPart{PartNumber: number, ETag: etag})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].PartNumber < result[j].PartNumber
	})
	return result
}

// StartReaper starts the background purge of abandoned upload contexts
func (s *UploadService) StartReaper() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reaperRunning {
		return
	}
	s.reaperRunning = true

	go func() {
		ticker := time.NewTicker(uploadReapInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.reap()
			case <-s.stopReaper:
				return
			}
		}
	}()
}

// StopReaper stops the background purge
func (s *UploadService) StopReaper() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.reaperRunning {
		return
	}
	s.reaperRunning = false
	close(s.stopReaper)
}

func (s *UploadService) reap() {
	cutoff := time.Now().Add(-uploadRegistryTTL)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, uc := range s.registry {
		if uc.createdAt.Before(cutoff) {
			delete(s.registry, id)
		}
	}
}
