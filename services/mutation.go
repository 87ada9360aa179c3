package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/oddbit-project/s3browser/apperr"
	"github.com/oddbit-project/s3browser/log"
	"github.com/oddbit-project/s3browser/s3api"
	"github.com/oddbit-project/s3browser/threadpool"
)

const (
	// MaxDeleteBatchCount is the S3 DeleteObjects item limit
	MaxDeleteBatchCount = 1000

	// MaxDeleteBatchBytes is the serialized-body safety margin under the
	// S3 request body limit
	MaxDeleteBatchBytes = 90000

	// MaxCopyBatchCount caps one copy/move batch; operations execute
	// individually since S3 has no atomic batch copy
	MaxCopyBatchCount = 1000

	// copyWorkers bounds parallelism within one copy/move batch
	copyWorkers = 5

	// seed endpoint constants; the endpoint itself is feature-flagged
	seedItemCount = 10005
	seedSafetyCap = 20000
)

// CopyOperation is one source/destination pair in a batch
type CopyOperation struct {
	SourceKey      string `json:"sourceKey"`
	DestinationKey string `json:"destinationKey"`
	VersionID      string `json:"versionId,omitempty"`
}

// CopyError is a per-item failure of a batch copy/move
type CopyError struct {
	SourceKey      string `json:"sourceKey"`
	Message        string `json:"message"`
	DestinationKey string `json:"destinationKey,omitempty"`
}

// BatchCopyResult aggregates a batch copy/move
type BatchCopyResult struct {
	Successful []string    `json:"successful"`
	Errors     []CopyError `json:"errors"`
}

// BatchDeleteResult aggregates all delete batches of one request
type BatchDeleteResult struct {
	Deleted []s3api.DeletedObject `json:"deleted"`
	Errors  []s3api.DeleteError   `json:"errors"`
}

// SeedResult reports the outcome of the seed-test-items endpoint
type SeedResult struct {
	Created int    `json:"created"`
	Prefix  string `json:"prefix"`
}

// MutationService implements delete, copy and move, with size-bounded
// request packing for batch deletes and bounded parallelism for batch
// copies
type MutationService struct {
	listing *ListingService
	logger  *log.Logger
}

func NewMutationService(listing *ListingService, logger *log.Logger) *MutationService {
	if logger == nil {
		logger = log.New("mutation-service")
	}
	return &MutationService{
		listing: listing,
		logger:  logger,
	}
}

// Delete removes one object; with a version id on a versioned bucket it
// removes just that version, otherwise a plain delete (which on a
// versioned bucket creates a delete marker)
func (s *MutationService) Delete(ctx context.Context, api s3api.API, bucket, key, versionID string) error {
	key, err := s3api.SanitizeKey(key)
	if err != nil {
		return err
	}
	return api.DeleteObject(ctx, bucket, key, versionID)
}

// CreateFolder writes the zero-byte placeholder object path/
func (s *MutationService) CreateFolder(ctx context.Context, api s3api.API, bucket, path string) error {
	path, err := s3api.SanitizeFolderPath(path)
	if err != nil {
		return err
	}
	return api.PutObject(ctx, bucket, path, "application/x-directory", bytes.NewReader(nil), 0)
}

// ValidateDeleteItems checks every key of a batch delete upfront so an
// invalid key rejects the whole request before any S3 call; all invalid
// keys are reported together
func ValidateDeleteItems(items []s3api.ObjectIdentifier) error {
	var invalid *multierror.Error
	for _, item := range items {
		if _, err := s3api.SanitizeKey(item.Key); err != nil {
			invalid = multierror.Append(invalid, fmt.Errorf("%q: %w", item.Key, err))
		}
	}
	if invalid != nil {
		return apperr.Wrap(apperr.InvalidInput, "batch contains invalid keys", invalid.ErrorOrNil())
	}
	return nil
}

// ValidateCopyOperations checks every source and destination of a batch
// copy or move upfront; all invalid operations are reported together
func ValidateCopyOperations(operations []CopyOperation) error {
	var invalid *multierror.Error
	for _, op := range operations {
		if _, err := s3api.SanitizeKey(op.SourceKey); err != nil {
			invalid = multierror.Append(invalid, fmt.Errorf("%q: %w", op.SourceKey, err))
		}
		if _, err := s3api.SanitizeDestinationKey(op.DestinationKey); err != nil {
			invalid = multierror.Append(invalid, fmt.Errorf("%q: %w", op.DestinationKey, err))
		}
	}
	if invalid != nil {
		return apperr.Wrap(apperr.InvalidInput, "batch contains invalid keys", invalid.ErrorOrNil())
	}
	return nil
}

// BatchDelete deletes a list of keys, packing them into DeleteObjects
// calls bounded by both item count and serialized body size. Partial
// success is normal; per-item results aggregate across batches.
func (s *MutationService) BatchDelete(ctx context.Context, api s3api.API, bucket string, items []s3api.ObjectIdentifier) (*BatchDeleteResult, error) {
	if err := ValidateDeleteItems(items); err != nil {
		return nil, err
	}

	result := &BatchDeleteResult{
		Deleted: make([]s3api.DeletedObject, 0, len(items)),
		Errors:  make([]s3api.DeleteError, 0),
	}
	for _, batch := range packDeleteBatches(items) {
		if err := ctx.Err(); err != nil {
			return nil, apperr.Wrap(apperr.Cancelled, "batch delete cancelled", err)
		}
		batchResult, err := api.DeleteObjects(ctx, bucket, batch)
		if err != nil {
			return nil, err
		}
		result.Deleted = append(result.Deleted, batchResult.Deleted...)
		result.Errors = append(result.Errors, batchResult.Errors...)
	}
	return result, nil
}

// packDeleteBatches splits items greedily in arrival order; every batch
// satisfies both the count and the byte bound, and an item that alone
// exceeds the byte bound goes in its own batch
func packDeleteBatches(items []s3api.ObjectIdentifier) [][]s3api.ObjectIdentifier {
	batches := make([][]s3api.ObjectIdentifier, 0)
	current := make([]s3api.ObjectIdentifier, 0, MaxDeleteBatchCount)
	currentBytes := 2 // enclosing brackets

	for _, item := range items {
		itemBytes := serializedSize(item)
		cost := itemBytes
		if len(current) > 0 {
			cost++ // separating comma
		}
		if len(current) > 0 &&
			(len(current) >= MaxDeleteBatchCount || currentBytes+cost > MaxDeleteBatchBytes) {
			batches = append(batches, current)
			current = make([]s3api.ObjectIdentifier, 0, MaxDeleteBatchCount)
			currentBytes = 2
			cost = itemBytes
		}
		current = append(current, item)
		currentBytes += cost
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

func serializedSize(item s3api.ObjectIdentifier) int {
	data, err := json.Marshal(item)
	if err != nil {
		return len(item.Key) + len(item.VersionID) + 32
	}
	return len(data)
}

// FolderDeleteResult reports a recursive folder delete
type FolderDeleteResult struct {
	Deleted []s3api.DeletedObject `json:"deleted"`
	Errors  []s3api.DeleteError   `json:"errors"`
}

// DeleteFolder enumerates a prefix and removes its contents: files via
// batch delete first, then folder placeholders in descending key-length
// order so containing folders go after their contents.
func (s *MutationService) DeleteFolder(ctx context.Context, api s3api.API, bucket, prefix string) (*FolderDeleteResult, error) {
	keys, _, err := s.listing.EnumeratePrefix(ctx, api, bucket, prefix, nil)
	if err != nil {
		return nil, err
	}

	files := make([]s3api.ObjectIdentifier, 0, len(keys))
	placeholders := make([]string, 0)
	for _, key := range keys {
		if strings.HasSuffix(key, "/") {
			placeholders = append(placeholders, key)
		} else {
			files = append(files, s3api.ObjectIdentifier{Key: key})
		}
	}
	// the prefix placeholder itself may not appear as an object; delete
	// it last regardless
	if prefix != "" && !containsKey(placeholders, prefix) {
		placeholders = append(placeholders, prefix)
	}

	result := &FolderDeleteResult{
		Deleted: make([]s3api.DeletedObject, 0, len(keys)),
		Errors:  make([]s3api.DeleteError, 0),
	}
	if len(files) > 0 {
		batchResult, err := s.BatchDelete(ctx, api, bucket, files)
		if err != nil {
			return nil, err
		}
		result.Deleted = append(result.Deleted, batchResult.Deleted...)
		result.Errors = append(result.Errors, batchResult.Errors...)
	}

	sort.Slice(placeholders, func(i, j int) bool {
		return len(placeholders[i]) > len(placeholders[j])
	})

	var placeholderErrs *multierror.Error
	for _, placeholder := range placeholders {
		if err = ctx.Err(); err != nil {
			return nil, apperr.Wrap(apperr.Cancelled, "folder delete cancelled", err)
		}
		if err = api.DeleteObject(ctx, bucket, placeholder, ""); err != nil {
			placeholderErrs = multierror.Append(placeholderErrs, err)
			result.Errors = append(result.Errors, s3api.DeleteError{
				Key:     placeholder,
				Message: err.Error(),
			})
			continue
		}
		result.Deleted = append(result.Deleted, s3api.DeletedObject{Key: placeholder})
	}
	if placeholderErrs != nil {
		s.logger.Warn("folder delete finished with placeholder errors", log.KV{
			"bucket": bucket,
			"prefix": prefix,
			"errors": placeholderErrs.Len(),
		})
	}
	return result, nil
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

// Copy copies one object within a bucket; destination construction is
// the caller's responsibility
func (s *MutationService) Copy(ctx context.Context, api s3api.API, bucket, sourceKey, destinationKey, versionID string) error {
	sourceKey, err := s3api.SanitizeKey(sourceKey)
	if err != nil {
		return err
	}
	destinationKey, err = s3api.SanitizeDestinationKey(destinationKey)
	if err != nil {
		return err
	}
	return api.CopyObject(ctx, bucket, sourceKey, destinationKey, versionID)
}

// Move copies then deletes the source. A copy failure aborts without
// deletion; a post-copy delete failure is reported but the copy stands.
func (s *MutationService) Move(ctx context.Context, api s3api.API, bucket, sourceKey, destinationKey, versionID string) error {
	if err := s.Copy(ctx, api, bucket, sourceKey, destinationKey, versionID); err != nil {
		return err
	}
	if err := api.DeleteObject(ctx, bucket, sourceKey, versionID); err != nil {
		return apperr.Wrap(apperr.S3Error,
			fmt.Sprintf("object copied to %s but source delete failed", destinationKey), err)
	}
	return nil
}

// BatchCopy executes copy operations in bounded-parallel batches
func (s *MutationService) BatchCopy(ctx context.Context, api s3api.API, bucket string, operations []CopyOperation) (*BatchCopyResult, error) {
	if err := ValidateCopyOperations(operations); err != nil {
		return nil, err
	}
	return s.runBatch(ctx, bucket, operations, func(ctx context.Context, op CopyOperation) error {
		return s.Copy(ctx, api, bucket, op.SourceKey, op.DestinationKey, op.VersionID)
	})
}

// BatchMove executes move operations in bounded-parallel batches
func (s *MutationService) BatchMove(ctx context.Context, api s3api.API, bucket string, operations []CopyOperation) (*BatchCopyResult, error) {
	if err := ValidateCopyOperations(operations); err != nil {
		return nil, err
	}
	return s.runBatch(ctx, bucket, operations, func(ctx context.Context, op CopyOperation) error {
		return s.Move(ctx, api, bucket, op.SourceKey, op.DestinationKey, op.VersionID)
	})
}

func (s *MutationService) runBatch(ctx context.Context, bucket string, operations []CopyOperation, run func(ctx context.Context, op CopyOperation) error) (*BatchCopyResult, error) {
	result := &BatchCopyResult{
		Successful: make([]string, 0, len(operations)),
		Errors:     make([]CopyError, 0),
	}

	pool, err := threadpool.NewThreadPool(copyWorkers, MaxCopyBatchCount, s.logger)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "cannot create worker pool", err)
	}
	if err = pool.Start(ctx); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "cannot start worker pool", err)
	}
	defer pool.Stop()

	var mu sync.Mutex
	for start := 0; start < len(operations); start += MaxCopyBatchCount {
		if err = ctx.Err(); err != nil {
			return nil, apperr.Wrap(apperr.Cancelled, "batch operation cancelled", err)
		}

		end := start + MaxCopyBatchCount
		if end > len(operations) {
			end = len(operations)
		}

		var wg sync.WaitGroup
		for _, op := range operations[start:end] {
			op := op
			wg.Add(1)
			pool.Dispatch(threadpool.FuncRunner(func(ctx context.Context) {
				defer wg.Done()
				opErr := run(ctx, op)
				mu.Lock()
				defer mu.Unlock()
				if opErr != nil {
					result.Errors = append(result.Errors, CopyError{
						SourceKey:      op.SourceKey,
						Message:        apperr.Message(opErr),
						DestinationKey: op.DestinationKey,
					})
					return
				}
				result.Successful = append(result.Successful, op.SourceKey)
			}))
		}
		if err = awaitJobs(ctx, &wg, pool); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// awaitJobs waits for the dispatched jobs of one chunk. On cancellation
// the pool is stopped, which makes its workers run the abandoned queue
// entries with the cancelled context; every dispatched job completes
// its accounting, so the wait always terminates.
func awaitJobs(ctx context.Context, wg *sync.WaitGroup, pool *threadpool.ThreadPool) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		_ = pool.Stop()
		<-done
		return apperr.Wrap(apperr.Cancelled, "batch operation cancelled", ctx.Err())
	}
}

// SeedTestItems creates zero-byte objects under prefix/ with
// deterministic names for benchmarking; gated behind a runtime flag at
// the transport layer
func (s *MutationService) SeedTestItems(ctx context.Context, api s3api.API, bucket, prefix string) (*SeedResult, error) {
	prefix, err := s3api.SanitizeFolderPath(prefix)
	if err != nil {
		return nil, err
	}
	if seedItemCount > seedSafetyCap {
		return nil, apperr.Newf(apperr.InvalidInput, "seed count exceeds safety cap %d", seedSafetyCap)
	}

	pool, err := threadpool.NewThreadPool(copyWorkers, seedItemCount, s.logger)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "cannot create worker pool", err)
	}
	if err = pool.Start(ctx); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "cannot start worker pool", err)
	}
	defer pool.Stop()

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	var firstErr error

	for i := 0; i < seedItemCount; i++ {
		if err = ctx.Err(); err != nil {
			return nil, apperr.Wrap(apperr.Cancelled, "seeding cancelled", err)
		}
		key := fmt.Sprintf("%stest-item-%05d", prefix, i)
		wg.Add(1)
		pool.Dispatch(threadpool.FuncRunner(func(ctx context.Context) {
			defer wg.Done()
			putErr := api.PutObject(ctx, bucket, key, "application/octet-stream", bytes.NewReader(nil), 0)
			mu.Lock()
			defer mu.Unlock()
			if putErr != nil {
				if firstErr == nil {
					firstErr = putErr
				}
				return
			}
			created++
		}))
	}
	if err = awaitJobs(ctx, &wg, pool); err != nil {
		return nil, err
	}

	if firstErr != nil && created == 0 {
		return nil, firstErr
	}
	return &SeedResult{Created: created, Prefix: prefix}, nil
}
