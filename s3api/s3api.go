// Package s3api wraps the AWS SDK behind the capability interface the
// orchestration services consume. One Client is bound to a single
// (endpoint, credentials, region) tuple; the Factory materializes and
// caches clients per connection profile and owns the region cache.
package s3api

import (
	"context"
	"io"
	"time"

	"github.com/oddbit-project/s3browser/utils"
)

const (
	// DefaultRegion is used when a profile carries no region and
	// auto-detection is off or not yet possible
	DefaultRegion = "us-east-1"

	// DefaultTimeout applies to data-bearing calls
	DefaultTimeout = time.Minute * 5

	// MetadataTimeout applies to presign/list/metadata calls
	MetadataTimeout = time.Second * 30

	ErrNilConfig       = utils.Error("config is nil")
	ErrMissingEndpoint = utils.Error("missing endpoint")
)

// BucketEntry is one bucket returned by ListBuckets
type BucketEntry struct {
	Name         string     `json:"name"`
	CreationDate *time.Time `json:"creationDate,omitempty"`
}

// ObjectEntry is one key (or key version) returned by a listing page
type ObjectEntry struct {
	Key            string
	Size           int64
	LastModified   *time.Time
	ETag           string
	VersionID      string
	IsLatest       bool
	IsDeleteMarker bool
}

// ListPage is one page of a delimiter-aware listing
type ListPage struct {
	Objects           []ObjectEntry
	CommonPrefixes    []string
	ContinuationToken string
	IsTruncated       bool
}

// ListInput selects one listing window
type ListInput struct {
	Bucket            string
	Prefix            string
	Delimiter         string
	ContinuationToken string
	MaxKeys           int32
}

// ObjectIdentifier names one key (optionally one version) for deletion
type ObjectIdentifier struct {
	Key       string `json:"key"`
	VersionID string `json:"versionId,omitempty"`
}

// DeletedObject is a per-item success of a DeleteObjects call
type DeletedObject struct {
	Key       string `json:"key"`
	VersionID string `json:"versionId,omitempty"`
}

// DeleteError is a per-item failure of a DeleteObjects call
type DeleteError struct {
	Key     string `json:"key"`
	Message string `json:"message"`
}

// BatchDeleteResult aggregates one DeleteObjects call
type BatchDeleteResult struct {
	Deleted []DeletedObject
	Errors  []DeleteError
}

// CompletedPart is one part reference for CompleteMultipartUpload
type CompletedPart struct {
	PartNumber int32  `json:"partNumber"`
	ETag       string `json:"etag"`
}

// ObjectMetadata is the result of a HeadObject call
type ObjectMetadata struct {
	ContentType          string
	Size                 int64
	LastModified         *time.Time
	ETag                 string
	VersionID            string
	ServerSideEncryption string
	SSEKMSKeyID          string
	StorageClass         string
	UserMetadata         map[string]string
}

// VersioningInfo is the result of a GetBucketVersioning call
type VersioningInfo struct {
	Status    string `json:"status"`
	MFADelete string `json:"mfaDelete,omitempty"`
}

// EncryptionInfo is the default encryption configuration of a bucket
type EncryptionInfo struct {
	Algorithm string `json:"algorithm,omitempty"`
	KMSKeyID  string `json:"kmsKeyId,omitempty"`
}

// LifecycleRule is one bucket lifecycle configuration rule
type LifecycleRule struct {
	ID                              string           `json:"id,omitempty"`
	Status                          string           `json:"status"`
	Prefix                          string           `json:"prefix,omitempty"`
	ExpirationDays                  int32            `json:"expiration,omitempty"`
	Transitions                     []RuleTransition `json:"transitions,omitempty"`
	NoncurrentVersionExpirationDays int32            `json:"noncurrentVersionExpiration,omitempty"`
	AbortIncompleteMultipartDays    int32            `json:"abortIncompleteMultipartUpload,omitempty"`
}

// RuleTransition is one storage-class transition within a lifecycle rule
type RuleTransition struct {
	Days         int32  `json:"days,omitempty"`
	StorageClass string `json:"storageClass,omitempty"`
}

// API is the S3 capability consumed by the orchestration services.
// Implementations must honor context cancellation on every call.
type API interface {
	ListBuckets(ctx context.Context) ([]BucketEntry, error)
	ListObjectsV2(ctx context.Context, input ListInput) (*ListPage, error)
	ListObjectVersions(ctx context.Context, input ListInput) (*ListPage, error)
	HeadObject(ctx context.Context, bucket, key, versionID string) (*ObjectMetadata, error)
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, *ObjectMetadata, error)
	PutObject(ctx context.Context, bucket, key, contentType string, body io.Reader, size int64) error
	DeleteObject(ctx context.Context, bucket, key, versionID string) error
	DeleteObjects(ctx context.Context, bucket string, objects []ObjectIdentifier) (*BatchDeleteResult, error)
	CopyObject(ctx context.Context, bucket, sourceKey, destinationKey, versionID string) error
	CreateMultipartUpload(ctx context.Context, bucket, key, contentType string) (string, error)
	UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int32, body io.Reader, size int64) (string, error)
	CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []CompletedPart) error
	AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error
	PresignGetObject(ctx context.Context, bucket, key, versionID string, expiry time.Duration) (string, error)
	GetBucketLocation(ctx context.Context, bucket string) (string, error)
	GetBucketVersioning(ctx context.Context, bucket string) (*VersioningInfo, error)
	GetBucketEncryption(ctx context.Context, bucket string) (*EncryptionInfo, error)
	GetBucketLifecycle(ctx context.Context, bucket string) ([]LifecycleRule, error)
	Endpoint() string
}
