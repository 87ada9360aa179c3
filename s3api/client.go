package s3api

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/oddbit-project/s3browser/log"
)

// Config binds a client to one endpoint/credential/region tuple
type Config struct {
	Endpoint    string `json:"endpoint"`
	Region      string `json:"region"`
	AccessKeyID string `json:"accessKeyId"`

	// ForcePathStyle is required by most S3-compatible services
	ForcePathStyle bool `json:"forcePathStyle"`

	TimeoutSeconds         int `json:"timeoutSeconds"`
	MetadataTimeoutSeconds int `json:"metadataTimeoutSeconds"`
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	return &Config{
		Region:                 DefaultRegion,
		ForcePathStyle:         true,
		TimeoutSeconds:         int(DefaultTimeout.Seconds()),
		MetadataTimeoutSeconds: int(MetadataTimeout.Seconds()),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if c.Endpoint == "" {
		return ErrMissingEndpoint
	}
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = int(DefaultTimeout.Seconds())
	}
	if c.MetadataTimeoutSeconds <= 0 {
		c.MetadataTimeoutSeconds = int(MetadataTimeout.Seconds())
	}
	return nil
}

// Client implements API over aws-sdk-go-v2
type Client struct {
	config          *Config
	s3Client        *s3.Client
	presignClient   *s3.PresignClient
	timeout         time.Duration
	metadataTimeout time.Duration
	logger          *log.Logger
}

// NewClient creates a client; the secret key is used only to build the
// static credential provider and is not retained
func NewClient(cfg *Config, secretKey string, logger *log.Logger) (*Client, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.
			WithField("endpoint", cfg.Endpoint).
			WithField("region", cfg.Region)
	}

	awsConfig := aws.Config{
		Region:      cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, secretKey, ""),
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &Client{
		config:          cfg,
		s3Client:        s3Client,
		presignClient:   s3.NewPresignClient(s3Client),
		timeout:         time.Duration(cfg.TimeoutSeconds) * time.Second,
		metadataTimeout: time.Duration(cfg.MetadataTimeoutSeconds) * time.Second,
		logger:          logger,
	}, nil
}

// Endpoint returns the configured endpoint URL
func (c *Client) Endpoint() string {
	return c.config.Endpoint
}

// withTimeout caps the context unless a tighter deadline is already set
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (c *Client) ListBuckets(ctx context.Context) ([]BucketEntry, error) {
	ctx, cancel := withTimeout(ctx, c.metadataTimeout)
	defer cancel()

	output, err := c.s3Client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, mapError("list_buckets", err)
	}
	result := make([]BucketEntry, 0, len(output.Buckets))
	for _, b := range output.Buckets {
		result = append(result, BucketEntry{
			Name:         aws.ToString(b.Name),
			CreationDate: b.CreationDate,
		})
	}
	return result, nil
}

func (c *Client) ListObjectsV2(ctx context.Context, input ListInput) (*ListPage, error) {
	ctx, cancel := withTimeout(ctx, c.metadataTimeout)
	defer cancel()

	req := &s3.ListObjectsV2Input{
		Bucket: aws.String(input.Bucket),
		Prefix: aws.String(input.Prefix),
	}
	if input.Delimiter != "" {
		req.Delimiter = aws.String(input.Delimiter)
	}
	if input.ContinuationToken != "" {
		req.ContinuationToken = aws.String(input.ContinuationToken)
	}
	if input.MaxKeys > 0 {
		req.MaxKeys = aws.Int32(input.MaxKeys)
	}

	output, err := c.s3Client.ListObjectsV2(ctx, req)
	if err != nil {
		return nil, mapError("list_objects", err)
	}

	page := &ListPage{
		Objects:           make([]ObjectEntry, 0, len(output.Contents)),
		CommonPrefixes:    make([]string, 0, len(output.CommonPrefixes)),
		ContinuationToken: aws.ToString(output.NextContinuationToken),
		IsTruncated:       aws.ToBool(output.IsTruncated),
	}
	for _, obj := range output.Contents {
		page.Objects = append(page.Objects, ObjectEntry{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			LastModified: obj.LastModified,
			ETag:         aws.ToString(obj.ETag),
		})
	}
	for _, cp := range output.CommonPrefixes {
		page.CommonPrefixes = append(page.CommonPrefixes, aws.ToString(cp.Prefix))
	}
	return page, nil
}

// versionsTokenSeparator joins key marker and version-id marker into one
// opaque continuation token
const versionsTokenSeparator = "\x1f"

func (c *Client) ListObjectVersions(ctx context.Context, input ListInput) (*ListPage, error) {
	ctx, cancel := withTimeout(ctx, c.metadataTimeout)
	defer cancel()

	req := &s3.ListObjectVersionsInput{
		Bucket: aws.String(input.Bucket),
		Prefix: aws.String(input.Prefix),
	}
	if input.Delimiter != "" {
		req.Delimiter = aws.String(input.Delimiter)
	}
	if input.MaxKeys > 0 {
		req.MaxKeys = aws.Int32(input.MaxKeys)
	}
	if input.ContinuationToken != "" {
		keyMarker, versionMarker, ok := strings.Cut(input.ContinuationToken, versionsTokenSeparator)
		if ok {
			req.KeyMarker = aws.String(keyMarker)
			if versionMarker != "" {
				req.VersionIdMarker = aws.String(versionMarker)
			}
		}
	}

	output, err := c.s3Client.ListObjectVersions(ctx, req)
	if err != nil {
		return nil, mapError("list_object_versions", err)
	}

	page := &ListPage{
		Objects:        make([]ObjectEntry, 0, len(output.Versions)+len(output.DeleteMarkers)),
		CommonPrefixes: make([]string, 0, len(output.CommonPrefixes)),
		IsTruncated:    aws.ToBool(output.IsTruncated),
	}
	if page.IsTruncated {
		page.ContinuationToken = aws.ToString(output.NextKeyMarker) +
			versionsTokenSeparator + aws.ToString(output.NextVersionIdMarker)
	}
	for _, v := range output.Versions {
		page.Objects = append(page.Objects, ObjectEntry{
			Key:          aws.ToString(v.Key),
			Size:         aws.ToInt64(v.Size),
			LastModified: v.LastModified,
			ETag:         aws.ToString(v.ETag),
			VersionID:    aws.ToString(v.VersionId),
			IsLatest:     aws.ToBool(v.IsLatest),
		})
	}
	for _, m := range output.DeleteMarkers {
		page.Objects = append(page.Objects, ObjectEntry{
			Key:            aws.ToString(m.Key),
			LastModified:   m.LastModified,
			VersionID:      aws.ToString(m.VersionId),
			IsLatest:       aws.ToBool(m.IsLatest),
			IsDeleteMarker: true,
		})
	}
	for _, cp := range output.CommonPrefixes {
		page.CommonPrefixes = append(page.CommonPrefixes, aws.ToString(cp.Prefix))
	}
	return page, nil
}

func (c *Client) HeadObject(ctx context.Context, bucket, key, versionID string) (*ObjectMetadata, error) {
	ctx, cancel := withTimeout(ctx, c.metadataTimeout)
	defer cancel()

	req := &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if versionID != "" {
		req.VersionId = aws.String(versionID)
	}
	output, err := c.s3Client.HeadObject(ctx, req)
	if err != nil {
		return nil, mapError("head_object", err)
	}
	return &ObjectMetadata{
		ContentType:          aws.ToString(output.ContentType),
		Size:                 aws.ToInt64(output.ContentLength),
		LastModified:         output.LastModified,
		ETag:                 aws.ToString(output.ETag),
		VersionID:            aws.ToString(output.VersionId),
		ServerSideEncryption: string(output.ServerSideEncryption),
		SSEKMSKeyID:          aws.ToString(output.SSEKMSKeyId),
		StorageClass:         string(output.StorageClass),
		UserMetadata:         output.Metadata,
	}, nil
}

func (c *Client) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, *ObjectMetadata, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	output, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, nil, mapError("get_object", err)
	}
	meta := &ObjectMetadata{
		ContentType:  aws.ToString(output.ContentType),
		Size:         aws.ToInt64(output.ContentLength),
		LastModified: output.LastModified,
		ETag:         aws.ToString(output.ETag),
		VersionID:    aws.ToString(output.VersionId),
	}
	return output.Body, meta, nil
}

func (c *Client) PutObject(ctx context.Context, bucket, key, contentType string, body io.Reader, size int64) error {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	req := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		req.ContentType = aws.String(contentType)
	}
	if size >= 0 {
		req.ContentLength = aws.Int64(size)
	}
	_, err := c.s3Client.PutObject(ctx, req)
	if err != nil {
		return mapError("put_object", err)
	}
	return nil
}

func (c *Client) DeleteObject(ctx context.Context, bucket, key, versionID string) error {
	ctx, cancel := withTimeout(ctx, c.metadataTimeout)
	defer cancel()

	req := &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if versionID != "" {
		req.VersionId = aws.String(versionID)
	}
	if _, err := c.s3Client.DeleteObject(ctx, req); err != nil {
		return mapError("delete_object", err)
	}
	return nil
}

func (c *Client) DeleteObjects(ctx context.Context, bucket string, objects []ObjectIdentifier) (*BatchDeleteResult, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	identifiers := make([]types.ObjectIdentifier, 0, len(objects))
	for _, obj := range objects {
		id := types.ObjectIdentifier{Key: aws.String(obj.Key)}
		if obj.VersionID != "" {
			id.VersionId = aws.String(obj.VersionID)
		}
		identifiers = append(identifiers, id)
	}

	output, err := c.s3Client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(bucket),
		Delete: &types.Delete{
			Objects: identifiers,
			Quiet:   aws.Bool(false),
		},
	})
	if err != nil {
		return nil, mapError("delete_objects", err)
	}

	result := &BatchDeleteResult{
		Deleted: make([]DeletedObject, 0, len(output.Deleted)),
		Errors:  make([]DeleteError, 0, len(output.Errors)),
	}
	for _, d := range output.Deleted {
		result.Deleted = append(result.Deleted, DeletedObject{
			Key:       aws.ToString(d.Key),
			VersionID: aws.ToString(d.VersionId),
		})
	}
	for _, e := range output.Errors {
		result.Errors = append(result.Errors, DeleteError{
			Key:     aws.ToString(e.Key),
			Message: fmt.Sprintf("%s: %s", aws.ToString(e.Code), aws.ToString(e.Message)),
		})
	}
	return result, nil
}

func (c *Client) CopyObject(ctx context.Context, bucket, sourceKey, destinationKey, versionID string) error {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	source := url.PathEscape(bucket + "/" + sourceKey)
	if versionID != "" {
		source += "?versionId=" + url.QueryEscape(versionID)
	}
	_, err := c.s3Client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(bucket),
		Key:        aws.String(destinationKey),
		CopySource: aws.String(source),
	})
	if err != nil {
		return mapError("copy_object", err)
	}
	return nil
}

func (c *Client) CreateMultipartUpload(ctx context.Context, bucket, key, contentType string) (string, error) {
	ctx, cancel := withTimeout(ctx, c.metadataTimeout)
	defer cancel()

	req := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		req.ContentType = aws.String(contentType)
	}
	output, err := c.s3Client.CreateMultipartUpload(ctx, req)
	if err != nil {
		return "", mapError("create_multipart_upload", err)
	}
	return aws.ToString(output.UploadId), nil
}

func (c *Client) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int32, body io.Reader, size int64) (string, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	req := &s3.UploadPartInput{
		Bucket:     aws.String(bucket),
		Key:        aws.String(key),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int32(partNumber),
		Body:       body,
	}
	if size >= 0 {
		req.ContentLength = aws.Int64(size)
	}
	output, err := c.s3Client.UploadPart(ctx, req)
	if err != nil {
		return "", mapError("upload_part", err)
	}
	return aws.ToString(output.ETag), nil
}

func (c *Client) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []CompletedPart) error {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	completed := make([]types.CompletedPart, 0, len(parts))
	for _, p := range parts {
		completed = append(completed, types.CompletedPart{
			PartNumber: aws.Int32(p.PartNumber),
			ETag:       aws.String(p.ETag),
		})
	}
	_, err := c.s3Client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	if err != nil {
		return mapError("complete_multipart_upload", err)
	}
	return nil
}

func (c *Client) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	ctx, cancel := withTimeout(ctx, c.metadataTimeout)
	defer cancel()

	_, err := c.s3Client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		// aborting an already-aborted upload is a no-op
		if errorCode(err) == "NoSuchUpload" {
			return nil
		}
		return mapError("abort_multipart_upload", err)
	}
	return nil
}

func (c *Client) PresignGetObject(ctx context.Context, bucket, key, versionID string, expiry time.Duration) (string, error) {
	ctx, cancel := withTimeout(ctx, c.metadataTimeout)
	defer cancel()

	req := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if versionID != "" {
		req.VersionId = aws.String(versionID)
	}
	presigned, err := c.presignClient.PresignGetObject(ctx, req, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", mapError("presign_get_object", err)
	}
	return presigned.URL, nil
}

func (c *Client) GetBucketLocation(ctx context.Context, bucket string) (string, error) {
	ctx, cancel := withTimeout(ctx, c.metadataTimeout)
	defer cancel()

	output, err := c.s3Client.GetBucketLocation(ctx, &s3.GetBucketLocationInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		return "", mapError("get_bucket_location", err)
	}
	// an empty location constraint means us-east-1
	if output.LocationConstraint == "" {
		return DefaultRegion, nil
	}
	return string(output.LocationConstraint), nil
}

func (c *Client) GetBucketVersioning(ctx context.Context, bucket string) (*VersioningInfo, error) {
	ctx, cancel := withTimeout(ctx, c.metadataTimeout)
	defer cancel()

	output, err := c.s3Client.GetBucketVersioning(ctx, &s3.GetBucketVersioningInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		return nil, mapError("get_bucket_versioning", err)
	}
	info := &VersioningInfo{
		Status:    string(output.Status),
		MFADelete: string(output.MFADelete),
	}
	if info.Status == "" {
		info.Status = "Disabled"
	}
	return info, nil
}

func (c *Client) GetBucketEncryption(ctx context.Context, bucket string) (*EncryptionInfo, error) {
	ctx, cancel := withTimeout(ctx, c.metadataTimeout)
	defer cancel()

	output, err := c.s3Client.GetBucketEncryption(ctx, &s3.GetBucketEncryptionInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		// buckets without default encryption are normal
		if errorCode(err) == "ServerSideEncryptionConfigurationNotFoundError" {
			return nil, nil
		}
		return nil, mapError("get_bucket_encryption", err)
	}
	if output.ServerSideEncryptionConfiguration == nil ||
		len(output.ServerSideEncryptionConfiguration.Rules) == 0 {
		return nil, nil
	}
	rule := output.ServerSideEncryptionConfiguration.Rules[0]
	if rule.ApplyServerSideEncryptionByDefault == nil {
		return nil, nil
	}
	return &EncryptionInfo{
		Algorithm: string(rule.ApplyServerSideEncryptionByDefault.SSEAlgorithm),
		KMSKeyID:  aws.ToString(rule.ApplyServerSideEncryptionByDefault.KMSMasterKeyID),
	}, nil
}

func (c *Client) GetBucketLifecycle(ctx context.Context, bucket string) ([]LifecycleRule, error) {
	ctx, cancel := withTimeout(ctx, c.metadataTimeout)
	defer cancel()

	output, err := c.s3Client.GetBucketLifecycleConfiguration(ctx, &s3.GetBucketLifecycleConfigurationInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		if errorCode(err) == "NoSuchLifecycleConfiguration" {
			return nil, nil
		}
		return nil, mapError("get_bucket_lifecycle", err)
	}

	rules := make([]LifecycleRule, 0, len(output.Rules))
	for _, r := range output.Rules {
		rule := LifecycleRule{
			ID:     aws.ToString(r.ID),
			Status: string(r.Status),
		}
		if r.Filter != nil {
			rule.Prefix = aws.ToString(r.Filter.Prefix)
		}
		if r.Expiration != nil {
			rule.ExpirationDays = aws.ToInt32(r.Expiration.Days)
		}
		for _, t := range r.Transitions {
			rule.Transitions = append(rule.Transitions, RuleTransition{
				Days:         aws.ToInt32(t.Days),
				StorageClass: string(t.StorageClass),
			})
		}
		if r.NoncurrentVersionExpiration != nil {
			rule.NoncurrentVersionExpirationDays = aws.ToInt32(r.NoncurrentVersionExpiration.NoncurrentDays)
		}
		if r.AbortIncompleteMultipartUpload != nil {
			rule.AbortIncompleteMultipartDays = aws.ToInt32(r.AbortIncompleteMultipartUpload.DaysAfterInitiation)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
