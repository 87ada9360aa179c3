package services

import (
	"context"
	"io"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oddbit-project/s3browser/apperr"
	"github.com/oddbit-project/s3browser/log"
	"github.com/oddbit-project/s3browser/s3api"
)

const (
	// PresignMinTTL and PresignMaxTTL bound presigned URL lifetimes
	PresignMinTTL = 60 * time.Second
	PresignMaxTTL = 604800 * time.Second

	// DefaultPresignTTL applies when the client omits a ttl
	DefaultPresignTTL = time.Hour

	// MaxPreviewSize caps inline text previews
	MaxPreviewSize = int64(1024 * 1024)
)

// ObjectDetails is the metadata response, extended with the inferred
// storage vendor
type ObjectDetails struct {
	ContentType          string            `json:"contentType"`
	Size                 int64             `json:"size"`
	LastModified         *time.Time        `json:"lastModified,omitempty"`
	ETag                 string            `json:"etag"`
	VersionID            string            `json:"versionId,omitempty"`
	ServerSideEncryption string            `json:"serverSideEncryption,omitempty"`
	SSEKMSKeyID          string            `json:"sseKmsKeyId,omitempty"`
	StorageClass         string            `json:"storageClass,omitempty"`
	UserMetadata         map[string]string `json:"userMetadata,omitempty"`
	Vendor               string            `json:"vendor"`
}

// DownloadService issues presigned URLs, inline previews and object
// metadata
type DownloadService struct {
	logger *log.Logger
}

func NewDownloadService(logger *log.Logger) *DownloadService {
	if logger == nil {
		logger = log.New("download-service")
	}
	return &DownloadService{logger: logger}
}

// Presign returns a time-limited GET URL. A zero ttl means the default;
// out-of-range values are rejected.
func (s *DownloadService) Presign(ctx context.Context, api s3api.API, bucket, key, versionID string, ttl time.Duration) (string, error) {
	key, err := s3api.SanitizeKey(key)
	if err != nil {
		return "", err
	}
	if ttl == 0 {
		ttl = DefaultPresignTTL
	}
	if ttl < PresignMinTTL || ttl > PresignMaxTTL {
		return "", apperr.Newf(apperr.InvalidInput, "ttl must be between %d and %d seconds",
			int(PresignMinTTL.Seconds()), int(PresignMaxTTL.Seconds()))
	}
	return api.PresignGetObject(ctx, bucket, key, versionID, ttl)
}

// Preview returns the body of a small text object. Binary or oversized
// objects are rejected so the endpoint cannot be used as a raw proxy.
func (s *DownloadService) Preview(ctx context.Context, api s3api.API, bucket, key string) (string, string, error) {
	key, err := s3api.SanitizeKey(key)
	if err != nil {
		return "", "", err
	}

	body, meta, err := api.GetObject(ctx, bucket, key)
	if err != nil {
		return "", "", err
	}
	defer body.Close()

	if meta.Size > MaxPreviewSize {
		return "", "", apperr.Newf(apperr.InvalidInput, "object exceeds preview limit of %d bytes", MaxPreviewSize)
	}
	if !previewableContentType(meta.ContentType) {
		return "", "", apperr.Newf(apperr.InvalidInput, "content type %q is not previewable", meta.ContentType)
	}

	data, err := io.ReadAll(io.LimitReader(body, MaxPreviewSize+1))
	if err != nil {
		return "", "", apperr.Wrap(apperr.S3Error, "error reading object body", err)
	}
	if int64(len(data)) > MaxPreviewSize {
		return "", "", apperr.Newf(apperr.InvalidInput, "object exceeds preview limit of %d bytes", MaxPreviewSize)
	}
	if !utf8.Valid(data) {
		return "", "", apperr.New(apperr.InvalidInput, "object is not valid text")
	}
	return string(data), meta.ContentType, nil
}

// Metadata returns object metadata with the storage vendor inferred
// from the connection endpoint
func (s *DownloadService) Metadata(ctx context.Context, api s3api.API, bucket, key, versionID string) (*ObjectDetails, error) {
	key, err := s3api.SanitizeKey(key)
	if err != nil {
		return nil, err
	}
	meta, err := api.HeadObject(ctx, bucket, key, versionID)
	if err != nil {
		return nil, err
	}
	return &ObjectDetails{
		ContentType:          meta.ContentType,
		Size:                 meta.Size,
		LastModified:         meta.LastModified,
		ETag:                 meta.ETag,
		VersionID:            meta.VersionID,
		ServerSideEncryption: meta.ServerSideEncryption,
		SSEKMSKeyID:          meta.SSEKMSKeyID,
		StorageClass:         meta.StorageClass,
		UserMetadata:         meta.UserMetadata,
		Vendor:               DetectVendor(api.Endpoint()),
	}, nil
}

// DetectVendor classifies the endpoint hostname; used only for
// metadata reporting
func DetectVendor(endpoint string) string {
	host := endpoint
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		host = u.Host
	}
	host = strings.ToLower(host)
	switch {
	case strings.Contains(host, "amazonaws.com"):
		return "aws"
	case strings.Contains(host, "backblazeb2.com"):
		return "b2"
	default:
		return "other"
	}
}

// previewableContentType accepts text types plus the structured text
// formats commonly stored with application/ prefixes
func previewableContentType(contentType string) bool {
	mediaType := contentType
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = mediaType[:idx]
	}
	mediaType = strings.TrimSpace(strings.ToLower(mediaType))

	if strings.HasPrefix(mediaType, "text/") {
		return true
	}
	switch mediaType {
	case "application/json", "application/xml", "application/yaml",
		"application/x-yaml", "application/javascript", "application/x-sh",
		"application/toml", "":
		return true
	}
	return strings.HasSuffix(mediaType, "+json") || strings.HasSuffix(mediaType, "+xml")
}
