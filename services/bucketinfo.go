package services

import (
	"context"

	"github.com/oddbit-project/s3browser/log"
	"github.com/oddbit-project/s3browser/s3api"
)

// BucketInfo aggregates bucket configuration; each sub-call is
// best-effort so a restrictive policy on one API does not hide the rest
type BucketInfo struct {
	Versioning      *s3api.VersioningInfo `json:"versioning"`
	Encryption      *s3api.EncryptionInfo `json:"encryption"`
	EncryptionError string                `json:"encryptionError,omitempty"`
	LifecycleRules  []s3api.LifecycleRule `json:"lifecycleRules"`
}

// BucketInfoService reports bucket-level configuration
type BucketInfoService struct {
	logger *log.Logger
}

func NewBucketInfoService(logger *log.Logger) *BucketInfoService {
	if logger == nil {
		logger = log.New("bucketinfo-service")
	}
	return &BucketInfoService{logger: logger}
}

// Inspect collects versioning, default encryption and lifecycle rules.
// A missing encryption configuration is normal and yields a nil
// encryption block; other encryption errors are reported as text
// without failing the whole call.
func (s *BucketInfoService) Inspect(ctx context.Context, api s3api.API, bucket string) (*BucketInfo, error) {
	info := &BucketInfo{
		LifecycleRules: make([]s3api.LifecycleRule, 0),
	}

	versioning, err := api.GetBucketVersioning(ctx, bucket)
	if err != nil {
		return nil, err
	}
	info.Versioning = versioning

	encryption, err := api.GetBucketEncryption(ctx, bucket)
	if err != nil {
		info.EncryptionError = err.Error()
		s.logger.Warn("cannot read bucket encryption", log.KV{
			"bucket": bucket,
			"error":  err.Error(),
		})
	} else {
		info.Encryption = encryption
	}

	rules, err := api.GetBucketLifecycle(ctx, bucket)
	if err != nil {
		s.logger.Warn("cannot read bucket lifecycle", log.KV{
			"bucket": bucket,
			"error":  err.Error(),
		})
	} else if rules != nil {
		info.LifecycleRules = rules
	}
	return info, nil
}
