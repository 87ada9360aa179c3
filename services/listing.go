// Package services contains the S3 orchestration layer: listing,
// upload, download, mutation, bucket info and profile export. Services
// are stateless beyond per-request locals (the upload coordinator keeps
// a small uploadId registry) and consume the s3api capability plus the
// session's active connection resolved by the transport layer.
package services

import (
	"context"
	"strings"
	"time"

	"github.com/oddbit-project/s3browser/apperr"
	"github.com/oddbit-project/s3browser/log"
	"github.com/oddbit-project/s3browser/s3api"
)

const (
	// ListPageSize is the fixed page size of one listing window; the UI
	// pages through continuation tokens, the server adds no windowing
	ListPageSize = 5000

	// continuation prompts fire at 500 collected items, then every 10000
	continuationPromptStartAt = 500
	continuationPromptEvery   = 10000
)

// S3Object is the listing DTO returned to the browser
type S3Object struct {
	Key            string     `json:"key"`
	Name           string     `json:"name"`
	IsFolder       bool       `json:"isFolder"`
	Size           *int64     `json:"size,omitempty"`
	LastModified   *time.Time `json:"lastModified,omitempty"`
	ETag           string     `json:"etag,omitempty"`
	VersionID      string     `json:"versionId,omitempty"`
	IsLatest       bool       `json:"isLatest,omitempty"`
	IsDeleteMarker bool       `json:"isDeleteMarker,omitempty"`
}

// ListWindow is one page of objects under a prefix
type ListWindow struct {
	Objects           []S3Object `json:"objects"`
	ContinuationToken string     `json:"continuationToken,omitempty"`
	IsTruncated       bool       `json:"isTruncated"`
}

// ContinuationPrompt is invoked during recursive enumeration; returning
// false stops enumeration and yields the partial plan
type ContinuationPrompt func(ctx context.Context, collected int) (bool, error)

// ListingService resolves listing windows and recursive enumerations
type ListingService struct {
	logger *log.Logger
}

func NewListingService(logger *log.Logger) *ListingService {
	if logger == nil {
		logger = log.New("listing-service")
	}
	return &ListingService{logger: logger}
}

// ListWindow returns one page of objects under prefix. Without versions
// the underlying delimiter collapses sub-prefixes to folder entries;
// with versions every version and delete marker is returned.
func (s *ListingService) ListWindow(ctx context.Context, api s3api.API, bucket, prefix, continuationToken string, includeVersions bool) (*ListWindow, error) {
	prefix, err := s3api.SanitizePrefix(prefix)
	if err != nil {
		return nil, err
	}

	input := s3api.ListInput{
		Bucket:            bucket,
		Prefix:            prefix,
		Delimiter:         "/",
		ContinuationToken: continuationToken,
		MaxKeys:           ListPageSize,
	}

	var page *s3api.ListPage
	if includeVersions {
		page, err = api.ListObjectVersions(ctx, input)
	} else {
		page, err = api.ListObjectsV2(ctx, input)
	}
	if err != nil {
		return nil, err
	}

	window := &ListWindow{
		Objects:           make([]S3Object, 0, len(page.Objects)+len(page.CommonPrefixes)),
		ContinuationToken: page.ContinuationToken,
		IsTruncated:       page.IsTruncated,
	}
	for _, cp := range page.CommonPrefixes {
		window.Objects = append(window.Objects, folderObject(cp))
	}
	for _, entry := range page.Objects {
		// the placeholder of the listed prefix itself is not a row
		if entry.Key == prefix {
			continue
		}
		window.Objects = append(window.Objects, fileObject(entry))
	}
	return window, nil
}

// EnumeratePrefix walks a prefix recursively and returns every object
// key below it, folder placeholders included. The walk checks ctx at
// each page boundary and may be stopped early through the prompt; the
// second return value reports whether the enumeration is complete.
func (s *ListingService) EnumeratePrefix(ctx context.Context, api s3api.API, bucket, prefix string, prompt ContinuationPrompt) ([]string, bool, error) {
	prefix, err := s3api.SanitizePrefix(prefix)
	if err != nil {
		return nil, false, err
	}

	keys := make([]string, 0)
	queue := []string{prefix}
	nextPromptAt := continuationPromptStartAt

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		token := ""
		for {
			if err = ctx.Err(); err != nil {
				return nil, false, apperr.Wrap(apperr.Cancelled, "enumeration cancelled", err)
			}

			page, err := api.ListObjectsV2(ctx, s3api.ListInput{
				Bucket:            bucket,
				Prefix:            current,
				Delimiter:         "/",
				ContinuationToken: token,
				MaxKeys:           ListPageSize,
			})
			if err != nil {
				return nil, false, err
			}

			queue = append(queue, page.CommonPrefixes...)
			for _, entry := range page.Objects {
				keys = append(keys, entry.Key)
			}

			if prompt != nil && len(keys) >= nextPromptAt {
				proceed, err := prompt(ctx, len(keys))
				if err != nil {
					return nil, false, err
				}
				if !proceed {
					return keys, false, nil
				}
				nextPromptAt = len(keys) + continuationPromptEvery
			}

			if !page.IsTruncated {
				break
			}
			token = page.ContinuationToken
		}
	}
	return keys, true, nil
}

func folderObject(prefix string) S3Object {
	name := strings.TrimSuffix(prefix, "/")
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	return S3Object{
		Key:      prefix,
		Name:     name,
		IsFolder: true,
	}
}

func fileObject(entry s3api.ObjectEntry) S3Object {
	if strings.HasSuffix(entry.Key, "/") {
		obj := folderObject(entry.Key)
		obj.VersionID = entry.VersionID
		obj.IsLatest = entry.IsLatest
		obj.IsDeleteMarker = entry.IsDeleteMarker
		return obj
	}
	name := entry.Key
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	size := entry.Size
	return S3Object{
		Key:            entry.Key,
		Name:           name,
		Size:           &size,
		LastModified:   entry.LastModified,
		ETag:           entry.ETag,
		VersionID:      entry.VersionID,
		IsLatest:       entry.IsLatest,
		IsDeleteMarker: entry.IsDeleteMarker,
	}
}
