package services

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddbit-project/s3browser/apperr"
	"github.com/oddbit-project/s3browser/vault"
)

func newExportFixture(t *testing.T) (*ProfileExportService, int64) {
	t.Helper()

	store, err := vault.Open(filepath.Join(t.TempDir(), "test.db"),
		"0123456789abcdef0123456789abcdef", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	conn, err := store.SaveConnection(&vault.SaveRequest{
		ProfileName:      "dev",
		Endpoint:         "https://minio.internal:9000",
		AccessKeyID:      "AKIATEST",
		Secret:           "super-secret",
		Region:           "eu-west-1",
		Bucket:           "default-bucket",
		AutoDetectRegion: false,
	})
	require.NoError(t, err)

	return NewProfileExportService(store, nil), conn.ID
}

func TestExportAWSFormat(t *testing.T) {
	svc, id := newExportFixture(t)

	result, err := svc.Export(id, ExportFormatAWS, "")
	require.NoError(t, err)
	assert.Equal(t, "dev.aws-config", result.Filename)
	assert.Contains(t, result.Content, "[profile dev]")
	assert.Contains(t, result.Content, "aws_access_key_id = AKIATEST")
	assert.Contains(t, result.Content, "aws_secret_access_key = super-secret")
	assert.Contains(t, result.Content, "region = eu-west-1")
	// non-AWS endpoints need an explicit endpoint_url
	assert.Contains(t, result.Content, "endpoint_url = https://minio.internal:9000")
}

func TestExportRcloneFormat(t *testing.T) {
	svc, id := newExportFixture(t)

	result, err := svc.Export(id, ExportFormatRclone, "my-bucket")
	require.NoError(t, err)
	assert.Equal(t, "dev.rclone.conf", result.Filename)
	assert.Contains(t, result.Content, "[dev]")
	assert.Contains(t, result.Content, "type = s3")
	assert.Contains(t, result.Content, "secret_access_key = super-secret")
	assert.Contains(t, result.Content, "endpoint = https://minio.internal:9000")
	assert.Contains(t, result.Content, "dev:my-bucket")
}

func TestExportUnknownFormat(t *testing.T) {
	svc, id := newExportFixture(t)

	_, err := svc.Export(id, "terraform", "")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.InvalidInput))
}

func TestExportUnknownConnection(t *testing.T) {
	svc, _ := newExportFixture(t)

	_, err := svc.Export(9999, ExportFormatAWS, "")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}
