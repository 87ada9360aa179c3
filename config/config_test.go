package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddbit-project/s3browser/apperr"
)

const (
	testKey      = "0123456789abcdef0123456789abcdef"
	testPassword = "a-long-enough-password"
)

func TestNewAppConfigFromEnv(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, testKey)
	t.Setenv(PasswordEnvVar, testPassword)

	cfg, err := NewAppConfigWithDir("", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultBindAddr, cfg.BindAddr)
	assert.Equal(t, testKey, cfg.EncryptionKey)
	assert.Equal(t, testPassword, cfg.LoginPassword)
	assert.False(t, cfg.EnableSeed)
}

func TestSeedFlag(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, testKey)
	t.Setenv(PasswordEnvVar, testPassword)
	t.Setenv(SeedEndpointEnvVar, "1")

	cfg, err := NewAppConfigWithDir("", t.TempDir())
	require.NoError(t, err)
	assert.True(t, cfg.EnableSeed)
}

func TestShortKeyRejected(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "too-short")
	t.Setenv(PasswordEnvVar, testPassword)

	_, err := NewAppConfigWithDir("", t.TempDir())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Configuration))
}

func TestShortPasswordRejected(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, testKey)
	t.Setenv(PasswordEnvVar, "short")

	_, err := NewAppConfigWithDir("", t.TempDir())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Configuration))
}

func TestSecretsFromFiles(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "")
	t.Setenv(PasswordEnvVar, "")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, KeyFileName), []byte(testKey), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, PasswordFileName), []byte(testPassword), 0o600))

	cfg, err := NewAppConfigWithDir("0.0.0.0:8080", dir)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.BindAddr)
	assert.Equal(t, testKey, cfg.EncryptionKey)
	assert.Equal(t, testPassword, cfg.LoginPassword)
}

func TestWorldReadableSecretFileRejected(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "")
	t.Setenv(PasswordEnvVar, testPassword)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, KeyFileName), []byte(testKey), 0o644))

	_, err := NewAppConfigWithDir("", dir)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Configuration))
}
