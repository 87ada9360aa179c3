// Package config loads the gateway runtime configuration: bind address,
// data directory and the two process secrets (login password and
// encryption key), each resolvable from an env var or a file in the
// data directory, env taking precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/oddbit-project/s3browser/apperr"
	"github.com/oddbit-project/s3browser/crypt/secure"
	"github.com/oddbit-project/s3browser/utils/fs"
)

const (
	DefaultBindAddr = "127.0.0.1:3001"
	DefaultDirName  = ".s3browser"

	DatabaseFileName = "s3browser.db"
	KeyFileName      = "encryption.key"
	PasswordFileName = "login.password"

	EncryptionKeyEnvVar = "S3BROWSER_ENCRYPTION_KEY"
	PasswordEnvVar      = "S3BROWSER_LOGIN_PASSWORD"
	SeedEndpointEnvVar  = "S3BROWSER_ENABLE_SEED"

	MinKeyLength      = 32
	MinPasswordLength = 16

	dirMode = os.FileMode(0o700)
)

// AppConfig is the resolved runtime configuration
type AppConfig struct {
	BindAddr      string `json:"bindAddr"`
	DataDir       string `json:"dataDir"`
	DatabasePath  string `json:"databasePath"`
	EncryptionKey string `json:"-"`
	LoginPassword string `json:"-"`
	EnableSeed    bool   `json:"enableSeed"`
	Debug         bool   `json:"debug"`
}

// NewAppConfig builds the configuration from the environment and the
// data directory; the directory is created with mode 0700 when missing
func NewAppConfig(bindAddr string) (*AppConfig, error) {
	dataDir, err := defaultDataDir()
	if err != nil {
		return nil, err
	}
	return NewAppConfigWithDir(bindAddr, dataDir)
}

// NewAppConfigWithDir builds the configuration using an explicit data directory
func NewAppConfigWithDir(bindAddr string, dataDir string) (*AppConfig, error) {
	if bindAddr == "" {
		bindAddr = DefaultBindAddr
	}

	if !fs.DirExists(dataDir) {
		if err := os.MkdirAll(dataDir, dirMode); err != nil {
			return nil, apperr.Wrap(apperr.Configuration, "cannot create data directory", err)
		}
	}

	cfg := &AppConfig{
		BindAddr:     bindAddr,
		DataDir:      dataDir,
		DatabasePath: filepath.Join(dataDir, DatabaseFileName),
		EnableSeed:   os.Getenv(SeedEndpointEnvVar) == "1",
	}

	key, err := fetchSecret(EncryptionKeyEnvVar, filepath.Join(dataDir, KeyFileName))
	if err != nil {
		return nil, err
	}
	cfg.EncryptionKey = key

	password, err := fetchSecret(PasswordEnvVar, filepath.Join(dataDir, PasswordFileName))
	if err != nil {
		return nil, err
	}
	cfg.LoginPassword = password

	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks secret lengths; failures are fatal at startup
func (c *AppConfig) Validate() error {
	if len(c.EncryptionKey) < MinKeyLength {
		return apperr.Newf(apperr.Configuration,
			"encryption key missing or shorter than %d characters (set %s or create %s)",
			MinKeyLength, EncryptionKeyEnvVar, KeyFileName)
	}
	if len(c.LoginPassword) < MinPasswordLength {
		return apperr.Newf(apperr.Configuration,
			"login password missing or shorter than %d characters (set %s or create %s)",
			MinPasswordLength, PasswordEnvVar, PasswordFileName)
	}
	return nil
}

func defaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", apperr.Wrap(apperr.Configuration, "cannot resolve home directory", err)
	}
	return filepath.Join(home, DefaultDirName), nil
}

// fetchSecret resolves a secret from env var or file; secret files must
// not be readable by group or others
func fetchSecret(envVar string, fileName string) (string, error) {
	src := secure.DefaultCredentialConfig{
		PasswordEnvVar: envVar,
	}
	if fs.FileExists(fileName) {
		private, err := fs.CheckPrivateMode(fileName)
		if err != nil {
			return "", apperr.Wrap(apperr.Configuration, fmt.Sprintf("cannot stat %s", fileName), err)
		}
		if !private {
			return "", apperr.Newf(apperr.Configuration, "%s must have mode 0600", fileName)
		}
		src.PasswordFile = fileName
	}
	value, err := src.Fetch()
	if err != nil {
		return "", apperr.Wrap(apperr.Configuration, fmt.Sprintf("cannot read %s", fileName), err)
	}
	return value, nil
}
