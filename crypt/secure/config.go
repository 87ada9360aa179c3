package secure

import (
	"strings"

	"github.com/oddbit-project/s3browser/utils/env"
	"github.com/oddbit-project/s3browser/utils/fs"
)

// DefaultCredentialConfig misc options for credentials
// if different field names are required, just implement CredentialConfig interface
type DefaultCredentialConfig struct {
	Password       string `json:"password"`       // Password plaintext password; if set, is used instead of the rest
	PasswordEnvVar string `json:"passwordEnvVar"` // PasswordEnvVar name of env var with secret
	PasswordFile   string `json:"passwordFile"`   // PasswordFile name of secrets file, to be read; if none of the above set, this one is used
}

// IsEmpty returns true if credential source is empty
func (c DefaultCredentialConfig) IsEmpty() bool {
	return strings.TrimSpace(c.Password) == "" &&
		strings.TrimSpace(c.PasswordEnvVar) == "" &&
		strings.TrimSpace(c.PasswordFile) == ""
}

// Fetch retrieve the contents of the credential
// the env var takes precedence over the secrets file
func (c DefaultCredentialConfig) Fetch() (string, error) {
	plainText := strings.TrimSpace(c.Password)
	if plainText != "" {
		return plainText, nil
	}
	if envVar := strings.TrimSpace(c.PasswordEnvVar); envVar != "" {
		if v := env.GetEnvVar(envVar); v != "" {
			return v, nil
		}
	}
	if c.PasswordFile != "" && fs.FileExists(c.PasswordFile) {
		return fs.ReadString(c.PasswordFile)
	}
	return "", nil
}
