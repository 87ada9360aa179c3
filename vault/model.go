package vault

import (
	"net/url"
	"regexp"

	"github.com/oddbit-project/s3browser/apperr"
)

// Connection is a stored connection profile; the secret never leaves
// the vault in plaintext and is excluded from JSON
type Connection struct {
	ID               int64  `db:"id" json:"id" goqu:"skipinsert"`
	ProfileName      string `db:"profile_name" json:"profile_name"`
	Endpoint         string `db:"endpoint" json:"endpoint"`
	AccessKeyID      string `db:"access_key_id" json:"access_key_id"`
	SecretCiphertext []byte `db:"secret_ciphertext" json:"-"`
	Bucket           string `db:"bucket" json:"bucket,omitempty"`
	Region           string `db:"region" json:"region,omitempty"`
	AutoDetectRegion bool   `db:"auto_detect_region" json:"auto_detect_region"`
	LastUsedAt       int64  `db:"last_used_at" json:"last_used_at"`
}

// SaveRequest carries the fields for an insert or update; a nil ID means
// insert, and Secret may be empty on update meaning "keep existing"
type SaveRequest struct {
	ID               *int64 `json:"id,omitempty"`
	ProfileName      string `json:"profile_name"`
	Endpoint         string `json:"endpoint"`
	AccessKeyID      string `json:"access_key_id"`
	Secret           string `json:"secret,omitempty"`
	Bucket           string `json:"bucket,omitempty"`
	Region           string `json:"region,omitempty"`
	AutoDetectRegion bool   `json:"auto_detect_region"`
}

var profileNameRegex = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// Validate checks profile name and endpoint constraints
func (r *SaveRequest) Validate() error {
	if !profileNameRegex.MatchString(r.ProfileName) {
		return apperr.New(apperr.InvalidInput,
			"profile name must be 1-64 characters of [A-Za-z0-9._-]")
	}
	u, err := url.Parse(r.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperr.New(apperr.InvalidInput, "endpoint must be a http or https URL")
	}
	if r.AccessKeyID == "" {
		return apperr.New(apperr.InvalidInput, "access key id is required")
	}
	if r.ID == nil && r.Secret == "" {
		return apperr.New(apperr.InvalidInput, "secret is required for new connections")
	}
	return nil
}
