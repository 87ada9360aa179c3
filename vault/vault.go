// Package vault persists connection profiles in an embedded sqlite
// database. Secrets are stored as AES-256-GCM ciphertext under a data
// key derived from the process master secret via argon2id; a canary
// value written on first initialization detects key changes at startup.
package vault

import (
	"database/sql"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/oddbit-project/s3browser/apperr"
	"github.com/oddbit-project/s3browser/crypt/secure"
	"github.com/oddbit-project/s3browser/log"
	"github.com/oddbit-project/s3browser/utils"
)

const (
	// KeyCheckCanary is the fixed plaintext encrypted into metadata on
	// first initialization; successful decryption proves the current
	// key matches the key that encrypted the stored secrets
	KeyCheckCanary = "s3browser-key-check-v1"

	metaSaltKey     = "encryption_salt"
	metaKeyCheckKey = "key_check"

	ErrKeyMismatch = utils.Error("encryption key mismatch: the master secret does not match the key used to encrypt this vault")
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS metadata(
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS connections(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		profile_name TEXT NOT NULL UNIQUE,
		endpoint TEXT NOT NULL,
		access_key_id TEXT NOT NULL,
		secret_ciphertext BLOB NOT NULL,
		bucket TEXT NOT NULL DEFAULT '',
		region TEXT NOT NULL DEFAULT '',
		auto_detect_region INTEGER NOT NULL DEFAULT 0,
		last_used_at INTEGER NOT NULL DEFAULT 0
	)`,
}

// Vault owns all connection profile persistence
type Vault struct {
	db      *sqlx.DB
	crypt   secure.AES256GCM
	dialect goqu.DialectWrapper
	logger  *log.Logger
	mu      sync.Mutex
}

// Open opens or creates the vault database and verifies the encryption
// key against the stored canary; a mismatch is fatal
func Open(dbPath string, masterSecret string, logger *log.Logger) (*Vault, error) {
	if logger == nil {
		logger = log.New("vault")
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.Configuration, "cannot open vault database", err)
	}
	// sqlite serializes writes; a single connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	// WAL allows concurrent readers with one writer
	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.Configuration, "cannot set journal mode", err)
	}

	for _, stmt := range schema {
		if _, err = db.Exec(stmt); err != nil {
			db.Close()
			return nil, apperr.Wrap(apperr.Configuration, "cannot create vault schema", err)
		}
	}

	v := &Vault{
		db:      db,
		dialect: goqu.Dialect("sqlite3"),
		logger:  logger,
	}

	if err = v.initializeKey(masterSecret); err != nil {
		db.Close()
		return nil, err
	}
	return v, nil
}

// Close closes the database and clears key material
func (v *Vault) Close() error {
	if v.crypt != nil {
		v.crypt.Clear()
	}
	return v.db.Close()
}

func (v *Vault) initializeKey(masterSecret string) error {
	salt, err := v.loadOrCreateSalt()
	if err != nil {
		return err
	}

	key := secure.DeriveKey([]byte(masterSecret), salt)
	v.crypt, err = secure.NewAES256GCM(key)
	if err != nil {
		return apperr.Wrap(apperr.Configuration, "cannot initialize cipher", err)
	}

	check, found, err := v.getMetadata(metaKeyCheckKey)
	if err != nil {
		return err
	}
	if !found {
		// a populated connections table without a canary indicates a
		// partially-created database or a replaced metadata table
		var count int64
		if err = v.db.Get(&count, "SELECT COUNT(*) FROM connections"); err != nil {
			return apperr.Wrap(apperr.Configuration, "cannot inspect connections table", err)
		}
		if count > 0 {
			return apperr.New(apperr.Configuration,
				"vault has stored connections but no key check; the database is inconsistent or was created with a different key")
		}
		return v.writeKeyCheck()
	}

	raw, err := base64.StdEncoding.DecodeString(check)
	if err != nil {
		return apperr.Wrap(apperr.Configuration, "malformed key check", err)
	}
	plaintext, err := v.crypt.Decrypt(raw)
	if err != nil || string(plaintext) != KeyCheckCanary {
		return apperr.Wrap(apperr.Configuration, ErrKeyMismatch.Error(), err)
	}
	return nil
}

func (v *Vault) loadOrCreateSalt() ([]byte, error) {
	value, found, err := v.getMetadata(metaSaltKey)
	if err != nil {
		return nil, err
	}
	if found {
		salt, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return nil, apperr.Wrap(apperr.Configuration, "malformed encryption salt", err)
		}
		if len(salt) != secure.KdfSaltLength {
			return nil, apperr.Newf(apperr.Configuration,
				"encryption salt has invalid length %d", len(salt))
		}
		return salt, nil
	}

	salt, err := utils.GenerateRandomBytes(secure.KdfSaltLength)
	if err != nil {
		return nil, apperr.Wrap(apperr.Configuration, "cannot generate salt", err)
	}
	if err = v.setMetadata(metaSaltKey, base64.StdEncoding.EncodeToString(salt)); err != nil {
		return nil, err
	}
	return salt, nil
}

func (v *Vault) writeKeyCheck() error {
	ciphertext, err := v.crypt.Encrypt([]byte(KeyCheckCanary))
	if err != nil {
		return apperr.Wrap(apperr.Configuration, "cannot write key check", err)
	}
	return v.setMetadata(metaKeyCheckKey, base64.StdEncoding.EncodeToString(ciphertext))
}

func (v *Vault) getMetadata(key string) (string, bool, error) {
	var value string
	err := v.db.Get(&value, "SELECT value FROM metadata WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Wrap(apperr.Configuration, "cannot read vault metadata", err)
	}
	return value, true, nil
}

func (v *Vault) setMetadata(key string, value string) error {
	_, err := v.db.Exec(
		"INSERT INTO metadata(key, value) VALUES(?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value",
		key, value)
	if err != nil {
		return apperr.Wrap(apperr.Configuration, "cannot write vault metadata", err)
	}
	return nil
}

// SaveConnection inserts or updates a profile; a nil request ID inserts
// and requires a secret, a set ID updates and keeps the existing
// ciphertext when the secret is omitted
func (v *Vault) SaveConnection(req *SaveRequest) (*Connection, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	now := time.Now().Unix()
	if req.ID == nil {
		return v.insertConnection(req, now)
	}
	return v.updateConnection(req, now)
}

func (v *Vault) insertConnection(req *SaveRequest, now int64) (*Connection, error) {
	ciphertext, err := v.crypt.Encrypt([]byte(req.Secret))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "cannot encrypt secret", err)
	}

	query, args, err := v.dialect.Insert("connections").Rows(goqu.Record{
		"profile_name":       req.ProfileName,
		"endpoint":           req.Endpoint,
		"access_key_id":      req.AccessKeyID,
		"secret_ciphertext":  ciphertext,
		"bucket":             req.Bucket,
		"region":             req.Region,
		"auto_detect_region": req.AutoDetectRegion,
		"last_used_at":       now,
	}).Prepared(true).ToSQL()
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "cannot build insert", err)
	}

	result, err := v.db.Exec(query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.Newf(apperr.Conflict,
				"a connection named %q already exists", req.ProfileName)
		}
		return nil, apperr.Wrap(apperr.Internal, "cannot insert connection", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "cannot read insert id", err)
	}
	return v.getConnection(id)
}

func (v *Vault) updateConnection(req *SaveRequest, now int64) (*Connection, error) {
	record := goqu.Record{
		"profile_name":       req.ProfileName,
		"endpoint":           req.Endpoint,
		"access_key_id":      req.AccessKeyID,
		"bucket":             req.Bucket,
		"region":             req.Region,
		"auto_detect_region": req.AutoDetectRegion,
		"last_used_at":       now,
	}
	if req.Secret != "" {
		ciphertext, err := v.crypt.Encrypt([]byte(req.Secret))
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "cannot encrypt secret", err)
		}
		record["secret_ciphertext"] = ciphertext
	}

	query, args, err := v.dialect.Update("connections").
		Set(record).
		Where(goqu.C("id").Eq(*req.ID)).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "cannot build update", err)
	}

	result, err := v.db.Exec(query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.Newf(apperr.Conflict,
				"a connection named %q already exists", req.ProfileName)
		}
		return nil, apperr.Wrap(apperr.Internal, "cannot update connection", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "cannot read update result", err)
	}
	if affected == 0 {
		return nil, apperr.Newf(apperr.NotFound, "connection %d not found", *req.ID)
	}
	return v.getConnection(*req.ID)
}

// GetConnection returns a profile by id
func (v *Vault) GetConnection(id int64) (*Connection, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.getConnection(id)
}

func (v *Vault) getConnection(id int64) (*Connection, error) {
	query, args, err := v.dialect.From("connections").
		Where(goqu.C("id").Eq(id)).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "cannot build select", err)
	}
	record := &Connection{}
	err = v.db.Get(record, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.NotFound, "connection %d not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "cannot read connection", err)
	}
	return record, nil
}

// ListConnections returns all profiles sorted by last_used_at descending
func (v *Vault) ListConnections() ([]Connection, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	query, args, err := v.dialect.From("connections").
		Order(goqu.C("last_used_at").Desc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "cannot build select", err)
	}
	result := make([]Connection, 0)
	if err = v.db.Select(&result, query, args...); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "cannot list connections", err)
	}
	return result, nil
}

// DeleteConnection removes a profile; returns whether a row was removed
func (v *Vault) DeleteConnection(id int64) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	query, args, err := v.dialect.Delete("connections").
		Where(goqu.C("id").Eq(id)).
		Prepared(true).ToSQL()
	if err != nil {
		return false, apperr.Wrap(apperr.Internal, "cannot build delete", err)
	}
	result, err := v.db.Exec(query, args...)
	if err != nil {
		return false, apperr.Wrap(apperr.Internal, "cannot delete connection", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, apperr.Wrap(apperr.Internal, "cannot read delete result", err)
	}
	return affected > 0, nil
}

// TouchLastUsed updates the last_used_at timestamp of a profile
func (v *Vault) TouchLastUsed(id int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	_, err := v.db.Exec("UPDATE connections SET last_used_at = ? WHERE id = ?",
		time.Now().Unix(), id)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "cannot update last_used_at", err)
	}
	return nil
}

// DecryptSecret decrypts the stored secret of a profile; callers must
// not retain the plaintext beyond client materialization
func (v *Vault) DecryptSecret(conn *Connection) (string, error) {
	plaintext, err := v.crypt.Decrypt(conn.SecretCiphertext)
	if err != nil {
		return "", apperr.Wrap(apperr.Configuration, ErrKeyMismatch.Error(), err)
	}
	return string(plaintext), nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
