package vault

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddbit-project/s3browser/apperr"
)

const testMasterSecret = "0123456789abcdef0123456789abcdef"

func openTestVault(t *testing.T, path string) *Vault {
	t.Helper()
	v, err := Open(path, testMasterSecret, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })
	return v
}

func testSaveRequest(name string) *SaveRequest {
	return &SaveRequest{
		ProfileName:      name,
		Endpoint:         "https://s3.example.com",
		AccessKeyID:      "AKIATEST",
		Secret:           "secret-value",
		AutoDetectRegion: true,
	}
}

func TestSaveAndGetConnection(t *testing.T) {
	v := openTestVault(t, filepath.Join(t.TempDir(), "v.db"))

	conn, err := v.SaveConnection(testSaveRequest("dev"))
	require.NoError(t, err)
	assert.NotZero(t, conn.ID)
	assert.Equal(t, "dev", conn.ProfileName)
	assert.NotZero(t, conn.LastUsedAt)

	loaded, err := v.GetConnection(conn.ID)
	require.NoError(t, err)
	assert.Equal(t, conn.ProfileName, loaded.ProfileName)

	secret, err := v.DecryptSecret(loaded)
	require.NoError(t, err)
	assert.Equal(t, "secret-value", secret)
}

func TestSecretStoredAsCiphertext(t *testing.T) {
	v := openTestVault(t, filepath.Join(t.TempDir(), "v.db"))

	conn, err := v.SaveConnection(testSaveRequest("dev"))
	require.NoError(t, err)
	assert.NotContains(t, string(conn.SecretCiphertext), "secret-value")
}

func TestDuplicateProfileNameConflicts(t *testing.T) {
	v := openTestVault(t, filepath.Join(t.TempDir(), "v.db"))

	_, err := v.SaveConnection(testSaveRequest("dev"))
	require.NoError(t, err)

	_, err = v.SaveConnection(testSaveRequest("dev"))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Conflict))
}

func TestInsertRequiresSecret(t *testing.T) {
	v := openTestVault(t, filepath.Join(t.TempDir(), "v.db"))

	req := testSaveRequest("dev")
	req.Secret = ""
	_, err := v.SaveConnection(req)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.InvalidInput))
}

func TestUpdateKeepsSecretWhenOmitted(t *testing.T) {
	v := openTestVault(t, filepath.Join(t.TempDir(), "v.db"))

	conn, err := v.SaveConnection(testSaveRequest("dev"))
	require.NoError(t, err)

	update := testSaveRequest("dev-renamed")
	update.ID = &conn.ID
	update.Secret = ""
	updated, err := v.SaveConnection(update)
	require.NoError(t, err)
	assert.Equal(t, "dev-renamed", updated.ProfileName)

	secret, err := v.DecryptSecret(updated)
	require.NoError(t, err)
	assert.Equal(t, "secret-value", secret)
}

func TestUpdateReplacesSecretWhenGiven(t *testing.T) {
	v := openTestVault(t, filepath.Join(t.TempDir(), "v.db"))

	conn, err := v.SaveConnection(testSaveRequest("dev"))
	require.NoError(t, err)

	update := testSaveRequest("dev")
	update.ID = &conn.ID
	update.Secret = "rotated"
	updated, err := v.SaveConnection(update)
	require.NoError(t, err)

	secret, err := v.DecryptSecret(updated)
	require.NoError(t, err)
	assert.Equal(t, "rotated", secret)
}

func TestUpdateUnknownConnection(t *testing.T) {
	v := openTestVault(t, filepath.Join(t.TempDir(), "v.db"))

	missing := int64(42)
	req := testSaveRequest("dev")
	req.ID = &missing
	_, err := v.SaveConnection(req)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestDeleteConnection(t *testing.T) {
	v := openTestVault(t, filepath.Join(t.TempDir(), "v.db"))

	conn, err := v.SaveConnection(testSaveRequest("dev"))
	require.NoError(t, err)

	deleted, err := v.DeleteConnection(conn.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = v.DeleteConnection(conn.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = v.GetConnection(conn.ID)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestListConnectionsOrder(t *testing.T) {
	v := openTestVault(t, filepath.Join(t.TempDir(), "v.db"))

	first, err := v.SaveConnection(testSaveRequest("first"))
	require.NoError(t, err)
	_, err = v.SaveConnection(testSaveRequest("second"))
	require.NoError(t, err)

	// touching pushes the profile to the front
	_, err = v.db.Exec("UPDATE connections SET last_used_at = last_used_at + 100 WHERE id = ?", first.ID)
	require.NoError(t, err)

	list, err := v.ListConnections()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "first", list[0].ProfileName)
}

func TestReopenWithSameKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.db")
	v := openTestVault(t, path)

	conn, err := v.SaveConnection(testSaveRequest("dev"))
	require.NoError(t, err)
	require.NoError(t, v.Close())

	reopened := openTestVault(t, path)
	loaded, err := reopened.GetConnection(conn.ID)
	require.NoError(t, err)

	secret, err := reopened.DecryptSecret(loaded)
	require.NoError(t, err)
	assert.Equal(t, "secret-value", secret)
}

func TestReopenWithWrongKeyFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.db")
	v := openTestVault(t, path)
	_, err := v.SaveConnection(testSaveRequest("dev"))
	require.NoError(t, err)
	require.NoError(t, v.Close())

	_, err = Open(path, "another-master-secret-entirely!!", nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Configuration))
}

func TestValidateEndpoint(t *testing.T) {
	v := openTestVault(t, filepath.Join(t.TempDir(), "v.db"))

	req := testSaveRequest("dev")
	req.Endpoint = "ftp://not-s3"
	_, err := v.SaveConnection(req)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.InvalidInput))

	req = testSaveRequest("bad name!")
	_, err = v.SaveConnection(req)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.InvalidInput))
}
