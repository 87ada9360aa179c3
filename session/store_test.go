package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddbit-project/s3browser/apperr"
)

const testPassword = "correct-horse-battery-staple"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(NewConfig(), testPassword, nil)
	require.NoError(t, err)
	return store
}

func TestLoginSuccess(t *testing.T) {
	store := newTestStore(t)

	sess, err := store.Login(testPassword)
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Zero(t, sess.ConnectionID)
	assert.True(t, sess.ExpiresAt.After(time.Now()))
	assert.Equal(t, 1, store.Count())
}

func TestLoginWrongPassword(t *testing.T) {
	store := newTestStore(t)

	start := time.Now()
	_, err := store.Login("wrong")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Unauthorized))
	// failed attempts pay the fixed penalty
	assert.GreaterOrEqual(t, time.Since(start), loginFailureDelay)
	assert.Zero(t, store.Count())
}

func TestSessionIDsAreUnique(t *testing.T) {
	store := newTestStore(t)

	first, err := store.Login(testPassword)
	require.NoError(t, err)
	second, err := store.Login(testPassword)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestAuthenticateSlidesExpiry(t *testing.T) {
	store := newTestStore(t)

	sess, err := store.Login(testPassword)
	require.NoError(t, err)

	// age the session artificially, then authenticate
	store.mu.Lock()
	store.sessions[sess.ID].ExpiresAt = time.Now().Add(time.Minute)
	store.mu.Unlock()

	refreshed, err := store.Authenticate(sess.ID)
	require.NoError(t, err)
	assert.Greater(t, refreshed.ExpiresAt, time.Now().Add(time.Hour))
}

func TestAuthenticateUnknownSession(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Authenticate("no-such-session")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Unauthorized))
}

func TestAuthenticateExpiredSession(t *testing.T) {
	store := newTestStore(t)

	sess, err := store.Login(testPassword)
	require.NoError(t, err)

	store.mu.Lock()
	store.sessions[sess.ID].ExpiresAt = time.Now().Add(-time.Second)
	store.mu.Unlock()

	_, err = store.Authenticate(sess.ID)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Unauthorized))
	// expired sessions are removed on access
	assert.Zero(t, store.Count())
}

func TestBindConnection(t *testing.T) {
	store := newTestStore(t)

	sess, err := store.Login(testPassword)
	require.NoError(t, err)

	require.NoError(t, store.BindConnection(sess.ID, 7))
	bound, err := store.Authenticate(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), bound.ConnectionID)

	// rebinding replaces the prior connection
	require.NoError(t, store.BindConnection(sess.ID, 9))
	bound, err = store.Authenticate(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(9), bound.ConnectionID)
}

func TestBindConnectionWithoutSession(t *testing.T) {
	store := newTestStore(t)

	err := store.BindConnection("missing", 1)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Unauthorized))
}

func TestLogout(t *testing.T) {
	store := newTestStore(t)

	sess, err := store.Login(testPassword)
	require.NoError(t, err)

	store.Logout(sess.ID)
	_, err = store.Authenticate(sess.ID)
	require.Error(t, err)
}

func TestSweepRemovesExpired(t *testing.T) {
	store := newTestStore(t)

	live, err := store.Login(testPassword)
	require.NoError(t, err)
	dead, err := store.Login(testPassword)
	require.NoError(t, err)

	store.mu.Lock()
	store.sessions[dead.ID].ExpiresAt = time.Now().Add(-time.Second)
	store.mu.Unlock()

	store.sweep()
	assert.Equal(t, 1, store.Count())
	_, err = store.Authenticate(live.ID)
	assert.NoError(t, err)
}

func TestAuthenticateReturnsCopy(t *testing.T) {
	store := newTestStore(t)

	sess, err := store.Login(testPassword)
	require.NoError(t, err)

	copied, err := store.Authenticate(sess.ID)
	require.NoError(t, err)
	copied.ConnectionID = 99

	// mutating the returned session does not touch the store
	stored, err := store.Authenticate(sess.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.ConnectionID)
}

func TestConfigValidation(t *testing.T) {
	cfg := NewConfig()
	cfg.ExpirationSeconds = 0
	_, err := NewStore(cfg, testPassword, nil)
	assert.ErrorIs(t, err, ErrInvalidExpirationSeconds)

	cfg = NewConfig()
	cfg.SameSite = 42
	_, err = NewStore(cfg, testPassword, nil)
	assert.ErrorIs(t, err, ErrInvalidSameSite)
}
