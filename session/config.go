package session

import (
	"net/http"

	"github.com/oddbit-project/s3browser/utils"
)

const (
	// DefaultSessionCookieName is the cookie name for storing sessions
	DefaultSessionCookieName = "s3browser_session"

	// DefaultSessionExpiration is the sliding session expiration (4 hours)
	DefaultSessionExpiration = 4 * 3600

	// DefaultCleanupInterval sets how often the session cleanup runs
	DefaultCleanupInterval = 300 // 5 min

	ErrInvalidExpirationSeconds = utils.Error("session expiration seconds must be a positive integer")
	ErrInvalidSameSite          = utils.Error("invalid sameSite value")
	ErrSessionNotFound          = utils.Error("session not found")
	ErrSessionExpired           = utils.Error("session expired")
)

// Config holds configuration for the session store
type Config struct {
	CookieName             string `json:"cookieName"`             // CookieName is the name of the cookie used to store the session ID
	ExpirationSeconds      int    `json:"expirationSeconds"`      // sliding expiration; every authenticated request resets the timer
	Secure                 bool   `json:"secure"`                 // Secure sets the Secure flag on cookies
	HttpOnly               bool   `json:"httpOnly"`               // HttpOnly sets the HttpOnly flag on cookies (should be true)
	SameSite               int    `json:"sameSite"`               // SameSite sets the SameSite policy for cookies
	Path                   string `json:"path"`                   // Path sets the path for the cookie
	CleanupIntervalSeconds int    `json:"cleanupIntervalSeconds"` // CleanupIntervalSeconds sets how often the session cleanup runs
}

func (c *Config) Validate() error {
	if c.ExpirationSeconds <= 0 {
		return ErrInvalidExpirationSeconds
	}
	switch http.SameSite(c.SameSite) {
	case http.SameSiteDefaultMode, http.SameSiteLaxMode, http.SameSiteStrictMode, http.SameSiteNoneMode:
	default:
		return ErrInvalidSameSite
	}
	return nil
}

// NewConfig returns a default session configuration
func NewConfig() *Config {
	return &Config{
		CookieName:             DefaultSessionCookieName,
		ExpirationSeconds:      DefaultSessionExpiration,
		Secure:                 false,
		HttpOnly:               true,
		SameSite:               int(http.SameSiteLaxMode),
		Path:                   "/",
		CleanupIntervalSeconds: DefaultCleanupInterval,
	}
}
