// Package session implements password login and the in-memory session
// store. Sessions slide: every authenticated request pushes the expiry
// forward by the configured window.
package session

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"sync"
	"time"

	"github.com/oddbit-project/s3browser/apperr"
	"github.com/oddbit-project/s3browser/log"
)

// loginFailureDelay is a fixed penalty applied to every failed login so
// attempts do not become a timing oracle
const loginFailureDelay = 500 * time.Millisecond

// Session is the live state of one authenticated browser
type Session struct {
	ID           string
	ConnectionID int64 // 0 = no connection bound
	ExpiresAt    time.Time
}

// Store keeps live sessions and verifies the login password
type Store struct {
	config   *Config
	password []byte
	sessions map[string]*Session
	logger   *log.Logger
	mu       sync.Mutex

	stopCleanup    chan struct{}
	cleanupRunning bool
}

// NewStore creates a session store bound to the configured login password
func NewStore(config *Config, password string, logger *log.Logger) (*Store, error) {
	if config == nil {
		config = NewConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New("session-store")
	}
	return &Store{
		config:      config,
		password:    []byte(password),
		sessions:    make(map[string]*Session),
		logger:      logger,
		stopCleanup: make(chan struct{}),
	}, nil
}

// Config returns the store configuration
func (s *Store) Config() *Config {
	return s.config
}

// Login verifies the password in constant time and creates a session;
// failures pay a fixed delay
func (s *Store) Login(password string) (*Session, error) {
	if subtle.ConstantTimeCompare([]byte(password), s.password) != 1 {
		time.Sleep(loginFailureDelay)
		return nil, apperr.New(apperr.Unauthorized, "invalid password")
	}

	session := &Session{
		ID:        generateSessionID(),
		ExpiresAt: time.Now().Add(s.expiration()),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	s.logger.Info("session created")
	return session, nil
}

// Authenticate resolves a session id and refreshes its expiry; unknown
// and expired sessions are Unauthorized
func (s *Store) Authenticate(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, apperr.New(apperr.Unauthorized, "no active session")
	}
	if time.Now().After(session.ExpiresAt) {
		delete(s.sessions, id)
		return nil, apperr.New(apperr.Unauthorized, "session expired")
	}
	session.ExpiresAt = time.Now().Add(s.expiration())
	copied := *session
	return &copied, nil
}

// BindConnection marks a connection as active for the session,
// replacing any prior binding
func (s *Store) BindConnection(id string, connectionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok || time.Now().After(session.ExpiresAt) {
		return apperr.New(apperr.Unauthorized, "no active session")
	}
	session.ConnectionID = connectionID
	return nil
}

// Logout removes the session from the store
func (s *Store) Logout(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Count returns the number of live sessions (expired included until swept)
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) expiration() time.Duration {
	return time.Duration(s.config.ExpirationSeconds) * time.Second
}

// StartCleanup starts the background sweep of expired sessions
func (s *Store) StartCleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cleanupRunning {
		return
	}
	s.cleanupRunning = true

	interval := time.Duration(s.config.CleanupIntervalSeconds) * time.Second
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stopCleanup:
				return
			}
		}
	}()
}

// StopCleanup stops the background sweep
func (s *Store) StopCleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cleanupRunning {
		return
	}
	s.cleanupRunning = false
	close(s.stopCleanup)
}

func (s *Store) sweep() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			delete(s.sessions, id)
		}
	}
}

// generateSessionID creates a random 128-bit session ID
func generateSessionID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
