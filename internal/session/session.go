package session

import (
	"sync"
	"time"

	"github.com/eclosion/backend/internal/crypto"
)

// Session is the process-wide unlocked state. Unlocking loads the
// decrypted credentials and keeps the passphrase in memory only; a
// restart or explicit lock drops everything.
type Session struct {
	mu         sync.RWMutex
	creds      *Credentials
	passphrase string
	unlockedAt time.Time
}

func New() *Session {
	return &Session{}
}

// Set marks the session unlocked with the given credentials.
func (s *Session) Set(creds *Credentials, passphrase string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = creds
	s.passphrase = passphrase
	s.unlockedAt = time.Now().UTC()
}

// Clear locks the session and forgets all key material.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = nil
	s.passphrase = ""
	s.unlockedAt = time.Time{}
}

// Active reports whether the session is unlocked.
func (s *Session) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds != nil
}

// Credentials returns the unlocked credentials, or nil when locked.
func (s *Session) Credentials() *Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}

// Passphrase returns the session passphrase, empty when locked.
func (s *Session) Passphrase() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.passphrase
}

// Cipher returns a cipher bound to the session passphrase, or nil when
// locked.
func (s *Session) Cipher() *crypto.Cipher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.passphrase == "" {
		return nil
	}
	return crypto.NewCipher(s.passphrase)
}

// UnlockedAt returns when the session was last unlocked.
func (s *Session) UnlockedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unlockedAt
}
