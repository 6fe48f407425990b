package services

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tillpoint/controlplane/internal/models"
)

// Session is one signed-in console session.
type Session struct {
	ID        string      `json:"id"`
	AccountID uint        `json:"account_id"`
	Role      models.Role `json:"role"`
	IPAddress string      `json:"ip_address"`
	UserAgent string      `json:"user_agent"`
	CreatedAt time.Time   `json:"created_at"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// SessionStore tracks active sessions in memory. Expired sessions are dropped
// lazily on access so no background sweeper is needed. Close discards every
// session and makes the store reject new ones.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	ttl      time.Duration
	now      func() time.Time
	closed   bool
}

// NewSessionStore returns an empty store issuing sessions valid for ttl.
func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &SessionStore{sessions: make(map[string]Session), ttl: ttl, now: time.Now}
}

// Create opens a session for the account.
func (s *SessionStore) Create(accountID uint, role models.Role, ip, userAgent string) (Session, error) {
	now := s.now()
	sess := Session{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Role:      role,
		IPAddress: ip,
		UserAgent: userAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Session{}, ErrSessionInvalid
	}
	s.sessions[sess.ID] = sess
	return sess, nil
}

// Get returns the session if it exists and has not expired.
func (s *SessionStore) Get(id string) (Session, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return Session{}, false
	}
	if !s.now().Before(sess.ExpiresAt) {
		s.Revoke(id)
		return Session{}, false
	}
	return sess, true
}

// Revoke removes one session. It reports whether the session existed.
func (s *SessionStore) Revoke(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

// RevokeAccount removes every session belonging to accountID and returns how
// many were dropped.
func (s *SessionStore) RevokeAccount(accountID uint) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if sess.AccountID == accountID {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// Count returns the number of unexpired sessions.
func (s *SessionStore) Count() int {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, sess := range s.sessions {
		if now.Before(sess.ExpiresAt) {
			n++
		}
	}
	return n
}

// Close drops all sessions.
func (s *SessionStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]Session)
	s.closed = true
}
