package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// windowBinding ties one UI window to its session token and the bearer
// token used against the backend. A window has at most one session at a
// time; one session may back many windows.
type windowBinding struct {
	sessionToken string
	backendToken string
}

// Store is the process-wide session state: token -> session, window ->
// binding, plus the current user snapshot. It is constructed once at
// startup and threaded through every request context, never looked up
// ambiently, so tests get a fresh store each.
//
// Dispatches run on concurrent goroutines, so access is guarded even
// though only the auth routes ever write.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	windows  map[int64]*windowBinding
	user     *User
	logger   *slog.Logger
}

// NewStore creates an empty session store.
func NewStore(logger *slog.Logger) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		windows:  make(map[int64]*windowBinding),
		logger:   logger,
	}
}

// Create mints a new session for userID with a fresh opaque token.
func (s *Store) Create(userID string) *Session {
	sess := &Session{
		Token:     uuid.NewString(),
		UserID:    userID,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.sessions[sess.Token] = sess
	s.mu.Unlock()

	s.logger.Info("created session", "user_id", userID)
	return sess
}

// Get returns the session for token, or nil if none exists.
func (s *Store) Get(token string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[token]
}

// Delete removes the session for token. Window bindings that still point
// at the token simply stop resolving; the backend owns true expiry.
func (s *Store) Delete(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// SetUser stores the logged-in user snapshot.
func (s *Store) SetUser(user *User) {
	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
}

// GetUser returns the stored user snapshot, or nil before login.
func (s *Store) GetUser() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// AuthenticateWindow binds windowID to a session token, replacing any
// previous binding. The backend token is carried over only when rebinding
// to the same session.
func (s *Store) AuthenticateWindow(windowID int64, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.windows[windowID]
	binding := &windowBinding{sessionToken: token}
	if prev != nil && prev.sessionToken == token {
		binding.backendToken = prev.backendToken
	}
	s.windows[windowID] = binding
}

// SetBackendToken records the backend bearer token for windowID. A window
// that never authenticated gets a binding with no session so the token is
// not lost, but WindowSession still resolves to nil.
func (s *Store) SetBackendToken(windowID int64, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	binding := s.windows[windowID]
	if binding == nil {
		binding = &windowBinding{}
		s.windows[windowID] = binding
	}
	binding.backendToken = token
}

// BackendToken returns the backend bearer token bound to windowID.
func (s *Store) BackendToken(windowID int64) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	binding := s.windows[windowID]
	if binding == nil || binding.backendToken == "" {
		return "", false
	}
	return binding.backendToken, true
}

// WindowSession resolves windowID to its session, or nil when the window
// is unbound or its session has been deleted.
func (s *Store) WindowSession(windowID int64) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	binding := s.windows[windowID]
	if binding == nil {
		return nil
	}
	return s.sessions[binding.sessionToken]
}

// ClearWindow drops the binding for windowID, typically when the window
// closes or logs out. The session itself is left alone: other windows may
// still be bound to it.
func (s *Store) ClearWindow(windowID int64) {
	s.mu.Lock()
	delete(s.windows, windowID)
	s.mu.Unlock()
}
