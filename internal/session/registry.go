package session

import (
	"sync"

	"github.com/rs/zerolog"
)

// Registry tracks the live sessions of this process by attempt ID.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	log      zerolog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		log:      log.With().Str("component", "session_registry").Logger(),
	}
}

// Add registers s under its attempt ID.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	r.sessions[s.ID()] = s
	n := len(r.sessions)
	r.mu.Unlock()

	r.log.Debug().Str("attempt_id", s.ID()).Int("live", n).Msg("Session registered")
}

// Get returns the live session for attemptID.
func (r *Registry) Get(attemptID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[attemptID]
	return s, ok
}

// Remove unregisters and closes the session for attemptID.
func (r *Registry) Remove(attemptID string) {
	r.mu.Lock()
	s, ok := r.sessions[attemptID]
	delete(r.sessions, attemptID)
	r.mu.Unlock()

	if ok {
		s.Close()
	}
}

// Release closes s and unregisters it, unless its attempt ID has since been
// taken over by a newer session.
func (r *Registry) Release(s *Session) {
	r.mu.Lock()
	if cur, ok := r.sessions[s.ID()]; ok && cur == s {
		delete(r.sessions, s.ID())
	}
	r.mu.Unlock()

	s.Close()
}

// Evict closes every live session the student holds for testID, so that a
// reconnect continues from the latest draft instead of racing the old
// connection. It returns how many sessions were closed.
func (r *Registry) Evict(testID string, studentID int) int {
	r.mu.Lock()
	var victims []*Session
	for id, s := range r.sessions {
		if s.TestID() == testID && s.StudentID() == studentID {
			victims = append(victims, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range victims {
		r.log.Info().Str("attempt_id", s.ID()).Msg("Evicting superseded session")
		s.Close()
	}
	return len(victims)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll closes every live session, for shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
	r.log.Info().Int("count", len(all)).Msg("Closed all sessions")
}
