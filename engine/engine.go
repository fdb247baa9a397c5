package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/oklog/ulid/v2"

	"github.com/drummonds/goPageTurn/config"
	"github.com/drummonds/goPageTurn/database"
	"github.com/drummonds/goPageTurn/engine/pdfrenderer"
)

// Logger is global since we will need it everywhere
var Logger = slog.Default()

// ServerHandler will inject the variables needed into routes
type ServerHandler struct {
	DB           database.Repository
	Echo         *echo.Echo
	ServerConfig config.ServerConfig
	Opener       pdfrenderer.Opener
	Sessions     *SessionRegistry
}

// Session couples one open document's viewer with its HTTP bookkeeping.
type Session struct {
	ID       ulid.ULID
	Path     string
	Viewer   *Viewer
	OpenedAt time.Time

	cancel func() // stops the session's animation clock

	mu       sync.Mutex
	lastSeen time.Time
}

// Touch records activity so the idle sweeper leaves the session alone.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// IdleSince reports when the session was last touched.
func (s *Session) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// close stops the clock and releases the viewer.
func (s *Session) close() {
	if s.cancel != nil {
		s.cancel()
	}
	if err := s.Viewer.Close(); err != nil {
		Logger.Warn("Error closing viewer", "session", s.ID.String(), "error", err)
	}
}

// SessionRegistry tracks the live viewer sessions by ULID.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*Session)}
}

// Add registers a session.
func (r *SessionRegistry) Add(session *Session) {
	session.Touch()
	r.mu.Lock()
	r.sessions[session.ID.String()] = session
	r.mu.Unlock()
}

// Get looks a session up and marks it active.
func (r *SessionRegistry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	session, ok := r.sessions[id]
	r.mu.Unlock()
	if ok {
		session.Touch()
	}
	return session, ok
}

// Remove closes a session and drops it from the registry.
func (r *SessionRegistry) Remove(id string) bool {
	r.mu.Lock()
	session, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	session.close()
	return true
}

// Len reports how many sessions are live.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// SweepIdle closes every session untouched for longer than maxIdle and
// reports how many were closed.
func (r *SessionRegistry) SweepIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	r.mu.Lock()
	var expired []*Session
	for id, session := range r.sessions {
		if session.IdleSince().Before(cutoff) {
			expired = append(expired, session)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, session := range expired {
		Logger.Info("Closing idle session", "session", session.ID.String(), "path", session.Path)
		session.close()
	}
	return len(expired)
}

// CloseAll tears down every session, used at shutdown.
func (r *SessionRegistry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, session := range sessions {
		session.close()
	}
}
