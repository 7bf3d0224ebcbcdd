// Package sessions owns the mapping from gateway token to authenticated
// caller. Everything lives in memory and dies with the process.
package sessions

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"noren-gateway/internal/apierr"
	"noren-gateway/internal/broker"
)

// Session is immutable once created.
type Session struct {
	Token     string
	Identity  string
	Username  string
	Broker    broker.Session
	CreatedAt time.Time
}

type entry struct {
	session  Session
	lastSeen time.Time
}

// Store is safe for concurrent use. A zero ttl means sessions live for the
// process lifetime; otherwise a token idle longer than ttl is expired lazily
// on the next Lookup.
type Store struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]*entry
	now      func() time.Time
}

func NewStore(ttl time.Duration) *Store {
	return &Store{
		ttl:      ttl,
		sessions: make(map[string]*entry),
		now:      time.Now,
	}
}

// Create generates an unguessable token and stores the session under it.
func (s *Store) Create(identity, username string, bs broker.Session) string {
	token := uuid.NewString()
	now := s.now()
	s.mu.Lock()
	s.sessions[token] = &entry{
		session: Session{
			Token:     token,
			Identity:  identity,
			Username:  username,
			Broker:    bs,
			CreatedAt: now,
		},
		lastSeen: now,
	}
	s.mu.Unlock()
	return token
}

// Lookup resolves a token, refreshing its idle timer. Unknown and expired
// tokens both report ErrUnauthenticated.
func (s *Store) Lookup(token string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[token]
	if !ok {
		return Session{}, apierr.ErrUnauthenticated
	}
	now := s.now()
	if s.ttl > 0 && now.Sub(e.lastSeen) > s.ttl {
		delete(s.sessions, token)
		return Session{}, apierr.ErrUnauthenticated
	}
	e.lastSeen = now
	return e.session, nil
}

// Remove is idempotent.
func (s *Store) Remove(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}
