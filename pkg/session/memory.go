package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/balidesk/oracle/pkg/oerr"
)

// MemoryStore is an in-process Store for tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (s *MemoryStore) Create(ctx context.Context, userID, sessionID string) (*Session, error) {
	if sessionID == "" {
		sessionID = NewSessionID()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[sessionID]; ok {
		return cloneSession(existing), nil
	}
	now := time.Now().UTC()
	sess := &Session{ID: sessionID, UserID: userID, CreatedAt: now, UpdatedAt: now}
	s.sessions[sessionID] = sess
	return cloneSession(sess), nil
}

func (s *MemoryStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, oerr.E(oerr.KindNotFound, "session.Get", fmt.Errorf("session %s not found", sessionID))
	}
	out := cloneSession(sess)
	out.Turns = nil
	return out, nil
}

func (s *MemoryStore) AppendTurn(ctx context.Context, sessionID string, turn *Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return oerr.E(oerr.KindNotFound, "session.AppendTurn", fmt.Errorf("session %s not found", sessionID))
	}
	t := *turn
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	sess.Turns = append(sess.Turns, &t)
	sess.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) Recent(ctx context.Context, sessionID string, n int) ([]*Turn, error) {
	if n <= 0 {
		n = DefaultRecentTurns
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	turns := sess.Turns
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]*Turn, len(turns))
	for i, t := range turns {
		c := *t
		out[i] = &c
	}
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func cloneSession(sess *Session) *Session {
	out := *sess
	out.Turns = make([]*Turn, len(sess.Turns))
	for i, t := range sess.Turns {
		c := *t
		out.Turns[i] = &c
	}
	return &out
}

var _ Store = (*MemoryStore)(nil)
