package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"trivia-room-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// The lock only keeps the maps consistent across rooms; per-session
// serialization is the engine's job.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
	codes    map[string]string // join code -> session id
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]domain.Session),
		codes:    make(map[string]string),
	}
}

func (s *SessionStore) Create(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.codes[session.JoinCode]; ok {
		if holder, ok := s.sessions[id]; ok && holder.Status != domain.StatusFinished {
			return domain.ErrJoinCodeTaken
		}
	}
	s.sessions[session.ID] = session.Clone()
	s.codes[session.JoinCode] = session.ID
	return nil
}

func (s *SessionStore) Get(_ context.Context, id string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session.Clone(), nil
}

func (s *SessionStore) GetByJoinCode(_ context.Context, code string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.codes[code]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	session, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session.Clone(), nil
}

// Update replaces the whole record.
func (s *SessionStore) Update(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; !ok {
		return domain.ErrSessionNotFound
	}
	s.sessions[session.ID] = session.Clone()
	return nil
}

func (s *SessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(id)
	return nil
}

func (s *SessionStore) deleteLocked(id string) {
	session, ok := s.sessions[id]
	if !ok {
		return
	}
	if s.codes[session.JoinCode] == id {
		delete(s.codes, session.JoinCode)
	}
	delete(s.sessions, id)
}

// ListPublicWaiting returns public lobbies that can still be joined, oldest first.
func (s *SessionStore) ListPublicWaiting(_ context.Context) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Session, 0)
	for _, session := range s.sessions {
		if session.Status == domain.StatusWaiting && session.Settings.Visibility == domain.VisibilityPublic {
			out = append(out, session.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *SessionStore) Sweep(_ context.Context, now time.Time, maxAge, finishedGrace time.Duration) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []string
	for id, session := range s.sessions {
		if Expired(session, now, maxAge, finishedGrace) {
			s.deleteLocked(id)
			removed = append(removed, id)
		}
	}
	return removed, nil
}

// Expired applies the retention policy shared by every store.
func Expired(session domain.Session, now time.Time, maxAge, finishedGrace time.Duration) bool {
	if now.Sub(session.CreatedAt) > maxAge {
		return true
	}
	return session.Status == domain.StatusFinished &&
		session.FinishedAt != nil &&
		now.Sub(*session.FinishedAt) > finishedGrace
}

// Len reports how many sessions are stored.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
