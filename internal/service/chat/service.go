package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/yui-companion/backend/internal/model/chat"
)

var (
	ErrPersonaRequired = errors.New("persona id is required")
	ErrSessionNotFound = errors.New("session not found")
)

// maxTranscriptEntries bounds the transcript kept per live session; older
// entries are dropped first.
const maxTranscriptEntries = 500

// Service keeps the registry of live companion sessions and their
// transcripts. Closing a session evicts it.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]chat.Session
	entries  map[string][]chat.Entry
}

// NewService bootstraps the in-memory session registry.
func NewService() *Service {
	return &Service{
		sessions: make(map[string]chat.Session),
		entries:  make(map[string][]chat.Entry),
	}
}

// CreateSession provisions an anonymous session bound to a persona.
func (s *Service) CreateSession(_ context.Context, personaID string) (chat.Session, error) {
	if personaID == "" {
		return chat.Session{}, ErrPersonaRequired
	}

	session := chat.Session{
		ID:        uuid.NewString(),
		PersonaID: personaID,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.entries[session.ID] = make([]chat.Entry, 0, 16)
	s.mu.Unlock()

	return session, nil
}

// SaveMessage appends a message to the session transcript.
func (s *Service) SaveMessage(_ context.Context, sessionID string, message chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.entries[sessionID]
	if !ok {
		return ErrSessionNotFound
	}

	entries = append(entries, chat.Entry{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	})
	if over := len(entries) - maxTranscriptEntries; over > 0 {
		entries = append(entries[:0:0], entries[over:]...)
	}
	s.entries[sessionID] = entries
	return nil
}

// CloseSession removes the session and its transcript from the registry.
func (s *Service) CloseSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	delete(s.entries, sessionID)
	return nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session, nil
}

// LoadTranscript returns stored entries for the provided session.
func (s *Service) LoadTranscript(_ context.Context, sessionID string) ([]chat.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, ok := s.entries[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]chat.Entry, len(entries))
	copy(copied, entries)
	return copied, nil
}

// ActiveCount returns the number of live sessions.
func (s *Service) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
