// Package session holds per-conversation mutable state: the append-only
// transcript, the current diagram, and the request lifecycle phase. State
// is always reached through an explicit *Session, never a package global.
package session

import (
	"sync"
	"time"

	"github.com/umldraft/umlbot/internal/models"
)

// DiagramState is the single live diagram of a session. Code is either
// empty or delimited markup; it is overwritten on success and preserved on
// failure.
type DiagramState struct {
	Type        models.DiagramType
	Code        string
	ImageBase64 string
	ImageURL    string
}

type Session struct {
	ID string

	mu       sync.Mutex
	phase    models.Phase
	messages []models.ChatMessage
	diagram  DiagramState
	nextID   int
}

func newSession(id string, diagram DiagramState) *Session {
	return &Session{
		ID:      id,
		phase:   models.PhaseIdle,
		diagram: diagram,
		nextID:  1,
	}
}

// Append adds a message to the transcript and returns it with its assigned
// ID. The transcript only grows; messages are never edited in place.
func (s *Session) Append(role, content string) models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := models.ChatMessage{
		ID:        s.nextID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	s.nextID++
	s.messages = append(s.messages, msg)
	return msg
}

// Recent returns up to limit most recent transcript messages.
func (s *Session) Recent(limit int) []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]models.ChatMessage(nil), msgs...)
}

func (s *Session) Phase() models.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) SetPhase(p models.Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = p
}

func (s *Session) Diagram() DiagramState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.diagram
}

func (s *Session) SetDiagram(d DiagramState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diagram = d
}

// Snapshot returns a consistent read-only view for API responses.
func (s *Session) Snapshot() *models.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &models.SessionSnapshot{
		SessionID:   s.ID,
		Phase:       s.phase,
		DiagramType: s.diagram.Type,
		Code:        s.diagram.Code,
		ImageBase64: s.diagram.ImageBase64,
		ImageURL:    s.diagram.ImageURL,
		Messages:    append([]models.ChatMessage(nil), s.messages...),
	}
}
