package session

import (
	"errors"
	"sync"
	"time"

	"github.com/medlens/rxchat/backend/internal/model/chat"
)

var (
	ErrSessionClosed   = errors.New("session is closed")
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidRole     = errors.New("invalid transcript role")
)

// Anchor is the grounding text of a session, copied by value at open time.
type Anchor struct {
	Kind      chat.AnchorKind
	Text      string
	RecordIDs []string
}

// Session is one conversation. Its anchor never changes; its transcript only grows.
type Session struct {
	ID        string
	CreatedAt time.Time

	anchor *Anchor
	now    func() time.Time

	mu         sync.Mutex
	transcript []chat.Turn
	closed     bool
}

// Anchor returns a copy of the session anchor and whether one exists.
func (s *Session) Anchor() (Anchor, bool) {
	if s.anchor == nil {
		return Anchor{}, false
	}
	a := *s.anchor
	a.RecordIDs = append([]string(nil), s.anchor.RecordIDs...)
	return a, true
}

// Anchored reports whether the session is grounded on prescription text.
func (s *Session) Anchored() bool { return s.anchor != nil }

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Transcript returns a copy of the turns in order.
func (s *Session) Transcript() []chat.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]chat.Turn, len(s.transcript))
	copy(copied, s.transcript)
	return copied
}

// Len returns the number of turns.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transcript)
}

// AppendTurn adds one turn to the transcript.
func (s *Session) AppendTurn(role chat.Role, text string) error {
	if !role.Valid() {
		return ErrInvalidRole
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.transcript = append(s.transcript, chat.Turn{Role: role, Text: text, Timestamp: s.now()})
	return nil
}

// Stamp returns the current time on the session clock.
func (s *Session) Stamp() time.Time { return s.now() }

// AppendExchange adds a user turn sent at sentAt followed by an assistant turn
// stamped now. Either both are recorded or neither is.
func (s *Session) AppendExchange(userText string, sentAt time.Time, assistantText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.transcript = append(s.transcript,
		chat.Turn{Role: chat.RoleUser, Text: userText, Timestamp: sentAt},
		chat.Turn{Role: chat.RoleAssistant, Text: assistantText, Timestamp: s.now()},
	)
	return nil
}

// Close marks the session terminal. Closing twice is a no-op.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// View returns a serialisable snapshot of the session.
func (s *Session) View() chat.SessionView {
	view := chat.SessionView{
		ID:         s.ID,
		CreatedAt:  s.CreatedAt,
		Anchored:   s.anchor != nil,
		Transcript: s.Transcript(),
		Closed:     s.Closed(),
	}
	if a, ok := s.Anchor(); ok {
		view.AnchorKind = a.Kind
		view.RecordIDs = a.RecordIDs
		view.AnchorText = a.Text
	}
	return view
}
