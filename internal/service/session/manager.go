package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medlens/rxchat/backend/internal/model/chat"
	"github.com/medlens/rxchat/backend/internal/model/prescription"
)

var ErrNoRecords = errors.New("no prescriptions to anchor on")

// maxClosedIDs bounds how many closed session ids are remembered so that a
// late request for one reports the session as closed rather than unknown.
const maxClosedIDs = 4096

// Manager opens sessions and keeps a registry of the open ones so handlers can
// resolve them by id. Closing a session drops it from the registry.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	closed   map[string]struct{}
	order    []string
	now      func() time.Time
}

// NewManager returns an empty Manager using the wall clock.
func NewManager() *Manager {
	return NewManagerWithClock(func() time.Time { return time.Now().UTC() })
}

// NewManagerWithClock returns an empty Manager that stamps turns with now.
func NewManagerWithClock(now func() time.Time) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		closed:   make(map[string]struct{}),
		now:      now,
	}
}

// OpenAnchored starts a session grounded on record's text.
func (m *Manager) OpenAnchored(ctx context.Context, record prescription.Record) (*Session, error) {
	if strings.TrimSpace(record.RawText) == "" {
		return nil, prescription.ErrEmptyText
	}
	return m.open(ctx, &Anchor{
		Kind:      chat.AnchorRecord,
		Text:      record.RawText,
		RecordIDs: []string{record.ID},
	})
}

// OpenUnanchored starts a direct-chat session with no grounding record.
func (m *Manager) OpenUnanchored(ctx context.Context) (*Session, error) {
	return m.open(ctx, nil)
}

// OpenCombined starts a session grounded on several records at once, in the
// order given. Each record is labelled "Prescription N:".
func (m *Manager) OpenCombined(ctx context.Context, records []prescription.Record) (*Session, error) {
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	if len(records) == 1 {
		return m.OpenAnchored(ctx, records[0])
	}

	parts := make([]string, 0, len(records))
	ids := make([]string, 0, len(records))
	for i, record := range records {
		parts = append(parts, fmt.Sprintf("Prescription %d:\n%s", i+1, record.RawText))
		ids = append(ids, record.ID)
	}
	return m.open(ctx, &Anchor{
		Kind:      chat.AnchorCombined,
		Text:      strings.Join(parts, "\n\n"),
		RecordIDs: ids,
	})
}

// OpenTransient starts a session grounded on text that was never stored.
func (m *Manager) OpenTransient(ctx context.Context, text string) (*Session, error) {
	if strings.TrimSpace(text) == "" {
		return nil, prescription.ErrEmptyText
	}
	return m.open(ctx, &Anchor{Kind: chat.AnchorTransient, Text: text})
}

func (m *Manager) open(_ context.Context, anchor *Anchor) (*Session, error) {
	s := &Session{
		ID:         uuid.NewString(),
		CreatedAt:  m.now(),
		anchor:     anchor,
		now:        m.now,
		transcript: make([]chat.Turn, 0, 16),
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	return s, nil
}

// Get resolves an open session by identifier. A recently closed id yields
// ErrSessionClosed.
func (m *Manager) Get(_ context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[sessionID]; ok {
		return s, nil
	}
	if _, ok := m.closed[sessionID]; ok {
		return nil, ErrSessionClosed
	}
	return nil, ErrSessionNotFound
}

// Close marks the session terminal and releases it from the registry.
// Closing twice is a no-op.
func (m *Manager) Close(_ context.Context, s *Session) error {
	if s == nil {
		return ErrSessionNotFound
	}
	s.Close()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return nil
	}
	delete(m.sessions, s.ID)
	m.closed[s.ID] = struct{}{}
	m.order = append(m.order, s.ID)
	if len(m.order) > maxClosedIDs {
		delete(m.closed, m.order[0])
		m.order = m.order[1:]
	}
	return nil
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
