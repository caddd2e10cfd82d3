// Package prompt decides what is sent to the language model on every turn.
package prompt

import (
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/medlens/rxchat/backend/internal/logging"
	"github.com/medlens/rxchat/backend/internal/model/chat"
	"github.com/medlens/rxchat/backend/internal/service/session"
)

// TruncationMarker is appended to anchor text cut to the configured maximum.
const TruncationMarker = "\n[... prescription text truncated ...]"

// GroundingPrefix introduces the anchor text in the grounding message.
const GroundingPrefix = "Prescription data:\n"

// Assembler builds prompts from a session and a new user message. It never
// mutates the session.
type Assembler struct {
	templates      *TemplateSet
	maxAnchorRunes int
	logger         zerolog.Logger
}

// Option customises an Assembler.
type Option func(*Assembler)

// WithLogger sets the logger used for truncation warnings.
func WithLogger(l zerolog.Logger) Option {
	return func(a *Assembler) { a.logger = l }
}

// NewAssembler returns an Assembler. maxAnchorRunes <= 0 disables truncation.
func NewAssembler(maxAnchorRunes int, opts ...Option) *Assembler {
	a := &Assembler{
		templates:      NewTemplateSet(),
		maxAnchorRunes: maxAnchorRunes,
		logger:         logging.Component("prompt"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Build returns the ordered messages for one model call: the system
// instruction, the grounding message when the session is anchored, the prior
// transcript and finally userMessage.
func (a *Assembler) Build(s *session.Session, userMessage string) []chat.Message {
	transcript := s.Transcript()
	messages := make([]chat.Message, 0, len(transcript)+3)

	anchor, anchored := s.Anchor()
	if anchored {
		messages = append(messages,
			chat.Message{Role: chat.RoleSystem, Content: a.templates.SystemInstruction(modeFor(anchor))},
			chat.Message{Role: chat.RoleSystem, Content: GroundingPrefix + a.anchorText(s.ID, anchor.Text)},
		)
	} else {
		messages = append(messages, chat.Message{Role: chat.RoleSystem, Content: a.templates.SystemInstruction(ModeGeneral)})
	}

	for _, turn := range transcript {
		messages = append(messages, chat.Message{Role: turn.Role, Content: turn.Text})
	}

	return append(messages, chat.Message{Role: chat.RoleUser, Content: userMessage})
}

func (a *Assembler) anchorText(sessionID, text string) string {
	if a.maxAnchorRunes <= 0 {
		return text
	}
	total := utf8.RuneCountInString(text)
	if total <= a.maxAnchorRunes {
		return text
	}

	a.logger.Warn().
		Str("session", sessionID).
		Int("anchorRunes", total).
		Int("maxRunes", a.maxAnchorRunes).
		Msg("anchor text exceeds maximum length, truncating")

	return string([]rune(text)[:a.maxAnchorRunes]) + TruncationMarker
}

func modeFor(anchor session.Anchor) Mode {
	if anchor.Kind == chat.AnchorCombined {
		return ModeCombined
	}
	return ModePrescription
}
