package chat

import "time"

// AnchorKind describes where a session's grounding text came from.
type AnchorKind string

const (
	AnchorRecord    AnchorKind = "record"
	AnchorCombined  AnchorKind = "combined"
	AnchorTransient AnchorKind = "transient"
)

// SessionView is the read-only snapshot of a session exposed to callers.
type SessionView struct {
	ID         string     `json:"id"`
	Anchored   bool       `json:"anchored"`
	AnchorKind AnchorKind `json:"anchorKind,omitempty"`
	RecordIDs  []string   `json:"recordIds,omitempty"`
	AnchorText string     `json:"anchorText,omitempty"`
	Closed     bool       `json:"closed"`
	CreatedAt  time.Time  `json:"createdAt"`
	Transcript []Turn     `json:"transcript"`
}
