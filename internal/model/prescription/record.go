package prescription

import (
	"strings"
	"time"
	"unicode/utf8"
)

const previewRunes = 80

// Record is a stored prescription extraction. It is never updated after creation.
type Record struct {
	ID        string    `json:"id"`
	RawText   string    `json:"rawText"`
	CreatedAt time.Time `json:"createdAt"`
}

// Summary is the listing shape of a record.
type Summary struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Preview   string    `json:"preview,omitempty"`
}

// Summary returns the listing view of r.
func (r Record) Summary() Summary {
	return Summary{ID: r.ID, CreatedAt: r.CreatedAt, Preview: Preview(r.RawText)}
}

// Preview returns the first line of text, cut to a fixed number of runes.
func Preview(text string) string {
	first, _, _ := strings.Cut(text, "\n")
	if utf8.RuneCountInString(first) <= previewRunes {
		return first
	}
	runes := []rune(first)
	return string(runes[:previewRunes-1]) + "…"
}

// Newer reports whether a sorts before b in listings: newest first, ties by id descending.
func Newer(a, b Summary) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID > b.ID
	}
	return a.CreatedAt.After(b.CreatedAt)
}
