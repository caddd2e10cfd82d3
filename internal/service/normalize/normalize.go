// Package normalize turns raw OCR output into the canonical text stored on a
// prescription record and embedded in prompts.
//
// The rule, applied in order:
//
//  1. invalid UTF-8 is dropped and the text is folded to Unicode NFKC, which
//     also resolves ligatures and full-width forms OCR engines tend to emit;
//  2. line endings (CR, CRLF, U+2028, U+2029, VT, FF) become "\n", and tabs
//     and other Unicode spaces become ' ';
//  3. control and format runes are removed;
//  4. inside each line, runs of spaces collapse to one and the line is trimmed;
//  5. blank lines are dropped, every other line break is kept so separate drug
//     entries stay on separate lines.
//
// Steps 1-5 repeat until the text stops changing, which makes Normalize
// idempotent for every input whose result is non-empty.
package normalize

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ErrEmptyInput reports that nothing printable survived normalization.
var ErrEmptyInput = errors.New("normalized text is empty")

const maxPasses = 8

// Normalize applies the package rule to raw and returns the canonical text.
func Normalize(raw string) (string, error) {
	text := strings.ToValidUTF8(raw, "")
	for i := 0; i < maxPasses; i++ {
		next := clean(norm.NFKC.String(text))
		if next == text {
			break
		}
		text = next
	}

	if text == "" {
		return "", ErrEmptyInput
	}
	return text, nil
}

func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', '\u0085', '\u2028', '\u2029':
		return true
	}
	return false
}

func clean(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	var (
		pendingSpace bool
		lineHasText  bool
		wroteLine    bool
	)

	for _, r := range text {
		switch {
		case isLineBreak(r):
			if lineHasText {
				wroteLine = true
			}
			lineHasText = false
			pendingSpace = false
		case unicode.IsSpace(r):
			if lineHasText {
				pendingSpace = true
			}
		case !unicode.IsPrint(r):
		default:
			if !lineHasText && wroteLine {
				b.WriteByte('\n')
			}
			if pendingSpace {
				b.WriteByte(' ')
				pendingSpace = false
			}
			b.WriteRune(r)
			lineHasText = true
		}
	}
	return b.String()
}
