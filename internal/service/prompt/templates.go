package prompt

import (
	"fmt"
	"strings"
)

// Mode selects the assistant instruction for a session.
type Mode string

const (
	ModePrescription Mode = "prescription"
	ModeCombined     Mode = "combined"
	ModeGeneral      Mode = "general"
)

// Template defines the system instruction for one assistant mode.
type Template struct {
	SystemPrompt string
	Rules        []string
	Disclaimer   string
}

// TemplateSet holds the instruction templates keyed by mode.
type TemplateSet struct {
	templates map[Mode]*Template
}

// NewTemplateSet creates a set preloaded with the default templates.
func NewTemplateSet() *TemplateSet {
	set := &TemplateSet{templates: make(map[Mode]*Template)}
	set.loadDefaultTemplates()
	return set
}

// Get returns the template for mode.
func (ts *TemplateSet) Get(mode Mode) (*Template, error) {
	t, ok := ts.templates[mode]
	if !ok {
		return nil, fmt.Errorf("prompt template not found for mode: %s", mode)
	}
	return t, nil
}

// SystemInstruction renders the system message for mode. Unknown modes fall
// back to the general assistant.
func (ts *TemplateSet) SystemInstruction(mode Mode) string {
	t, err := ts.Get(mode)
	if err != nil {
		t = ts.templates[ModeGeneral]
	}

	var b strings.Builder
	b.WriteString(t.SystemPrompt)
	if len(t.Rules) > 0 {
		b.WriteString("\n\nRules:\n- ")
		b.WriteString(strings.Join(t.Rules, "\n- "))
	}
	if t.Disclaimer != "" {
		b.WriteString("\n\n")
		b.WriteString(t.Disclaimer)
	}
	return b.String()
}

const disclaimer = "Note that you are not a replacement for professional medical advice; " +
	"recommend consulting a doctor or pharmacist for decisions about treatment."

func (ts *TemplateSet) loadDefaultTemplates() {
	ts.templates[ModePrescription] = &Template{
		SystemPrompt: "You are a medical assistant that helps analyze prescription data. " +
			"Answer questions based on the prescription data provided in the next message.",
		Rules: []string{
			"Ground every answer in the prescription text; say so when the text does not contain the answer",
			"The text comes from OCR and may contain recognition errors; point out spellings that look garbled instead of guessing",
			"Quote drug names, strengths and schedules exactly as written",
		},
		Disclaimer: disclaimer,
	}

	ts.templates[ModeCombined] = &Template{
		SystemPrompt: "You are a medical assistant that helps analyze prescription data. " +
			"The next message contains several prescriptions, each labelled \"Prescription N:\". " +
			"Answer questions based on that data and name the prescription you are referring to.",
		Rules: []string{
			"Ground every answer in the prescription texts; say so when they do not contain the answer",
			"The texts come from OCR and may contain recognition errors",
			"Point out medicines that appear in more than one prescription when it is relevant",
		},
		Disclaimer: disclaimer,
	}

	ts.templates[ModeGeneral] = &Template{
		SystemPrompt: "You are a helpful medical assistant that can answer general medical questions.",
		Rules: []string{
			"Give clear, general information and avoid definitive diagnoses",
			"Urge the user to seek emergency care when symptoms sound serious",
		},
		Disclaimer: disclaimer,
	}
}
