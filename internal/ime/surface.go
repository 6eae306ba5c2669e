package ime

import (
	"fmt"
	"strings"
)

// SurfaceKind describes the kind of field the host is editing.
type SurfaceKind int

const (
	SurfaceDefault SurfaceKind = iota
	SurfacePlain
	SurfaceURL
	SurfaceWebSearch
	SurfaceNumeric
	SurfaceASCIINumeric
	SurfaceDecimal
	SurfaceEmail
	SurfaceNamePhone
	SurfaceNumbersAndPunctuation
	SurfacePhonePad
)

var surfaceKindNames = map[SurfaceKind]string{
	SurfaceDefault:               "default",
	SurfacePlain:                 "plain",
	SurfaceURL:                   "url",
	SurfaceWebSearch:             "websearch",
	SurfaceNumeric:               "numeric",
	SurfaceASCIINumeric:          "ascii-numeric",
	SurfaceDecimal:               "decimal",
	SurfaceEmail:                 "email",
	SurfaceNamePhone:             "name-phone",
	SurfaceNumbersAndPunctuation: "numbers-punctuation",
	SurfacePhonePad:              "phone-pad",
}

func (k SurfaceKind) String() string {
	if name, ok := surfaceKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("SurfaceKind(%d)", int(k))
}

// ParseSurfaceKind parses a surface kind name as printed by String.
func ParseSurfaceKind(s string) (SurfaceKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for kind, name := range surfaceKindNames {
		if name == s {
			return kind, nil
		}
	}
	return SurfaceDefault, fmt.Errorf("unknown surface kind: %q", s)
}

// smartInputDisabled reports whether smart spacing is turned off for the kind.
// These fields expect exact text such as numbers, addresses and identifiers.
func (k SurfaceKind) smartInputDisabled() bool {
	switch k {
	case SurfaceURL, SurfaceASCIINumeric, SurfaceDecimal, SurfaceEmail,
		SurfaceNamePhone, SurfaceNumeric, SurfaceNumbersAndPunctuation, SurfacePhonePad:
		return true
	}
	return false
}

// stripsMarkedSpaces reports whether marked text is shown without the
// engine's syllable spaces.
func (k SurfaceKind) stripsMarkedSpaces() bool {
	return k == SurfaceURL || k == SurfaceEmail || k == SurfaceWebSearch
}

// TextSurface is the host's editable document.
//
// The marked (provisional) region is not part of TextBeforeCaret or
// TextAfterCaret. A surface may notify its ChangeObserver synchronously
// from inside any mutating call.
type TextSurface interface {
	TextBeforeCaret() string
	TextAfterCaret() string

	Insert(text string)
	DeleteBackward()
	DeleteBackwardWord()

	// SetMarkedText replaces the marked region and places the caret at
	// the given rune offset inside it.
	SetMarkedText(text string, caret int)
	ClearMarkedText()

	// MoveCaret moves the caret by offset characters over committed text.
	MoveCaret(offset int)

	Kind() SurfaceKind

	// AutocapitalizationDisabled reports that the host asked for no
	// automatic capitalization in this field.
	AutocapitalizationDisabled() bool
}

// ChangeObserver receives host document change notifications.
type ChangeObserver interface {
	TextWillChange()
	TextDidChange()
}
