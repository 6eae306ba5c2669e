package ime

import (
	"strings"
	"unicode"

	"github.com/rivo/uniseg"
)

// MemorySurface is an in-memory TextSurface. It behaves like a host text
// field: every mutation is bracketed by synchronous change notifications
// to the observer, which may re-enter the controller.
type MemorySurface struct {
	before      string
	after       string
	marked      string
	markedCaret int

	kind      SurfaceKind
	noAutocap bool
	observer  ChangeObserver
}

// NewMemorySurface returns an empty document of the given kind.
func NewMemorySurface(kind SurfaceKind) *MemorySurface {
	return &MemorySurface{kind: kind}
}

// SetObserver registers the receiver of change notifications.
func (m *MemorySurface) SetObserver(o ChangeObserver) { m.observer = o }

// SetKind changes the field kind, as when focus moves to another field.
func (m *MemorySurface) SetKind(k SurfaceKind) { m.kind = k }

// SetAutocapitalizationDisabled mirrors a host field with autocapitalization off.
func (m *MemorySurface) SetAutocapitalizationDisabled(v bool) { m.noAutocap = v }

func (m *MemorySurface) change(fn func()) {
	if m.observer != nil {
		m.observer.TextWillChange()
	}
	fn()
	if m.observer != nil {
		m.observer.TextDidChange()
	}
}

func (m *MemorySurface) TextBeforeCaret() string { return m.before }
func (m *MemorySurface) TextAfterCaret() string { return m.after }
func (m *MemorySurface) Kind() SurfaceKind { return m.kind }
func (m *MemorySurface) AutocapitalizationDisabled() bool { return m.noAutocap }

// Text returns the committed document without the marked region.
func (m *MemorySurface) Text() string { return m.before + m.after }

// MarkedText returns the marked region and the caret inside it.
func (m *MemorySurface) MarkedText() (string, int) { return m.marked, m.markedCaret }

// Insert replaces the marked region, if any, with text.
func (m *MemorySurface) Insert(text string) {
	m.change(func() {
		m.marked, m.markedCaret = "", 0
		m.before += text
	})
}

// DeleteBackward collapses the marked region, or removes one character.
func (m *MemorySurface) DeleteBackward() {
	m.change(func() {
		if m.marked != "" {
			m.marked, m.markedCaret = "", 0
			return
		}
		m.before = strings.TrimSuffix(m.before, lastGrapheme(m.before))
	})
}

// DeleteBackwardWord collapses the marked region, or removes trailing
// whitespace and the word before it.
func (m *MemorySurface) DeleteBackwardWord() {
	m.change(func() {
		if m.marked != "" {
			m.marked, m.markedCaret = "", 0
			return
		}
		s := strings.TrimRightFunc(m.before, unicode.IsSpace)
		i := strings.LastIndexFunc(s, unicode.IsSpace)
		m.before = s[:i+1]
	})
}

func (m *MemorySurface) SetMarkedText(text string, caret int) {
	m.change(func() {
		m.marked, m.markedCaret = text, caret
	})
}

func (m *MemorySurface) ClearMarkedText() {
	if m.marked == "" {
		return
	}
	m.change(func() {
		m.marked, m.markedCaret = "", 0
	})
}

// MoveCaret moves over committed text by whole characters.
func (m *MemorySurface) MoveCaret(offset int) {
	if offset == 0 {
		return
	}
	m.change(func() {
		m.marked, m.markedCaret = "", 0
		for ; offset < 0 && m.before != ""; offset++ {
			g := lastGrapheme(m.before)
			m.before = strings.TrimSuffix(m.before, g)
			m.after = g + m.after
		}
		for ; offset > 0 && m.after != ""; offset-- {
			g, rest, _, _ := uniseg.FirstGraphemeClusterInString(m.after, -1)
			m.before += g
			m.after = rest
		}
	})
}

// ReplaceText simulates an edit made by the host or the user outside the
// keyboard, such as a paste or a tap that moves the caret.
func (m *MemorySurface) ReplaceText(before, after string) {
	m.change(func() {
		m.before, m.after = before, after
		m.marked, m.markedCaret = "", 0
	})
}
