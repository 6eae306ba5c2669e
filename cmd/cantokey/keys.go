package main

import (
	"unicode"
	"unicode/utf8"

	"cantokey/internal/config"
	"cantokey/internal/ime"
)

// keyKind classifies a decoded terminal key.
type keyKind int

const (
	keyRune keyKind = iota
	keyBackspace
	keyEnter
	keyTab
	keyEscape
	keyLeft
	keyRight
	keyCtrl

	keyUnknown keyKind = -1
)

type key struct {
	kind keyKind
	r    rune // keyRune: the character; keyCtrl: the lowercase letter
}

const (
	byteEsc       = 0x1b
	byteDel       = 0x7f
	byteBackspace = 0x08
	byteTab       = 0x09
	byteEnter     = '\r'
	byteNewline   = '\n'
)

// decodeKeys parses raw terminal input. Bytes of an incomplete UTF-8
// sequence or escape sequence at the end of buf are returned as rest and
// must be prepended to the next read.
func decodeKeys(buf []byte) (keys []key, rest []byte) {
	for len(buf) > 0 {
		b := buf[0]
		switch {
		case b == byteEsc:
			k, n, ok := decodeEscape(buf)
			if !ok {
				return keys, buf
			}
			if k.kind != keyUnknown {
				keys = append(keys, k)
			}
			buf = buf[n:]
			continue
		case b == byteDel || b == byteBackspace:
			keys = append(keys, key{kind: keyBackspace})
		case b == byteEnter || b == byteNewline:
			keys = append(keys, key{kind: keyEnter})
		case b == byteTab:
			keys = append(keys, key{kind: keyTab})
		case b < 0x20:
			keys = append(keys, key{kind: keyCtrl, r: rune('a' + b - 1)})
		case b < utf8.RuneSelf:
			keys = append(keys, key{kind: keyRune, r: rune(b)})
		default:
			if !utf8.FullRune(buf) {
				return keys, buf
			}
			r, n := utf8.DecodeRune(buf)
			if r != utf8.RuneError {
				keys = append(keys, key{kind: keyRune, r: r})
			}
			buf = buf[n:]
			continue
		}
		buf = buf[1:]
	}
	return keys, nil
}

// decodeEscape reads an escape sequence at the start of buf. A lone ESC is
// the Escape key. Sequences that are not understood are consumed and
// reported as keyUnknown.
func decodeEscape(buf []byte) (key, int, bool) {
	if len(buf) == 1 {
		return key{kind: keyEscape}, 1, true
	}
	switch buf[1] {
	case '[', 'O':
	default:
		return key{kind: keyEscape}, 1, true
	}
	for i := 2; i < len(buf); i++ {
		c := buf[i]
		if c < 0x40 || c > 0x7e {
			continue
		}
		switch {
		case c == 'C' && i == 2:
			return key{kind: keyRight}, i + 1, true
		case c == 'D' && i == 2:
			return key{kind: keyLeft}, i + 1, true
		}
		return key{kind: keyUnknown}, i + 1, true
	}
	return key{}, 0, false
}

// keyState is what the key mapping needs to know about the controller.
type keyState struct {
	composing bool
	keyboard  ime.KeyboardType
	mode      ime.InputMode
	reverse   ime.SchemaID
	charForm  config.CharForm
	// pageStart and onPage locate the visible candidates.
	pageStart int
	onPage    int
}

// command is a terminal-only request handled outside the controller.
type command int

const (
	cmdNone command = iota
	cmdQuit
	cmdNextPage
	cmdPrevPage
)

var nextInputMode = map[ime.InputMode]ime.InputMode{
	ime.InputModeMixed:   ime.InputModeChinese,
	ime.InputModeChinese: ime.InputModeEnglish,
	ime.InputModeEnglish: ime.InputModeMixed,
}

// actionsFor maps a terminal key to controller actions.
//
//	Tab      cycle input mode      Ctrl+T  toggle char form
//	Ctrl+R   Cangjie lookup        Ctrl+S  symbol table
//	Ctrl+K   shift tap             Ctrl+W  delete word
//	Ctrl+N/P candidate pages       Ctrl+C  quit
func actionsFor(k key, st keyState) ([]ime.KeyAction, command) {
	switch k.kind {
	case keyBackspace:
		return []ime.KeyAction{ime.Backspace()}, cmdNone
	case keyEnter:
		return []ime.KeyAction{ime.NewLine()}, cmdNone
	case keyTab:
		return []ime.KeyAction{ime.SetInputMode(nextInputMode[st.mode])}, cmdNone
	case keyEscape:
		if st.composing {
			return []ime.KeyAction{ime.DeleteWordSwipe()}, cmdNone
		}
		return nil, cmdNone
	case keyLeft:
		return []ime.KeyAction{ime.MoveCursor(-1)}, cmdNone
	case keyRight:
		return []ime.KeyAction{ime.MoveCursor(1)}, cmdNone
	case keyCtrl:
		return ctrlActions(k.r, st)
	}

	r := k.r
	switch {
	case r == ' ':
		return []ime.KeyAction{ime.Space()}, cmdNone
	case st.composing && r >= '1' && r <= '9' && int(r-'1') < st.onPage:
		return []ime.KeyAction{ime.SelectCandidate(st.pageStart + int(r-'1'))}, cmdNone
	case st.composing && r == rune(ime.SymbolDelimiter):
		return []ime.KeyAction{ime.Symbol(ime.SymbolDelimiter)}, cmdNone
	case unicode.IsLower(r) && st.keyboard.IsUppercase():
		r = unicode.ToUpper(r)
	}
	return []ime.KeyAction{ime.Char(string(r))}, cmdNone
}

func ctrlActions(r rune, st keyState) ([]ime.KeyAction, command) {
	switch r {
	case 'c', 'd':
		return nil, cmdQuit
	case 'n':
		return nil, cmdNextPage
	case 'p':
		return nil, cmdPrevPage
	case 'w':
		return []ime.KeyAction{ime.DeleteWord()}, cmdNone
	case 'k':
		return []ime.KeyAction{ime.ShiftDown(), ime.ShiftUp()}, cmdNone
	case 's':
		return []ime.KeyAction{ime.Symbol(ime.SymbolSym)}, cmdNone
	case 'r':
		if st.reverse == ime.SchemaNone {
			return []ime.KeyAction{ime.ReverseLookup(ime.SchemaCangjie)}, cmdNone
		}
		return []ime.KeyAction{ime.ReverseLookup(ime.SchemaNone)}, cmdNone
	case 't':
		if st.charForm == config.CharFormSimplified {
			return []ime.KeyAction{ime.SetCharForm(config.CharFormTraditional)}, cmdNone
		}
		return []ime.KeyAction{ime.SetCharForm(config.CharFormSimplified)}, cmdNone
	}
	return nil, cmdNone
}
