package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"cantokey/internal/config"
	"cantokey/internal/ime"
)

func TestDecodeKeys(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		want     []key
		wantRest string
	}{
		{"letters", "ab", []key{{keyRune, 'a'}, {keyRune, 'b'}}, ""},
		{"backspace", "\x7f", []key{{kind: keyBackspace}}, ""},
		{"ctrl-h backspace", "\x08", []key{{kind: keyBackspace}}, ""},
		{"enter", "\r", []key{{kind: keyEnter}}, ""},
		{"tab", "\t", []key{{kind: keyTab}}, ""},
		{"ctrl-c", "\x03", []key{{keyCtrl, 'c'}}, ""},
		{"ctrl-w", "\x17", []key{{keyCtrl, 'w'}}, ""},
		{"left", "\x1b[D", []key{{kind: keyLeft}}, ""},
		{"right", "\x1b[C", []key{{kind: keyRight}}, ""},
		{"ss3 right", "\x1bOC", []key{{kind: keyRight}}, ""},
		{"delete ignored", "\x1b[3~", nil, ""},
		{"ctrl-right ignored", "\x1b[1;5C", nil, ""},
		{"escape", "\x1b", []key{{kind: keyEscape}}, ""},
		{"escape then letter", "\x1bx", []key{{kind: keyEscape}, {keyRune, 'x'}}, ""},
		{"split escape", "a\x1b[", []key{{keyRune, 'a'}}, "\x1b["},
		{"utf-8", "你", []key{{keyRune, '你'}}, ""},
		{"split utf-8", "a\xe4\xbd", []key{{keyRune, 'a'}}, "\xe4\xbd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys, rest := decodeKeys([]byte(tt.in))
			assert.Equal(t, tt.want, keys)
			assert.Equal(t, tt.wantRest, string(rest))
		})
	}
}

func TestDecodeKeysResumes(t *testing.T) {
	keys, rest := decodeKeys([]byte("\xe4\xbd"))
	assert.Empty(t, keys)
	keys, rest = decodeKeys(append(rest, 0xa0))
	assert.Equal(t, []key{{keyRune, '你'}}, keys)
	assert.Empty(t, rest)
}

func TestActionsFor(t *testing.T) {
	idle := keyState{keyboard: ime.KeyboardLettersLower, mode: ime.InputModeMixed, charForm: config.CharFormTraditional}
	composing := idle
	composing.composing = true
	composing.pageStart = 9
	composing.onPage = 5

	tests := []struct {
		name    string
		k       key
		st      keyState
		want    []ime.KeyAction
		wantCmd command
	}{
		{"space", key{keyRune, ' '}, idle, []ime.KeyAction{ime.Space()}, cmdNone},
		{"letter", key{keyRune, 'a'}, idle, []ime.KeyAction{ime.Char("a")}, cmdNone},
		{"shifted letter", key{keyRune, 'a'}, keyState{keyboard: ime.KeyboardLettersUpper}, []ime.KeyAction{ime.Char("A")}, cmdNone},
		{"caps lock", key{keyRune, 'a'}, keyState{keyboard: ime.KeyboardLettersLocked}, []ime.KeyAction{ime.Char("A")}, cmdNone},
		{"typed capital", key{keyRune, 'A'}, idle, []ime.KeyAction{ime.Char("A")}, cmdNone},
		{"digit selects", key{keyRune, '3'}, composing, []ime.KeyAction{ime.SelectCandidate(11)}, cmdNone},
		{"digit past page", key{keyRune, '7'}, composing, []ime.KeyAction{ime.Char("7")}, cmdNone},
		{"digit idle", key{keyRune, '3'}, idle, []ime.KeyAction{ime.Char("3")}, cmdNone},
		{"delimiter", key{keyRune, '\''}, composing, []ime.KeyAction{ime.Symbol(ime.SymbolDelimiter)}, cmdNone},
		{"apostrophe idle", key{keyRune, '\''}, idle, []ime.KeyAction{ime.Char("'")}, cmdNone},
		{"backspace", key{kind: keyBackspace}, idle, []ime.KeyAction{ime.Backspace()}, cmdNone},
		{"enter", key{kind: keyEnter}, idle, []ime.KeyAction{ime.NewLine()}, cmdNone},
		{"tab", key{kind: keyTab}, idle, []ime.KeyAction{ime.SetInputMode(ime.InputModeChinese)}, cmdNone},
		{"escape composing", key{kind: keyEscape}, composing, []ime.KeyAction{ime.DeleteWordSwipe()}, cmdNone},
		{"escape idle", key{kind: keyEscape}, idle, nil, cmdNone},
		{"left", key{kind: keyLeft}, idle, []ime.KeyAction{ime.MoveCursor(-1)}, cmdNone},
		{"right", key{kind: keyRight}, idle, []ime.KeyAction{ime.MoveCursor(1)}, cmdNone},
		{"quit", key{keyCtrl, 'c'}, idle, nil, cmdQuit},
		{"eof", key{keyCtrl, 'd'}, idle, nil, cmdQuit},
		{"next page", key{keyCtrl, 'n'}, composing, nil, cmdNextPage},
		{"prev page", key{keyCtrl, 'p'}, composing, nil, cmdPrevPage},
		{"delete word", key{keyCtrl, 'w'}, idle, []ime.KeyAction{ime.DeleteWord()}, cmdNone},
		{"shift tap", key{keyCtrl, 'k'}, idle, []ime.KeyAction{ime.ShiftDown(), ime.ShiftUp()}, cmdNone},
		{"sym", key{keyCtrl, 's'}, idle, []ime.KeyAction{ime.Symbol(ime.SymbolSym)}, cmdNone},
		{"reverse on", key{keyCtrl, 'r'}, idle, []ime.KeyAction{ime.ReverseLookup(ime.SchemaCangjie)}, cmdNone},
		{"reverse off", key{keyCtrl, 'r'}, keyState{reverse: ime.SchemaCangjie}, []ime.KeyAction{ime.ReverseLookup(ime.SchemaNone)}, cmdNone},
		{"simplified", key{keyCtrl, 't'}, idle, []ime.KeyAction{ime.SetCharForm(config.CharFormSimplified)}, cmdNone},
		{"traditional", key{keyCtrl, 't'}, keyState{charForm: config.CharFormSimplified}, []ime.KeyAction{ime.SetCharForm(config.CharFormTraditional)}, cmdNone},
		{"unbound ctrl", key{keyCtrl, 'z'}, idle, nil, cmdNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, cmd := actionsFor(tt.k, tt.st)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantCmd, cmd)
		})
	}
}

func TestTabCyclesInputModes(t *testing.T) {
	mode := ime.InputModeMixed
	var seen []ime.InputMode
	for i := 0; i < 3; i++ {
		actions, _ := actionsFor(key{kind: keyTab}, keyState{mode: mode})
		mode = actions[0].Mode
		seen = append(seen, mode)
	}
	assert.Equal(t, []ime.InputMode{ime.InputModeChinese, ime.InputModeEnglish, ime.InputModeMixed}, seen)
}
