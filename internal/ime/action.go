package ime

import (
	"fmt"

	"cantokey/internal/config"
)

// ActionKind identifies a key action.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionCharacter
	ActionEngineSymbol
	ActionSpace
	ActionNewLine
	ActionBackspace
	ActionDeleteWord
	ActionDeleteWordSwipe
	ActionEmoji
	ActionShiftDown
	ActionShiftUp
	ActionShiftRelax
	ActionKeyboardType
	ActionSetCharForm
	ActionRefreshMarkedText
	ActionReverseLookup
	ActionSelectCandidate
	ActionMoveCursor
	ActionSetInputMode
)

var actionKindNames = [...]string{
	ActionNone:              "none",
	ActionCharacter:         "character",
	ActionEngineSymbol:      "engine_symbol",
	ActionSpace:             "space",
	ActionNewLine:           "newline",
	ActionBackspace:         "backspace",
	ActionDeleteWord:        "delete_word",
	ActionDeleteWordSwipe:   "delete_word_swipe",
	ActionEmoji:             "emoji",
	ActionShiftDown:         "shift_down",
	ActionShiftUp:           "shift_up",
	ActionShiftRelax:        "shift_relax",
	ActionKeyboardType:      "keyboard_type",
	ActionSetCharForm:       "set_char_form",
	ActionRefreshMarkedText: "refresh_marked_text",
	ActionReverseLookup:     "reverse_lookup",
	ActionSelectCandidate:   "select_candidate",
	ActionMoveCursor:        "move_cursor",
	ActionSetInputMode:      "set_input_mode",
}

func (k ActionKind) String() string {
	if k >= 0 && int(k) < len(actionKindNames) {
		return actionKindNames[k]
	}
	return fmt.Sprintf("ActionKind(%d)", int(k))
}

// KeyAction is a user intent delivered by the keyboard. Only the payload
// field matching Kind is meaningful.
type KeyAction struct {
	Kind     ActionKind
	Text     string          // Character, Emoji
	Symbol   EngineSymbol    // EngineSymbol
	Index    int             // SelectCandidate
	Offset   int             // MoveCursor
	Keyboard KeyboardType    // KeyboardType
	CharForm config.CharForm // SetCharForm
	Schema   SchemaID        // ReverseLookup
	Mode     InputMode       // SetInputMode
}

// Constructors, one per action kind.
func Char(s string) KeyAction { return KeyAction{Kind: ActionCharacter, Text: s} }
func Symbol(s EngineSymbol) KeyAction { return KeyAction{Kind: ActionEngineSymbol, Symbol: s} }
func Space() KeyAction { return KeyAction{Kind: ActionSpace} }
func NewLine() KeyAction { return KeyAction{Kind: ActionNewLine} }
func Backspace() KeyAction { return KeyAction{Kind: ActionBackspace} }
func DeleteWord() KeyAction { return KeyAction{Kind: ActionDeleteWord} }
func DeleteWordSwipe() KeyAction { return KeyAction{Kind: ActionDeleteWordSwipe} }
func Emoji(s string) KeyAction { return KeyAction{Kind: ActionEmoji, Text: s} }
func ShiftDown() KeyAction { return KeyAction{Kind: ActionShiftDown} }
func ShiftUp() KeyAction { return KeyAction{Kind: ActionShiftUp} }
func ShiftRelax() KeyAction { return KeyAction{Kind: ActionShiftRelax} }
func SwitchKeyboard(t KeyboardType) KeyAction { return KeyAction{Kind: ActionKeyboardType, Keyboard: t} }
func SetCharForm(f config.CharForm) KeyAction { return KeyAction{Kind: ActionSetCharForm, CharForm: f} }
func RefreshMarkedText() KeyAction { return KeyAction{Kind: ActionRefreshMarkedText} }
func ReverseLookup(s SchemaID) KeyAction { return KeyAction{Kind: ActionReverseLookup, Schema: s} }
func SelectCandidate(i int) KeyAction { return KeyAction{Kind: ActionSelectCandidate, Index: i} }
func MoveCursor(offset int) KeyAction { return KeyAction{Kind: ActionMoveCursor, Offset: offset} }
func SetInputMode(m InputMode) KeyAction { return KeyAction{Kind: ActionSetInputMode, Mode: m} }

// KeyboardType is the layout the keyboard is showing.
type KeyboardType int

const (
	KeyboardNone KeyboardType = iota
	KeyboardLettersLower
	KeyboardLettersUpper
	KeyboardLettersLocked
	KeyboardNumeric
	KeyboardSymbolic
	KeyboardEmojis
)

var keyboardTypeNames = [...]string{
	KeyboardNone:          "none",
	KeyboardLettersLower:  "lower",
	KeyboardLettersUpper:  "upper",
	KeyboardLettersLocked: "locked",
	KeyboardNumeric:       "numeric",
	KeyboardSymbolic:      "symbolic",
	KeyboardEmojis:        "emojis",
}

func (t KeyboardType) String() string {
	if t >= 0 && int(t) < len(keyboardTypeNames) {
		return keyboardTypeNames[t]
	}
	return fmt.Sprintf("KeyboardType(%d)", int(t))
}

// IsLetters reports whether the letter layout is showing in any case.
func (t KeyboardType) IsLetters() bool {
	return t == KeyboardLettersLower || t == KeyboardLettersUpper || t == KeyboardLettersLocked
}

// IsUppercase reports whether letter keys produce capitals.
func (t KeyboardType) IsUppercase() bool {
	return t == KeyboardLettersUpper || t == KeyboardLettersLocked
}
