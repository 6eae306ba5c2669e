package ime

import (
	"fmt"

	"cantokey/internal/config"
)

// InputMode selects which composition the user sees.
type InputMode string

const (
	InputModeMixed   InputMode = "mixed"
	InputModeChinese InputMode = "chinese"
	InputModeEnglish InputMode = "english"
)

// ParseInputMode validates a stored or configured mode name.
func ParseInputMode(s string) (InputMode, error) {
	switch m := InputMode(s); m {
	case InputModeMixed, InputModeChinese, InputModeEnglish:
		return m, nil
	}
	return "", fmt.Errorf("unknown input mode: %q", s)
}

// SchemaID names an engine schema. SchemaNone means no reverse lookup.
type SchemaID string

const (
	SchemaNone     SchemaID = ""
	SchemaJyutping SchemaID = "jyutping"
	SchemaCangjie  SchemaID = "cangjie"
	SchemaQuick    SchemaID = "quick"
	SchemaMandarin SchemaID = "mandarin"
	SchemaStroke   SchemaID = "stroke"
	SchemaLoengfan SchemaID = "loengfan"
)

// EngineSymbol is a control key understood by the composition engine.
type EngineSymbol rune

const (
	// SymbolDelimiter separates syllables inside a composition.
	SymbolDelimiter EngineSymbol = '\''
	// SymbolSym opens the engine's symbol table; it may start a composition.
	SymbolSym EngineSymbol = '/'
)

func isEngineSymbol(r rune) bool {
	return r == rune(SymbolDelimiter) || r == rune(SymbolSym)
}

// Composition is the engine's in-progress text and its caret, in runes.
type Composition struct {
	Text  string
	Caret int
}

// CompositionEngine converts typed keys into compositions and candidates.
type CompositionEngine interface {
	// Ready reports whether the engine can accept input.
	Ready() bool
	IsComposing() bool

	// ProcessChar feeds an ASCII letter; false means the engine rejected it.
	ProcessChar(r rune) bool
	ProcessSymbol(s EngineSymbol) bool
	ProcessBackspace() bool
	Clear()

	Composition(mode InputMode) (Composition, bool)

	// SelectCandidate selects the i-th candidate. It returns the text to
	// commit once the whole input has been consumed; a partial selection
	// returns false and leaves the rest composing.
	SelectCandidate(i int) (string, bool)
	Candidates() []string
	LoadMore() bool

	MoveCaret(offset int) bool
	SetReverseLookup(schema SchemaID)
	RefreshCharForm(form config.CharForm)
}
