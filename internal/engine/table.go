package engine

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"cantokey/internal/config"
	"cantokey/internal/ime"
)

const (
	defaultPageSize  = 10
	englishWordLimit = 5
)

// WordSource supplies learned English words. store.Store satisfies it.
type WordSource interface {
	WordsWithPrefix(prefix string, limit int) ([]string, error)
}

// Options configures a TableEngine.
type Options struct {
	Keyboard config.Keyboard
	Words    WordSource
	Logger   *slog.Logger
}

type candidate struct {
	text string
	// consumed counts the letters of the remaining input the candidate covers.
	consumed int
}

type selection struct {
	text string
	runes int
}

// TableEngine composes Jyutping input against a Lexicon. It implements
// ime.CompositionEngine. Deploy may run on another goroutine; every other
// method must be called from the input goroutine.
type TableEngine struct {
	stateMachine

	log   *slog.Logger
	words WordSource

	lexMu sync.RWMutex
	lex   *Lexicon
	cfg   config.EngineConfig
	mixed bool

	charForm config.CharForm
	reverse  ime.SchemaID

	raw      []rune
	caret    int
	selected []selection
	consumed int

	all     []candidate
	loaded  int
	learned map[string]int
}

var _ ime.CompositionEngine = (*TableEngine)(nil)

// NewTableEngine creates an engine in the uninitialized state.
func NewTableEngine(opts Options) *TableEngine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TableEngine{
		log:      logger.With("component", "engine"),
		words:    opts.Words,
		mixed:    opts.Keyboard.MixedMode,
		charForm: opts.Keyboard.CharForm,
		learned:  map[string]int{},
	}
}

// Deploy writes the schema patch and loads the lexicon. The state moves
// to StateSucceeded or StateFailure.
func (e *TableEngine) Deploy(cfg config.EngineConfig) error {
	e.setState(StateDeploying)

	quick := cfg.UserDataDir != "" && hasQuickStartFlag(cfg.UserDataDir)
	if !quick && cfg.UserDataDir != "" {
		if err := GenerateSchemaPatch(cfg); err != nil {
			e.log.Warn("schema patch not written", "error", err)
		}
	}

	lex, err := LoadLexicon(cfg.LexiconPath)
	if err != nil {
		e.setState(StateFailure)
		return fmt.Errorf("deploy: %w", err)
	}

	e.lexMu.Lock()
	e.lex = lex
	e.cfg = cfg
	e.lexMu.Unlock()

	if !quick && cfg.UserDataDir != "" {
		if err := writeQuickStartFlag(cfg.UserDataDir); err != nil {
			e.log.Warn("quick start flag not written", "error", err)
		}
	}
	e.log.Info("engine deployed", "quick_start", quick, "schemas", len(lex.Schemas))
	e.setState(StateSucceeded)
	return nil
}

// SetMixedMode enables English candidates next to Chinese ones.
func (e *TableEngine) SetMixedMode(mixed bool) {
	e.lexMu.Lock()
	e.mixed = mixed
	e.lexMu.Unlock()
}

func (e *TableEngine) Ready() bool { return e.State() == StateSucceeded }
func (e *TableEngine) IsComposing() bool { return len(e.raw) > 0 }

func (e *TableEngine) symMode() bool {
	return len(e.raw) > 0 && e.raw[0] == rune(ime.SymbolSym)
}

func isASCIILetter(r rune) bool {
	return r < utf8.RuneSelf && unicode.IsLetter(r)
}

func (e *TableEngine) insert(r rune) {
	e.raw = slices.Insert(e.raw, e.caret, r)
	e.caret++
	e.refresh()
}

// ProcessChar accepts ASCII letters.
func (e *TableEngine) ProcessChar(r rune) bool {
	if !e.Ready() || !isASCIILetter(r) {
		return false
	}
	e.insert(r)
	return true
}

// ProcessSymbol handles the syllable delimiter and the sym key, which
// opens the symbol tables when nothing is composing.
func (e *TableEngine) ProcessSymbol(s ime.EngineSymbol) bool {
	if !e.Ready() {
		return false
	}
	switch s {
	case ime.SymbolDelimiter:
		if !e.IsComposing() || e.symMode() {
			return false
		}
		if e.caret > 0 && e.raw[e.caret-1] == rune(ime.SymbolDelimiter) {
			return true
		}
		e.insert(rune(s))
		return true
	case ime.SymbolSym:
		if e.IsComposing() {
			return false
		}
		e.insert(rune(s))
		return true
	}
	return false
}

// ProcessBackspace removes the character before the caret, or undoes the
// last partial selection when the caret is at its end.
func (e *TableEngine) ProcessBackspace() bool {
	if !e.IsComposing() {
		return false
	}
	switch {
	case e.caret > e.consumed:
		e.raw = slices.Delete(e.raw, e.caret-1, e.caret)
		e.caret--
	case len(e.selected) > 0:
		last := e.selected[len(e.selected)-1]
		e.selected = e.selected[:len(e.selected)-1]
		e.consumed -= last.runes
	default:
		return false
	}
	if len(e.raw) == 0 {
		e.Clear()
		return true
	}
	e.refresh()
	return true
}

func (e *TableEngine) Clear() {
	e.raw, e.caret = nil, 0
	e.selected, e.consumed = nil, 0
	e.all, e.loaded = nil, 0
}

func (e *TableEngine) selectedText() string {
	var b strings.Builder
	for _, s := range e.selected {
		b.WriteString(s.text)
	}
	return b.String()
}

// Composition renders the input. Chinese mode splits syllables, English
// mode shows the letters as typed, and mixed mode splits only input that
// is complete Jyutping and not an English word.
func (e *TableEngine) Composition(mode ime.InputMode) (ime.Composition, bool) {
	if !e.IsComposing() {
		return ime.Composition{}, false
	}
	if e.symMode() {
		return ime.Composition{Text: string(e.raw), Caret: e.caret}, true
	}

	prefix := e.selectedText()
	rest := e.raw[e.consumed:]
	restCaret := e.caret - e.consumed

	body, caret := string(rest), restCaret
	split := mode == ime.InputModeChinese
	if mode == ime.InputModeMixed {
		input := letters(rest)
		_, complete := segment(input)
		split = complete && !e.isEnglishWord(input)
	}
	if split {
		body, caret = syllabify(rest, restCaret)
	}
	return ime.Composition{
		Text:  prefix + body,
		Caret: utf8.RuneCountInString(prefix) + caret,
	}, true
}

func (e *TableEngine) Candidates() []string {
	out := make([]string, e.loaded)
	for i, c := range e.all[:e.loaded] {
		out[i] = c.text
	}
	return out
}

func (e *TableEngine) pageSize() int {
	e.lexMu.RLock()
	defer e.lexMu.RUnlock()
	if e.cfg.PageSize > 0 {
		return e.cfg.PageSize
	}
	return defaultPageSize
}

// LoadMore extends the loaded candidates by a page.
func (e *TableEngine) LoadMore() bool {
	if e.loaded >= len(e.all) {
		return false
	}
	e.loaded = min(e.loaded+e.pageSize(), len(e.all))
	return true
}

// SelectCandidate commits the candidate once the whole input is covered.
// A candidate covering only a prefix is kept as a partial selection.
func (e *TableEngine) SelectCandidate(i int) (string, bool) {
	if i < 0 || i >= e.loaded {
		return "", false
	}
	c := e.all[i]
	if e.symMode() {
		e.Clear()
		return c.text, true
	}

	e.learn(c.text)
	e.selected = append(e.selected, selection{text: c.text, runes: e.rawRunesFor(c.consumed)})
	e.consumed += e.selected[len(e.selected)-1].runes
	if e.consumed >= len(e.raw) {
		out := e.selectedText()
		e.Clear()
		return out, true
	}
	e.caret = len(e.raw)
	e.refresh()
	return "", false
}

// rawRunesFor converts a letter count of the remaining input to raw runes,
// swallowing delimiters inside and right after the covered letters.
func (e *TableEngine) rawRunesFor(letterCount int) int {
	n := 0
	rest := e.raw[e.consumed:]
	for n < len(rest) && letterCount > 0 {
		if rest[n] != rune(ime.SymbolDelimiter) {
			letterCount--
		}
		n++
	}
	for n < len(rest) && rest[n] == rune(ime.SymbolDelimiter) {
		n++
	}
	return n
}

// MoveCaret moves within the unselected input.
func (e *TableEngine) MoveCaret(offset int) bool {
	next := max(e.consumed, min(e.caret+offset, len(e.raw)))
	if next == e.caret {
		return false
	}
	e.caret = next
	return true
}

// SetReverseLookup switches the code table used for candidates. Unknown
// schemas leave reverse lookup off.
func (e *TableEngine) SetReverseLookup(schema ime.SchemaID) {
	e.lexMu.RLock()
	lex := e.lex
	e.lexMu.RUnlock()

	if schema != ime.SchemaNone && (lex == nil || !lex.HasSchema(string(schema))) {
		e.log.Warn("reverse lookup unavailable", "schema", string(schema), "error", ErrUnknownSchema)
		schema = ime.SchemaNone
	}
	e.reverse = schema
	e.refresh()
}

func (e *TableEngine) RefreshCharForm(form config.CharForm) {
	e.charForm = form
	e.refresh()
}

func (e *TableEngine) refresh() {
	e.all = e.computeCandidates()
	e.loaded = min(e.pageSize(), len(e.all))
}

func (e *TableEngine) learn(word string) {
	e.lexMu.RLock()
	enabled := e.cfg.EnableLearning
	e.lexMu.RUnlock()
	if enabled {
		e.learned[word]++
	}
}

// letters returns the lowercase letters of raw input without delimiters.
func letters(raw []rune) string {
	var b strings.Builder
	for _, r := range raw {
		if r != rune(ime.SymbolDelimiter) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func (e *TableEngine) isEnglishWord(input string) bool {
	e.lexMu.RLock()
	lex := e.lex
	e.lexMu.RUnlock()
	if lex == nil {
		return false
	}
	return slices.Contains(lex.English, input)
}

func (e *TableEngine) computeCandidates() []candidate {
	if !e.IsComposing() {
		return nil
	}
	e.lexMu.RLock()
	lex, cfg, mixed := e.lex, e.cfg, e.mixed
	e.lexMu.RUnlock()
	if lex == nil {
		return nil
	}

	var out []candidate
	seen := map[string]bool{}
	add := func(text string, consumed int) {
		if e.charForm == config.CharFormSimplified {
			text = lex.Simplify(text)
		}
		if text == "" || seen[text] {
			return
		}
		seen[text] = true
		out = append(out, candidate{text: text, consumed: consumed})
	}

	if e.symMode() {
		code := letters(e.raw[1:])
		for _, key := range sortedKeys(lex.Symbols, code) {
			for _, s := range lex.Symbols[key] {
				add(s, 0)
			}
		}
		return out
	}

	rest := e.raw[e.consumed:]
	input := letters(rest)
	if input == "" {
		return nil
	}
	schema := PrimarySchema
	if e.reverse != ime.SchemaNone {
		schema = string(e.reverse)
	}
	table := lex.Schemas[schema]
	n := len(input)

	var english []string
	if mixed && e.reverse == ime.SchemaNone {
		english = e.englishCandidates(lex, input, typedCase(rest))
	}
	if len(english) > 0 && strings.EqualFold(english[0], input) {
		add(english[0], n)
	}

	for _, w := range e.ranked(table[input]) {
		add(w, n)
	}
	if cfg.EnableCompletion {
		for _, code := range sortedKeys(table, input) {
			if code == input {
				continue
			}
			for _, w := range table[code] {
				add(w, n)
			}
		}
	}
	for k := n - 1; k > 0; k-- {
		for _, w := range e.ranked(table[input[:k]]) {
			add(w, k)
		}
	}

	for _, w := range english {
		add(w, n)
	}
	if mixed && e.reverse == ime.SchemaNone {
		add(typedCase(rest)(input), n)
	}
	return out
}

// ranked orders words by how often the user picked them, stable otherwise.
func (e *TableEngine) ranked(words []string) []string {
	if len(words) < 2 || len(e.learned) == 0 {
		return words
	}
	out := slices.Clone(words)
	sort.SliceStable(out, func(i, j int) bool {
		return e.learned[out[i]] > e.learned[out[j]]
	})
	return out
}

func (e *TableEngine) englishCandidates(lex *Lexicon, input string, caseFn func(string) string) []string {
	var words []string
	if e.words != nil {
		learned, err := e.words.WordsWithPrefix(input, englishWordLimit)
		if err != nil {
			e.log.Warn("user words unavailable", "error", err)
		}
		words = append(words, learned...)
	}
	for _, w := range lex.English {
		if strings.HasPrefix(w, input) {
			words = append(words, w)
		}
	}

	var out []string
	seen := map[string]bool{}
	for _, w := range words {
		lw := strings.ToLower(w)
		if seen[lw] {
			continue
		}
		seen[lw] = true
		out = append(out, caseFn(w))
	}
	// Exact match first, then shorter completions.
	sort.SliceStable(out, func(i, j int) bool {
		ei, ej := strings.EqualFold(out[i], input), strings.EqualFold(out[j], input)
		if ei != ej {
			return ei
		}
		return len(out[i]) < len(out[j])
	})
	if len(out) > englishWordLimit {
		out = out[:englishWordLimit]
	}
	return out
}

// typedCase returns a function that applies the capitalization the user
// typed: all caps, a leading capital, or as listed.
func typedCase(raw []rune) func(string) string {
	var upper, total int
	first := true
	leading := false
	for _, r := range raw {
		if r == rune(ime.SymbolDelimiter) {
			continue
		}
		if first {
			leading = unicode.IsUpper(r)
			first = false
		}
		total++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	switch {
	case total > 1 && upper == total:
		return strings.ToUpper
	case leading:
		return func(s string) string {
			r, size := utf8.DecodeRuneInString(s)
			return string(unicode.ToUpper(r)) + s[size:]
		}
	default:
		return func(s string) string { return s }
	}
}

// sortedKeys returns the keys of m starting with prefix, shortest first.
func sortedKeys(m map[string][]string, prefix string) []string {
	var keys []string
	for k := range m {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) < len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}
