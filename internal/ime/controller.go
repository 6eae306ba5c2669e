package ime

import (
	"log/slog"
	"unicode/utf8"

	"cantokey/internal/config"
)

// Settings is the keyboard configuration port. config.Loader satisfies it.
type Settings interface {
	Keyboard() config.Keyboard
	UpdateKeyboard(fn func(*config.Keyboard)) error
}

// Lexicon remembers English words the user commits.
type Lexicon interface {
	LearnWord(word string) error
}

// SessionStore persists the display mode across launches.
type SessionStore interface {
	SaveInputMode(mode string) error
}

// Options configures a Controller. Engine and Settings are required.
type Options struct {
	Engine    CompositionEngine
	Surface   TextSurface
	Settings  Settings
	Lexicon   Lexicon
	Session   SessionStore
	Logger    *slog.Logger
	InputMode InputMode

	// OnUpdate is called with a fresh View after every key and host
	// notification.
	OnUpdate func(View)
}

// View is a snapshot of the state the keyboard UI renders.
type View struct {
	Enabled        bool
	KeyboardType   KeyboardType
	ContextualType ContextualType
	InputMode      InputMode
	ReverseLookup  SchemaID
	Source         SourceKind
	Candidates     []string
	HasMarkedText  bool
	AutoSpace      bool
}

// Controller turns key actions into document edits, engine calls and
// keyboard state. It is not safe for concurrent use; front-ends serialize
// calls onto one goroutine or lock around it.
type Controller struct {
	engine   CompositionEngine
	surface  TextSurface
	settings Settings
	lexicon  Lexicon
	session  SessionStore
	log      *slog.Logger
	onUpdate func(View)

	organizer CandidateOrganizer

	enabled              bool
	lastKey              KeyAction
	isHoldingShift       bool
	hasInsertedAutoSpace bool
	hasMarkedText        bool
	keyboardType         KeyboardType
	reverseLookup        SchemaID
	contextual           ContextualType
	needClearInput       bool

	// skipNextTextDidChange marks the next host notification as caused
	// by the controller itself.
	skipNextTextDidChange bool
	applyWebSearchHack    bool

	prevTextBefore string
	hasPrevText    bool

	// depth counts nested entry points so OnUpdate fires once per event.
	depth int
}

// NewController creates a controller and computes its initial state.
func NewController(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mode := opts.InputMode
	if mode == "" {
		mode = InputModeMixed
	}

	c := &Controller{
		engine:       opts.Engine,
		settings:     opts.Settings,
		lexicon:      opts.Lexicon,
		session:      opts.Session,
		log:          logger,
		onUpdate:     opts.OnUpdate,
		enabled:      true,
		keyboardType: KeyboardLettersLower,
	}
	c.organizer.SetMode(mode)
	c.SetSurface(opts.Surface)
	return c
}

// SetSurface attaches a new host document, or detaches with nil.
func (c *Controller) SetSurface(s TextSurface) {
	c.surface = s
	c.prevTextBefore, c.hasPrevText = "", false
	c.hasMarkedText = false
	c.hasInsertedAutoSpace = false
	c.lastKey = KeyAction{}
	if s == nil {
		c.organizer.SetSource(NoSource())
		return
	}
	c.prevTextBefore, c.hasPrevText = s.TextBeforeCaret(), true
	c.applyWebSearchHack = s.Kind() == SurfaceWebSearch
	c.enter()
	defer c.leave()
	c.updateInputState()
}

// HandleKey performs one user action.
func (c *Controller) HandleKey(a KeyAction) {
	if c.surface == nil {
		return
	}
	c.enter()
	defer c.leave()

	if !c.engine.Ready() {
		if c.enabled {
			c.log.Warn("engine not ready, disabling input", "action", a.Kind.String())
		}
		c.enabled = false
		return
	}
	c.enabled = true
	defer func() { c.lastKey = a }()

	c.needClearInput = false
	composing := c.engine.IsComposing()

	switch a.Kind {
	case ActionCharacter:
		c.handleCharacter(a.Text, composing)
	case ActionEngineSymbol:
		if !composing && a.Symbol != SymbolSym {
			return
		}
		c.engine.ProcessSymbol(a.Symbol)
	case ActionSpace:
		c.handleSpace()
	case ActionNewLine:
		if !c.commitComposing("", true) {
			c.commit("\n", false, true)
		}
	case ActionBackspace, ActionDeleteWord, ActionDeleteWordSwipe:
		c.handleBackspace(a.Kind, composing)
	case ActionEmoji:
		if !c.commitComposing(a.Text, true) {
			c.insertRaw(a.Text)
		}
	case ActionShiftDown:
		c.isHoldingShift = true
		c.keyboardType = KeyboardLettersUpper
		return
	case ActionShiftUp:
		c.isHoldingShift = false
		c.keyboardType = KeyboardLettersLower
		return
	case ActionShiftRelax:
		c.isHoldingShift = false
		return
	case ActionKeyboardType:
		c.keyboardType = a.Keyboard
		c.checkAutoCap()
		return
	case ActionSetCharForm:
		c.setCharForm(a.CharForm)
		return
	case ActionReverseLookup:
		c.setReverseLookup(a.Schema)
		c.clearInput(false)
		return
	case ActionRefreshMarkedText:
	case ActionSelectCandidate:
		c.selectCandidate(a.Index, true)
	case ActionMoveCursor:
		c.moveCursor(a.Offset, composing)
	case ActionSetInputMode:
		c.setInputMode(a.Mode)
	case ActionNone:
		return
	}

	if c.needClearInput {
		c.clearInput(true)
	} else {
		c.updateInputState()
	}
}

func (c *Controller) handleCharacter(text string, composing bool) {
	if text == "" {
		return
	}
	if !composing && c.applyWebSearchHack {
		// Some search fields drop the first character unless the
		// document is touched before it.
		c.mutate(func(s TextSurface) { s.Insert("") })
	}

	r, size := utf8.DecodeRuneInString(text)
	fed := size == len(text) && isASCIILetter(r) && c.engine.ProcessChar(r)
	if !fed && !c.commitComposing(text, false) {
		c.commit(text, false, false)
	}

	if !c.isHoldingShift && c.keyboardType == KeyboardLettersUpper {
		c.keyboardType = KeyboardLettersLower
	}
}

func (c *Controller) handleSpace() {
	if c.settings.Keyboard().SpaceOutputMode == config.SpaceBestCandidate &&
		c.organizer.Source().Kind() == SourceEngine {
		if i, ok := c.organizer.IndexAt(0, 0); ok {
			c.selectCandidate(i, false)
			return
		}
	}
	if c.commitComposing("", false) || c.handleAutoSpace() {
		return
	}
	c.insertRaw(" ")
}

func (c *Controller) handleBackspace(kind ActionKind, composing bool) {
	switch {
	case c.reverseLookup != SchemaNone && !composing:
		c.setReverseLookup(SchemaNone)
	case composing && kind == ActionDeleteWordSwipe:
		c.needClearInput = true
	case composing:
		c.engine.ProcessBackspace()
	default:
		wordBefore := isLatinLetter(lastGrapheme(c.surface.TextBeforeCaret()))
		c.mutate(func(s TextSurface) {
			switch {
			case kind == ActionDeleteWord, kind == ActionDeleteWordSwipe && wordBefore:
				s.DeleteBackwardWord()
			default:
				s.DeleteBackward()
			}
		})
		c.hasInsertedAutoSpace = false
	}
}

// insertRaw writes text verbatim, bypassing smart-space rules.
func (c *Controller) insertRaw(text string) {
	c.mutate(func(s TextSurface) { s.Insert(text) })
	c.hasInsertedAutoSpace = false
}

func (c *Controller) moveCursor(offset int, composing bool) {
	if composing {
		c.engine.MoveCaret(offset)
		return
	}
	c.mutate(func(s TextSurface) { s.MoveCaret(offset) })
	c.hasInsertedAutoSpace = false
}

func (c *Controller) selectCandidate(i int, fromBar bool) {
	src := c.organizer.Source()
	switch src.Kind() {
	case SourceStatic:
		if text, ok := src.At(i); ok {
			c.commit(text, fromBar, false)
		}
	case SourceEngine, SourceNone:
		if text, ok := c.engine.SelectCandidate(i); ok {
			c.commit(text, fromBar, false)
		}
	}
}

func (c *Controller) setCharForm(form config.CharForm) {
	err := c.settings.UpdateKeyboard(func(k *config.Keyboard) { k.CharForm = form })
	if err != nil {
		c.log.Error("save char form failed", "error", err)
	}
	c.engine.RefreshCharForm(form)
}

func (c *Controller) setInputMode(mode InputMode) {
	if _, err := ParseInputMode(string(mode)); err != nil {
		c.log.Warn("ignoring input mode", "error", err)
		return
	}
	c.organizer.SetMode(mode)
	if c.session == nil {
		return
	}
	if err := c.session.SaveInputMode(string(mode)); err != nil {
		c.log.Error("save input mode failed", "error", err)
	}
}

func (c *Controller) setReverseLookup(schema SchemaID) {
	c.reverseLookup = schema
	c.engine.SetReverseLookup(schema)
}

// clearInput drops the composition and refreshes. resetSchema also leaves
// reverse lookup.
func (c *Controller) clearInput(resetSchema bool) {
	c.engine.Clear()
	if resetSchema && c.reverseLookup != SchemaNone {
		c.setReverseLookup(SchemaNone)
	}
	c.updateInputState()
}

// updateInputState refreshes everything derived from the engine and the
// document. Running it twice in a row changes nothing.
func (c *Controller) updateInputState() {
	c.updateMarkedText()
	if c.engine.IsComposing() || c.reverseLookup != SchemaNone {
		c.organizer.SetSource(EngineSource(c.engine))
	} else {
		c.organizer.SetSource(NoSource())
	}
	c.updateContextualSuggestion()
}

func (c *Controller) updateContextualSuggestion() {
	c.checkAutoCap()
	c.refreshContextualType()
	c.showAutoSuggest()
}

func (c *Controller) compositionText() string {
	comp, ok := c.engine.Composition(InputModeMixed)
	if !ok {
		return ""
	}
	return comp.Text
}

// mutate runs one self-initiated surface edit, marking the resulting host
// notification as expected. Each surface call needs its own mutate since
// hosts notify once per call.
func (c *Controller) mutate(fn func(TextSurface)) {
	c.skipNextTextDidChange = true
	fn(c.surface)
	c.skipNextTextDidChange = false
}

// TextWillChange records the document before a host change.
func (c *Controller) TextWillChange() {
	if c.surface == nil {
		return
	}
	c.prevTextBefore, c.hasPrevText = c.surface.TextBeforeCaret(), true
}

// TextDidChange reconciles state after a host change. An unexpected edit
// that altered the text before the caret resets the composition.
func (c *Controller) TextDidChange() {
	if c.surface == nil {
		return
	}
	c.enter()
	defer c.leave()

	c.applyWebSearchHack = c.surface.Kind() == SurfaceWebSearch
	suppressed := c.skipNextTextDidChange
	c.skipNextTextDidChange = false
	current := c.surface.TextBeforeCaret()

	switch {
	case suppressed:
	case !c.hasPrevText || c.prevTextBefore != current:
		c.log.Debug("document changed externally, resetting")
		c.ResetState()
		c.prevTextBefore, c.hasPrevText = current, true
		return
	case c.engine.IsComposing() && !c.applyWebSearchHack:
		c.updateMarkedText()
	}
	c.updateContextualSuggestion()
}

// ResetState drops the composition and the controller's edit history.
func (c *Controller) ResetState() {
	c.enter()
	defer c.leave()

	c.engine.Clear()
	c.hasInsertedAutoSpace = false
	c.lastKey = KeyAction{}
	c.prevTextBefore, c.hasPrevText = "", false
	if c.surface != nil {
		c.updateInputState()
	}
}

// SetEnabled is called when engine readiness changes.
func (c *Controller) SetEnabled(enabled bool) {
	c.enter()
	defer c.leave()
	c.enabled = enabled
}

func (c *Controller) enter() { c.depth++ }

func (c *Controller) leave() {
	c.depth--
	if c.depth == 0 && c.onUpdate != nil {
		c.onUpdate(c.View())
	}
}

// View returns a snapshot for rendering.
func (c *Controller) View() View {
	src := c.organizer.Source()
	return View{
		Enabled:        c.enabled,
		KeyboardType:   c.keyboardType,
		ContextualType: c.contextual,
		InputMode:      c.organizer.Mode(),
		ReverseLookup:  c.reverseLookup,
		Source:         src.Kind(),
		Candidates:     src.Candidates(),
		HasMarkedText:  c.hasMarkedText,
		AutoSpace:      c.hasInsertedAutoSpace,
	}
}

// Enabled reports whether keys reach the engine.
func (c *Controller) Enabled() bool { return c.enabled }

// KeyboardType returns the current layout.
func (c *Controller) KeyboardType() KeyboardType { return c.keyboardType }

// ContextualType returns the layout hint derived from the text before the caret.
func (c *Controller) ContextualType() ContextualType { return c.contextual }

// CandidateSource returns what the candidate bar currently shows.
func (c *Controller) CandidateSource() CandidateSource { return c.organizer.Source() }

// InputMode returns the active input mode.
func (c *Controller) InputMode() InputMode { return c.organizer.Mode() }

// ReverseLookup returns the schema used for reverse lookup, or SchemaNone.
func (c *Controller) ReverseLookup() SchemaID { return c.reverseLookup }

// HasInsertedAutoSpace reports whether the last commit appended a smart space.
func (c *Controller) HasInsertedAutoSpace() bool { return c.hasInsertedAutoSpace }

// HasMarkedText reports whether the surface shows a composition.
func (c *Controller) HasMarkedText() bool { return c.hasMarkedText }
