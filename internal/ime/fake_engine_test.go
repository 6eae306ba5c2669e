package ime

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"cantokey/internal/config"
)

// fakeEngine is a scripted CompositionEngine.
type fakeEngine struct {
	ready     bool
	input     string
	confirmed string
	caret     int

	words   map[string][]string // input -> candidates; default is the input itself
	partial map[string]string   // candidate -> input left after selecting it
	display map[string]string   // input -> Chinese-only display text

	reverse   SchemaID
	charForm  config.CharForm
	symbols   []EngineSymbol
	clears    int
	loadMores int
	rejectAll bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		ready:   true,
		words:   map[string][]string{},
		partial: map[string]string{},
		display: map[string]string{},
	}
}

func (e *fakeEngine) Ready() bool { return e.ready }
func (e *fakeEngine) IsComposing() bool { return e.input != "" || e.confirmed != "" }

func (e *fakeEngine) ProcessChar(r rune) bool {
	if e.rejectAll {
		return false
	}
	e.input += string(r)
	e.caret = len([]rune(e.input))
	return true
}

func (e *fakeEngine) ProcessSymbol(s EngineSymbol) bool {
	e.symbols = append(e.symbols, s)
	return true
}

func (e *fakeEngine) ProcessBackspace() bool {
	if e.input == "" {
		return false
	}
	r := []rune(e.input)
	e.input = string(r[:len(r)-1])
	e.caret = len(r) - 1
	return true
}

func (e *fakeEngine) reset() {
	e.input, e.confirmed, e.caret = "", "", 0
}

func (e *fakeEngine) Clear() {
	e.clears++
	e.reset()
}

func (e *fakeEngine) Composition(mode InputMode) (Composition, bool) {
	if !e.IsComposing() {
		return Composition{}, false
	}
	text := e.input
	if d, ok := e.display[e.input]; ok && mode == InputModeChinese {
		text = d
	}
	text = e.confirmed + text
	return Composition{Text: text, Caret: len([]rune(text))}, true
}

func (e *fakeEngine) Candidates() []string {
	if e.input == "" {
		return nil
	}
	if c, ok := e.words[e.input]; ok {
		return c
	}
	return []string{e.input}
}

func (e *fakeEngine) SelectCandidate(i int) (string, bool) {
	c := e.Candidates()
	if i < 0 || i >= len(c) {
		return "", false
	}
	cand := c[i]
	if rest, ok := e.partial[cand]; ok && rest != "" {
		e.confirmed += cand
		e.input = rest
		return "", false
	}
	out := e.confirmed + cand
	e.reset()
	return out, true
}

func (e *fakeEngine) LoadMore() bool {
	e.loadMores++
	return false
}

func (e *fakeEngine) MoveCaret(offset int) bool {
	e.caret += offset
	if e.caret < 0 {
		e.caret = 0
	}
	return true
}

func (e *fakeEngine) SetReverseLookup(s SchemaID) { e.reverse = s }
func (e *fakeEngine) RefreshCharForm(form config.CharForm) { e.charForm = form }

type fakeSettings struct {
	kb      config.Keyboard
	updates int
	err     error
}

func (s *fakeSettings) Keyboard() config.Keyboard { return s.kb }

func (s *fakeSettings) UpdateKeyboard(fn func(*config.Keyboard)) error {
	if s.err != nil {
		return s.err
	}
	fn(&s.kb)
	s.updates++
	return nil
}

type recordingLexicon struct{ words []string }

func (l *recordingLexicon) LearnWord(w string) error {
	l.words = append(l.words, w)
	return nil
}

type recordingSession struct{ modes []string }

func (s *recordingSession) SaveInputMode(m string) error {
	s.modes = append(s.modes, m)
	return nil
}

type harness struct {
	c        *Controller
	surface  *MemorySurface
	engine   *fakeEngine
	settings *fakeSettings
	lexicon  *recordingLexicon
	session  *recordingSession
	updates  int
}

func newHarness(t *testing.T, kind SurfaceKind, mutate func(*config.Keyboard)) *harness {
	t.Helper()
	kb := config.DefaultKeyboard()
	if mutate != nil {
		mutate(&kb)
	}
	h := &harness{
		surface:  NewMemorySurface(kind),
		engine:   newFakeEngine(),
		settings: &fakeSettings{kb: kb},
		lexicon:  &recordingLexicon{},
		session:  &recordingSession{},
	}
	h.c = NewController(Options{
		Engine:   h.engine,
		Surface:  h.surface,
		Settings: h.settings,
		Lexicon:  h.lexicon,
		Session:  h.session,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		OnUpdate: func(View) { h.updates++ },
	})
	h.surface.SetObserver(h.c)
	require.NotNil(t, h.c)
	return h
}

func (h *harness) typeString(s string) {
	for _, r := range s {
		h.c.HandleKey(Char(string(r)))
	}
}

func (h *harness) marked() string {
	text, _ := h.surface.MarkedText()
	return text
}
