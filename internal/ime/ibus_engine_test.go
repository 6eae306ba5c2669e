//go:build linux

package ime

import (
	"io"
	"log/slog"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cantokey/internal/config"
)

// TestKeyvalToRune tests the X11 keysym to rune conversion.
func TestKeyvalToRune(t *testing.T) {
	tests := []struct {
		name   string
		keyval uint32
		want   rune
	}{
		// ASCII printable characters
		{"space", 0x20, ' '},
		{"letter A", 0x41, 'A'},
		{"letter a", 0x61, 'a'},
		{"digit 9", 0x39, '9'},
		{"apostrophe", 0x27, '\''},
		{"tilde", 0x7e, '~'},

		// Extended Latin
		{"nbsp", 0xa0, '\u00a0'},
		{"pound", 0xa3, '£'},

		// Unicode keysyms
		{"unicode euro", 0x010020ac, '€'},
		{"unicode ideographic comma", 0x01003001, '、'},

		// Non-character keys
		{"backspace", GDKBackSpace, 0},
		{"return", GDKReturn, 0},
		{"escape", GDKEscape, 0},
		{"function key", 0xffbe, 0}, // F1
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := keyvalToRune(tt.keyval); got != tt.want {
				t.Errorf("keyvalToRune(0x%x) = %q, want %q", tt.keyval, got, tt.want)
			}
		})
	}
}

func TestTranslateKey(t *testing.T) {
	idle := keyContext{}
	composing := keyContext{composing: true, onPage: 3}
	secondPage := keyContext{composing: true, pageStart: 9, onPage: 2}

	tests := []struct {
		name     string
		keyval   uint32
		state    uint32
		ctx      keyContext
		want     []KeyAction
		consumed bool
	}{
		{"letter", 'n', 0, idle, []KeyAction{Char("n")}, true},
		{"shifted letter", 'N', IBusShiftMask, idle, []KeyAction{Char("N")}, true},
		{"punctuation", ',', 0, idle, []KeyAction{Char(",")}, true},
		{"digit idle", '1', 0, idle, []KeyAction{Char("1")}, true},
		{"digit selects", '2', 0, composing, []KeyAction{SelectCandidate(1)}, true},
		{"digit past page", '5', 0, composing, []KeyAction{Char("5")}, true},
		{"digit second page", '2', 0, secondPage, []KeyAction{SelectCandidate(10)}, true},
		{"delimiter composing", '\'', 0, composing, []KeyAction{Symbol(SymbolDelimiter)}, true},
		{"apostrophe idle", '\'', 0, idle, []KeyAction{Char("'")}, true},
		{"space", GDKSpace, 0, idle, []KeyAction{Space()}, true},
		{"return composing", GDKReturn, 0, composing, []KeyAction{NewLine()}, true},
		{"return idle", GDKReturn, 0, idle, nil, false},
		{"keypad enter composing", GDKKPEnter, 0, composing, []KeyAction{NewLine()}, true},
		{"backspace composing", GDKBackSpace, 0, composing, []KeyAction{Backspace()}, true},
		{"backspace idle", GDKBackSpace, 0, idle, nil, false},
		{"ctrl backspace composing", GDKBackSpace, IBusControlMask, composing, []KeyAction{DeleteWordSwipe()}, true},
		{"ctrl backspace idle", GDKBackSpace, IBusControlMask, idle, nil, false},
		{"escape composing", GDKEscape, 0, composing, []KeyAction{DeleteWordSwipe()}, true},
		{"escape idle", GDKEscape, 0, idle, nil, false},
		{"left composing", GDKLeft, 0, composing, []KeyAction{MoveCursor(-1)}, true},
		{"right composing", GDKRight, 0, composing, []KeyAction{MoveCursor(1)}, true},
		{"left idle", GDKLeft, 0, idle, nil, false},
		{"ctrl c", 'c', IBusControlMask, idle, nil, false},
		{"alt letter", 'f', IBusMod1Mask, composing, nil, false},
		{"release", 'a', IBusReleaseMask, idle, nil, false},
		{"shift press", GDKShiftL, 0, idle, []KeyAction{ShiftDown()}, false},
		{"shift release", GDKShiftR, IBusReleaseMask | IBusShiftMask, idle, []KeyAction{ShiftRelax(), ShiftUp()}, false},
		{"tab", GDKTab, 0, composing, nil, false},
		{"function key", 0xffbe, 0, idle, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, consumed := translateKey(tt.keyval, tt.state, tt.ctx)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.consumed, consumed)
		})
	}
}

func TestSurfaceKindForPurpose(t *testing.T) {
	tests := []struct {
		purpose uint32
		want    SurfaceKind
	}{
		{IBusPurposeFreeForm, SurfaceDefault},
		{IBusPurposeAlpha, SurfaceDefault},
		{IBusPurposeDigits, SurfaceASCIINumeric},
		{IBusPurposeNumber, SurfaceDecimal},
		{IBusPurposePhone, SurfacePhonePad},
		{IBusPurposeURL, SurfaceURL},
		{IBusPurposeEmail, SurfaceEmail},
		{IBusPurposeName, SurfaceNamePhone},
		{IBusPurposePassword, SurfaceDefault},
		{IBusPurposePIN, SurfaceNumeric},
		{IBusPurposeTerminal, SurfacePlain},
		{99, SurfaceDefault},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, surfaceKindForPurpose(tt.purpose), "purpose %d", tt.purpose)
	}
}

func TestTextFromVariant(t *testing.T) {
	assert.Equal(t, "你好", textFromVariant(newIBusText("你好")))
	assert.Equal(t, "plain", textFromVariant(dbus.MakeVariant("plain")))

	wire := dbus.MakeVariant([]interface{}{"IBusText", map[string]dbus.Variant{}, "from bus", dbus.MakeVariant(0)})
	assert.Equal(t, "from bus", textFromVariant(wire))
	assert.Equal(t, "", textFromVariant(dbus.MakeVariant(42)))
}

type emitted struct {
	name string
	args []any
}

type signalRecorder struct {
	signals []emitted
}

func (r *signalRecorder) emit(name string, args ...any) {
	r.signals = append(r.signals, emitted{name: name, args: args})
}

func (r *signalRecorder) names() []string {
	var out []string
	for _, s := range r.signals {
		out = append(out, s.name)
	}
	return out
}

// commits returns the text of every CommitText signal.
func (r *signalRecorder) commits() []string {
	var out []string
	for _, s := range r.signals {
		if s.name == "CommitText" {
			out = append(out, textFromVariant(s.args[0].(dbus.Variant)))
		}
	}
	return out
}

func (r *signalRecorder) last(name string) (emitted, bool) {
	for i := len(r.signals) - 1; i >= 0; i-- {
		if r.signals[i].name == name {
			return r.signals[i], true
		}
	}
	return emitted{}, false
}

func (r *signalRecorder) reset() { r.signals = nil }

func TestIBusSurfaceSignals(t *testing.T) {
	rec := &signalRecorder{}
	s := &ibusSurface{emit: rec.emit}

	s.Insert("hi")
	assert.Equal(t, []string{"hi"}, rec.commits())
	assert.Equal(t, "hi", s.TextBeforeCaret())

	rec.reset()
	s.SetMarkedText("nei", 2)
	sig, ok := rec.last("UpdatePreeditText")
	require.True(t, ok)
	assert.Equal(t, "nei", textFromVariant(sig.args[0].(dbus.Variant)))
	assert.Equal(t, uint32(2), sig.args[1])
	assert.Equal(t, true, sig.args[2])

	rec.reset()
	s.Insert("你")
	assert.Equal(t, []string{"CommitText", "HidePreeditText"}, rec.names())
	assert.Equal(t, "hi你", s.TextBeforeCaret())

	rec.reset()
	s.DeleteBackward()
	sig, ok = rec.last("DeleteSurroundingText")
	require.True(t, ok)
	assert.Equal(t, []any{int32(-1), uint32(1)}, sig.args)
	assert.Equal(t, "hi", s.TextBeforeCaret())

	rec.reset()
	s.SetMarkedText("x", 1)
	s.DeleteBackward()
	assert.Equal(t, []string{"UpdatePreeditText", "HidePreeditText"}, rec.names(), "delete hides the preedit first")
	assert.Equal(t, "hi", s.TextBeforeCaret())

	rec.reset()
	s.ClearMarkedText()
	assert.Empty(t, rec.signals)
}

func TestIBusSurfaceDeleteWordAndCaret(t *testing.T) {
	rec := &signalRecorder{}
	s := &ibusSurface{emit: rec.emit, before: "hello world  "}

	s.DeleteBackwardWord()
	sig, ok := rec.last("DeleteSurroundingText")
	require.True(t, ok)
	assert.Equal(t, []any{int32(-7), uint32(7)}, sig.args)
	assert.Equal(t, "hello ", s.TextBeforeCaret())

	rec.reset()
	s.MoveCaret(-2)
	assert.Equal(t, []string{"ForwardKeyEvent", "ForwardKeyEvent"}, rec.names())
	assert.Equal(t, "hell", s.TextBeforeCaret())
	assert.Equal(t, "o ", s.TextAfterCaret())
}

func TestIBusSurfaceSync(t *testing.T) {
	s := &ibusSurface{emit: func(string, ...any) {}}
	o := &didCounter{}
	s.observer = o

	s.sync("你好 world", 3)
	assert.Equal(t, "你好 ", s.TextBeforeCaret())
	assert.Equal(t, "world", s.TextAfterCaret())
	assert.Equal(t, 1, o.did)

	s.sync("你好 world", 3)
	assert.Equal(t, 1, o.did, "unchanged text does not notify")

	s.sync("abc", 10)
	assert.Equal(t, "abc", s.TextBeforeCaret(), "cursor is clamped")
	assert.Equal(t, 2, o.did)
}

type didCounter struct{ did int }

func (o *didCounter) TextWillChange() {}
func (o *didCounter) TextDidChange() { o.did++ }

func newTestIBusEngine(t *testing.T) (*IBusEngine, *fakeEngine, *signalRecorder) {
	t.Helper()
	fe := newFakeEngine()
	e, err := NewIBusEngine(IBusOptions{
		Engine:   fe,
		Settings: &fakeSettings{kb: config.DefaultKeyboard()},
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		PageSize: 2,
	})
	require.NoError(t, err)
	rec := &signalRecorder{}
	e.sink = rec.emit
	return e, fe, rec
}

func pressKeys(t *testing.T, e *IBusEngine, keys string) {
	t.Helper()
	for _, r := range keys {
		consumed, dbusErr := e.ProcessKeyEvent(uint32(r), 0, 0)
		require.Nil(t, dbusErr)
		require.True(t, consumed, "key %q", r)
	}
}

func TestNewIBusEngineRequiresEngine(t *testing.T) {
	_, err := NewIBusEngine(IBusOptions{Settings: &fakeSettings{}})
	assert.Error(t, err)
}

func TestIBusEngineComposeAndCommit(t *testing.T) {
	e, fe, rec := newTestIBusEngine(t)
	require.Nil(t, e.FocusIn())

	pressKeys(t, e, "nei")
	assert.Equal(t, "nei", fe.input)
	sig, ok := rec.last("UpdatePreeditText")
	require.True(t, ok)
	assert.Equal(t, "nei", textFromVariant(sig.args[0].(dbus.Variant)))
	_, ok = rec.last("UpdateLookupTable")
	assert.True(t, ok)

	rec.reset()
	consumed, _ := e.ProcessKeyEvent(GDKSpace, 0, 0)
	assert.True(t, consumed)
	assert.Equal(t, []string{"nei "}, rec.commits())
	assert.Contains(t, rec.names(), "HideLookupTable")
	assert.True(t, e.ctrl.HasInsertedAutoSpace())

	// The client echoes the committed text back.
	clears := fe.clears
	require.Nil(t, e.SetSurroundingText(newIBusText("nei "), 4, 4))
	assert.Equal(t, clears, fe.clears)
	assert.True(t, e.ctrl.HasInsertedAutoSpace())

	// An edit made by the user in the client resets.
	require.Nil(t, e.SetSurroundingText(newIBusText("other"), 5, 5))
	assert.False(t, e.ctrl.HasInsertedAutoSpace())
	assert.Greater(t, fe.clears, clears)
}

func TestIBusEngineCandidatePaging(t *testing.T) {
	e, fe, rec := newTestIBusEngine(t)
	fe.words["ngo"] = []string{"我", "俄", "餓"}
	require.Nil(t, e.FocusIn())
	pressKeys(t, e, "ngo")

	require.Nil(t, e.PageDown())
	assert.Equal(t, 1, e.page)
	assert.Equal(t, 0, fe.loadMores, "enough candidates are already loaded")

	require.Nil(t, e.PageDown())
	assert.Equal(t, 1, e.page, "no page past the end")
	assert.Equal(t, 1, fe.loadMores)

	rec.reset()
	require.Nil(t, e.CandidateClicked(0, 1, 0))
	assert.Equal(t, []string{"餓"}, rec.commits())
	assert.False(t, fe.IsComposing())
	assert.Equal(t, 0, e.page)
}

func TestIBusEngineDigitSelectsOnPage(t *testing.T) {
	e, fe, rec := newTestIBusEngine(t)
	fe.words["ngo"] = []string{"我", "俄", "餓"}
	require.Nil(t, e.FocusIn())
	pressKeys(t, e, "ngo")

	rec.reset()
	pressKeys(t, e, "2")
	assert.Equal(t, []string{"俄"}, rec.commits())
}

func TestIBusEnginePassThrough(t *testing.T) {
	e, _, _ := newTestIBusEngine(t)
	require.Nil(t, e.FocusIn())

	consumed, _ := e.ProcessKeyEvent(GDKReturn, 0, 0)
	assert.False(t, consumed)
	consumed, _ = e.ProcessKeyEvent('c', 0, IBusControlMask)
	assert.False(t, consumed)

	require.Nil(t, e.Disable())
	consumed, _ = e.ProcessKeyEvent('a', 0, 0)
	assert.False(t, consumed, "disabled engine passes everything")

	stats := e.GetStats()
	assert.Equal(t, uint64(2), stats.KeysPassed)
	assert.Equal(t, uint64(1), stats.FocusChanges)
}

func TestIBusEngineContentType(t *testing.T) {
	e, _, _ := newTestIBusEngine(t)
	require.Nil(t, e.FocusIn())

	require.Nil(t, e.SetContentType(IBusPurposeURL, 0))
	assert.Equal(t, SurfaceURL, e.surface.Kind())
	assert.Equal(t, ContextURL, e.ctrl.ContextualType().Kind)

	require.Nil(t, e.SetContentType(IBusPurposeFreeForm, ibusHintLowercase))
	assert.True(t, e.surface.AutocapitalizationDisabled())
	assert.Equal(t, KeyboardLettersLower, e.ctrl.KeyboardType())
}

func TestIBusEngineFocusOutClears(t *testing.T) {
	e, fe, rec := newTestIBusEngine(t)
	require.Nil(t, e.FocusIn())
	pressKeys(t, e, "nei")

	rec.reset()
	require.Nil(t, e.FocusOut())
	assert.False(t, fe.IsComposing())
	assert.Contains(t, rec.names(), "HidePreeditText")
	assert.Contains(t, rec.names(), "HideLookupTable")
	assert.Empty(t, rec.commits())
}

func TestIBusEngineProperties(t *testing.T) {
	fe := newFakeEngine()
	settings := &fakeSettings{kb: config.DefaultKeyboard()}
	session := &recordingSession{}
	e, err := NewIBusEngine(IBusOptions{
		Engine:   fe,
		Settings: settings,
		Session:  session,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	require.Nil(t, e.FocusIn())

	require.Nil(t, e.PropertyActivate("mode.english", 1))
	assert.Equal(t, InputModeEnglish, e.ctrl.InputMode())
	assert.Equal(t, []string{"english"}, session.modes)

	require.Nil(t, e.PropertyActivate("charform.simplified", 1))
	assert.Equal(t, config.CharFormSimplified, settings.kb.CharForm)
	assert.Equal(t, config.CharFormSimplified, fe.charForm)

	require.Nil(t, e.PropertyActivate("mode.klingon", 1))
	require.Nil(t, e.PropertyActivate("unrelated", 1))
	assert.Equal(t, InputModeEnglish, e.ctrl.InputMode())
}

// TestIBusModifierMasks tests modifier mask constants.
func TestIBusModifierMasks(t *testing.T) {
	if IBusShiftMask != 1 {
		t.Errorf("Expected IBusShiftMask = 1, got %d", IBusShiftMask)
	}
	if IBusControlMask != 4 {
		t.Errorf("Expected IBusControlMask = 4, got %d", IBusControlMask)
	}
	if IBusMod1Mask != 8 {
		t.Errorf("Expected IBusMod1Mask (Alt) = 8, got %d", IBusMod1Mask)
	}
	if IBusReleaseMask != 1<<30 {
		t.Errorf("Expected IBusReleaseMask = 1<<30, got %d", IBusReleaseMask)
	}
}

// BenchmarkTranslateKey benchmarks key translation.
func BenchmarkTranslateKey(b *testing.B) {
	keyvals := []uint32{0x61, 0x41, 0x20, GDKBackSpace, 0x010020ac}
	ctx := keyContext{composing: true, onPage: 9}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, kv := range keyvals {
			translateKey(kv, 0, ctx)
		}
	}
}
