//go:build linux

package ime

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/godbus/dbus/v5"
	"github.com/rivo/uniseg"

	"cantokey/internal/config"
)

// IBus D-Bus constants
const (
	IBusFactoryPath       = "/org/freedesktop/IBus/Factory"
	IBusFactoryInterface  = "org.freedesktop.IBus.Factory"
	IBusEngineInterface   = "org.freedesktop.IBus.Engine"
	IBusEnginePath        = "/org/freedesktop/IBus/Engine/cantokey"
	CantokeyBusName       = "org.freedesktop.IBus.Cantokey"
	CantokeyEngineName    = "cantokey"
	CantokeyEngineVersion = "1.0.0"
)

// IBus key event state masks
const (
	IBusShiftMask   uint32 = 1 << 0
	IBusLockMask    uint32 = 1 << 1
	IBusControlMask uint32 = 1 << 2
	IBusMod1Mask    uint32 = 1 << 3 // Alt
	IBusMod4Mask    uint32 = 1 << 6 // Super/Meta
	IBusReleaseMask uint32 = 1 << 30
)

// Common GDK key symbols
const (
	GDKBackSpace = 0xff08
	GDKDelete    = 0xffff
	GDKReturn    = 0xff0d
	GDKKPEnter   = 0xff8d
	GDKTab       = 0xff09
	GDKEscape    = 0xff1b
	GDKSpace     = 0x0020
	GDKLeft      = 0xff51
	GDKRight     = 0xff53
	GDKShiftL    = 0xffe1
	GDKShiftR    = 0xffe2
)

// IBusInputPurpose values sent with SetContentType.
const (
	IBusPurposeFreeForm uint32 = iota
	IBusPurposeAlpha
	IBusPurposeDigits
	IBusPurposeNumber
	IBusPurposePhone
	IBusPurposeURL
	IBusPurposeEmail
	IBusPurposeName
	IBusPurposePassword
	IBusPurposePIN
	IBusPurposeTerminal
)

const (
	ibusHintLowercase      uint32 = 1 << 3
	ibusCapSurroundingText uint32 = 1 << 5
	ibusPreeditClear       uint32 = 0
	ibusOrientationSystem  int32  = 2
)

// Wire forms of IBusText, IBusAttrList and IBusLookupTable. godbus
// encodes Go structs as D-Bus structs, field by field.
type ibusAttrList struct {
	Name        string
	Attachments map[string]dbus.Variant
	Attributes  []dbus.Variant
}

type ibusText struct {
	Name        string
	Attachments map[string]dbus.Variant
	Text        string
	AttrList    dbus.Variant
}

type ibusLookupTable struct {
	Name          string
	Attachments   map[string]dbus.Variant
	PageSize      uint32
	CursorPos     uint32
	CursorVisible bool
	Round         bool
	Orientation   int32
	Candidates    []dbus.Variant
	Labels        []dbus.Variant
}

func newIBusText(s string) dbus.Variant {
	return dbus.MakeVariant(ibusText{
		Name:        "IBusText",
		Attachments: map[string]dbus.Variant{},
		Text:        s,
		AttrList: dbus.MakeVariant(ibusAttrList{
			Name:        "IBusAttrList",
			Attachments: map[string]dbus.Variant{},
			Attributes:  []dbus.Variant{},
		}),
	})
}

// textFromVariant extracts the string of an IBusText, either built
// locally or decoded from the bus as a generic struct.
func textFromVariant(v dbus.Variant) string {
	switch val := v.Value().(type) {
	case ibusText:
		return val.Text
	case string:
		return val
	case []interface{}:
		if len(val) >= 3 {
			if s, ok := val[2].(string); ok {
				return s
			}
		}
	}
	return ""
}

func newLookupTable(candidates []string, pageSize, cursor int) dbus.Variant {
	cands := make([]dbus.Variant, len(candidates))
	for i, c := range candidates {
		cands[i] = newIBusText(c)
	}
	labels := make([]dbus.Variant, 0, pageSize)
	for i := 1; i <= pageSize && i <= 9; i++ {
		labels = append(labels, newIBusText(fmt.Sprintf("%d.", i)))
	}
	return dbus.MakeVariant(ibusLookupTable{
		Name:          "IBusLookupTable",
		Attachments:   map[string]dbus.Variant{},
		PageSize:      uint32(pageSize),
		CursorPos:     uint32(cursor),
		CursorVisible: false,
		Round:         false,
		Orientation:   ibusOrientationSystem,
		Candidates:    cands,
		Labels:        labels,
	})
}

// signalEmitter sends an org.freedesktop.IBus.Engine signal.
type signalEmitter func(name string, args ...any)

// ibusSurface is the TextSurface of the focused IBus client. Edits are
// sent as engine signals and applied to a local copy of the surrounding
// text at once, so the controller sees its own edits synchronously.
// SetSurroundingText from the client notifies the observer only when
// the client's text differs from the local copy.
type ibusSurface struct {
	emit signalEmitter

	before  string
	after   string
	preedit string

	kind      SurfaceKind
	noAutocap bool
	observer  ChangeObserver
}

func (s *ibusSurface) change(fn func()) {
	if s.observer != nil {
		s.observer.TextWillChange()
	}
	fn()
	if s.observer != nil {
		s.observer.TextDidChange()
	}
}

func (s *ibusSurface) TextBeforeCaret() string { return s.before }
func (s *ibusSurface) TextAfterCaret() string { return s.after }
func (s *ibusSurface) Kind() SurfaceKind { return s.kind }
func (s *ibusSurface) AutocapitalizationDisabled() bool { return s.noAutocap }

func (s *ibusSurface) hidePreedit() {
	if s.preedit == "" {
		return
	}
	s.preedit = ""
	s.emit("HidePreeditText")
}

func (s *ibusSurface) Insert(text string) {
	s.change(func() {
		if text != "" {
			s.emit("CommitText", newIBusText(text))
		}
		s.hidePreedit()
		s.before += text
	})
}

func (s *ibusSurface) deleteSurrounding(removed string) {
	n := utf8.RuneCountInString(removed)
	if n == 0 {
		return
	}
	s.emit("DeleteSurroundingText", int32(-n), uint32(n))
	s.before = strings.TrimSuffix(s.before, removed)
}

func (s *ibusSurface) DeleteBackward() {
	s.change(func() {
		if s.preedit != "" {
			s.hidePreedit()
			return
		}
		s.deleteSurrounding(lastGrapheme(s.before))
	})
}

func (s *ibusSurface) DeleteBackwardWord() {
	s.change(func() {
		if s.preedit != "" {
			s.hidePreedit()
			return
		}
		trimmed := strings.TrimRightFunc(s.before, unicode.IsSpace)
		i := strings.LastIndexFunc(trimmed, unicode.IsSpace)
		s.deleteSurrounding(s.before[i+1:])
	})
}

func (s *ibusSurface) SetMarkedText(text string, caret int) {
	s.change(func() {
		s.preedit = text
		s.emit("UpdatePreeditText", newIBusText(text), uint32(caret), true, ibusPreeditClear)
	})
}

func (s *ibusSurface) ClearMarkedText() {
	if s.preedit == "" {
		return
	}
	s.change(s.hidePreedit)
}

// MoveCaret forwards arrow keys to the client.
func (s *ibusSurface) MoveCaret(offset int) {
	if offset == 0 {
		return
	}
	s.change(func() {
		s.hidePreedit()
		for ; offset < 0 && s.before != ""; offset++ {
			g := lastGrapheme(s.before)
			s.before = strings.TrimSuffix(s.before, g)
			s.after = g + s.after
			s.emit("ForwardKeyEvent", uint32(GDKLeft), uint32(0), uint32(0))
		}
		for ; offset > 0 && s.after != ""; offset-- {
			g, rest, _, _ := uniseg.FirstGraphemeClusterInString(s.after, -1)
			s.before += g
			s.after = rest
			s.emit("ForwardKeyEvent", uint32(GDKRight), uint32(0), uint32(0))
		}
	})
}

// sync applies the client's surrounding text. cursor counts characters.
func (s *ibusSurface) sync(text string, cursor uint32) {
	runes := []rune(text)
	if int(cursor) > len(runes) {
		cursor = uint32(len(runes))
	}
	before, after := string(runes[:cursor]), string(runes[cursor:])
	if before == s.before && after == s.after {
		return
	}
	s.change(func() {
		s.before, s.after = before, after
	})
}

// focus forgets everything known about the previous client.
func (s *ibusSurface) focus() {
	s.before, s.after, s.preedit = "", "", ""
	s.kind, s.noAutocap = SurfaceDefault, false
}

// IBusOptions configures an IBusEngine.
type IBusOptions struct {
	Engine    CompositionEngine
	Settings  Settings
	Lexicon   Lexicon
	Session   SessionStore
	Logger    *slog.Logger
	InputMode InputMode

	// PageSize is the number of candidates per lookup table page.
	PageSize int
}

// IBusEngineStats tracks engine statistics.
type IBusEngineStats struct {
	KeysHandled     uint64
	KeysPassed      uint64
	FocusChanges    uint64
	LastKeyTime     time.Time
	LastFocusChange time.Time
}

// IBusEngine implements org.freedesktop.IBus.Engine on top of a
// Controller. D-Bus calls arrive on godbus goroutines and are serialized
// by mu.
type IBusEngine struct {
	conn *dbus.Conn
	path dbus.ObjectPath
	sink signalEmitter
	log  *slog.Logger

	mu       sync.Mutex
	engine   CompositionEngine
	ctrl     *Controller
	surface  *ibusSurface
	enabled  bool
	focused  bool
	caps     uint32
	pageSize int

	candidates []string
	page       int
	tableShown bool

	stats IBusEngineStats
}

// NewIBusEngine creates an engine. It does not touch the bus until Start.
func NewIBusEngine(opts IBusOptions) (*IBusEngine, error) {
	if opts.Engine == nil || opts.Settings == nil {
		return nil, errors.New("ibus: engine and settings are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pageSize := opts.PageSize
	if pageSize <= 0 || pageSize > 9 {
		pageSize = 9
	}

	e := &IBusEngine{
		path:     IBusEnginePath,
		log:      logger.With("component", "ibus"),
		engine:   opts.Engine,
		enabled:  true,
		pageSize: pageSize,
	}
	e.sink = e.busSignal
	e.surface = &ibusSurface{emit: e.signal}
	e.ctrl = NewController(Options{
		Engine:    opts.Engine,
		Surface:   e.surface,
		Settings:  opts.Settings,
		Lexicon:   opts.Lexicon,
		Session:   opts.Session,
		Logger:    logger,
		InputMode: opts.InputMode,
		OnUpdate:  e.render,
	})
	e.surface.observer = e.ctrl
	return e, nil
}

// Start connects to the IBus bus and exports the factory and engine.
// IBUS_ADDRESS selects the IBus daemon's private bus; otherwise the
// session bus is used.
func (e *IBusEngine) Start() error {
	var err error
	if addr := os.Getenv("IBUS_ADDRESS"); addr != "" {
		e.conn, err = dbus.Connect(addr)
	} else {
		e.conn, err = dbus.SessionBus()
	}
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}

	reply, err := e.conn.RequestName(CantokeyBusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.New("bus name already taken")
	}

	factory := &IBusFactory{engine: e}
	if err := e.conn.Export(factory, IBusFactoryPath, IBusFactoryInterface); err != nil {
		return fmt.Errorf("failed to export factory: %w", err)
	}
	if err := e.conn.Export(e, e.path, IBusEngineInterface); err != nil {
		return fmt.Errorf("failed to export engine: %w", err)
	}

	e.log.Info("ibus engine started", "name", CantokeyBusName)
	return nil
}

// Stop drops any composition and closes the bus connection.
func (e *IBusEngine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ctrl.ResetState()
	if e.conn == nil {
		return nil
	}
	return e.conn.Close()
}

func (e *IBusEngine) signal(name string, args ...any) { e.sink(name, args...) }

func (e *IBusEngine) busSignal(name string, args ...any) {
	if e.conn == nil {
		return
	}
	if err := e.conn.Emit(e.path, IBusEngineInterface+"."+name, args...); err != nil {
		e.log.Warn("emit failed", "signal", name, "error", err)
	}
}

// render shows the controller's candidates as the IBus lookup table.
func (e *IBusEngine) render(v View) {
	if v.Source == SourceNone || len(v.Candidates) == 0 {
		e.candidates, e.page = nil, 0
		if e.tableShown {
			e.tableShown = false
			e.signal("HideLookupTable")
		}
		return
	}
	e.candidates = v.Candidates
	if e.page*e.pageSize >= len(e.candidates) {
		e.page = 0
	}
	e.tableShown = true
	e.signal("UpdateLookupTable", newLookupTable(e.candidates, e.pageSize, e.page*e.pageSize), true)
}

func (e *IBusEngine) keyContext() keyContext {
	start := e.page * e.pageSize
	onPage := len(e.candidates) - start
	if onPage > e.pageSize {
		onPage = e.pageSize
	}
	if onPage < 0 {
		onPage = 0
	}
	return keyContext{
		composing: e.engine.IsComposing(),
		pageStart: start,
		onPage:    onPage,
	}
}

// ProcessKeyEvent handles key press/release events from IBus.
// Returns true if the key was consumed, false to pass through.
func (e *IBusEngine) ProcessKeyEvent(keyval, keycode, state uint32) (bool, *dbus.Error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.enabled {
		return false, nil
	}
	actions, consumed := translateKey(keyval, state, e.keyContext())
	if len(actions) == 0 {
		e.stats.KeysPassed++
		return false, nil
	}

	e.stats.KeysHandled++
	e.stats.LastKeyTime = time.Now()
	for _, a := range actions {
		if a.Kind != ActionShiftDown && a.Kind != ActionShiftUp && a.Kind != ActionShiftRelax {
			e.page = 0
		}
		e.ctrl.HandleKey(a)
	}
	return consumed, nil
}

// FocusIn is called when the engine gains input focus.
func (e *IBusEngine) FocusIn() *dbus.Error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.focused = true
	e.stats.FocusChanges++
	e.stats.LastFocusChange = time.Now()
	e.surface.focus()
	e.ctrl.SetSurface(e.surface)
	return nil
}

// FocusOut is called when the engine loses input focus.
func (e *IBusEngine) FocusOut() *dbus.Error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.focused = false
	e.ctrl.ResetState()
	return nil
}

// Enable is called when the user switches to this engine.
func (e *IBusEngine) Enable() *dbus.Error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.enabled = true
	e.log.Debug("enable")
	return nil
}

// Disable is called when the user switches away.
func (e *IBusEngine) Disable() *dbus.Error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ctrl.ResetState()
	e.enabled = false
	e.log.Debug("disable")
	return nil
}

// Reset is sent when the client discards the composition, for example
// after a mouse click.
func (e *IBusEngine) Reset() *dbus.Error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ctrl.ResetState()
	return nil
}

// SetCapabilities informs about client capabilities.
func (e *IBusEngine) SetCapabilities(caps uint32) *dbus.Error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.caps = caps
	if caps&ibusCapSurroundingText == 0 {
		e.log.Debug("client has no surrounding text; using committed text only")
	}
	return nil
}

// SetContentType maps the client's input purpose to a surface kind.
func (e *IBusEngine) SetContentType(purpose, hints uint32) *dbus.Error {
	e.mu.Lock()
	defer e.mu.Unlock()

	kind := surfaceKindForPurpose(purpose)
	noAutocap := hints&ibusHintLowercase != 0
	if kind == e.surface.kind && noAutocap == e.surface.noAutocap {
		return nil
	}
	e.surface.kind, e.surface.noAutocap = kind, noAutocap
	e.ctrl.SetSurface(e.surface)
	return nil
}

// SetCursorLocation is unused; the panel positions the lookup table.
func (e *IBusEngine) SetCursorLocation(x, y, w, h int32) *dbus.Error {
	return nil
}

// SetSurroundingText provides the text around the cursor.
func (e *IBusEngine) SetSurroundingText(text dbus.Variant, cursorPos, anchorPos uint32) *dbus.Error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.surface.sync(textFromVariant(text), cursorPos)
	return nil
}

// PropertyActivate switches the input mode or the character form.
// Property names are "mode.<mixed|chinese|english>" and
// "charform.<traditional|simplified>".
func (e *IBusEngine) PropertyActivate(propName string, state uint32) *dbus.Error {
	e.mu.Lock()
	defer e.mu.Unlock()

	group, value, _ := strings.Cut(propName, ".")
	switch group {
	case "mode":
		mode, err := ParseInputMode(value)
		if err != nil {
			e.log.Warn("unknown property", "name", propName)
			return nil
		}
		e.ctrl.HandleKey(SetInputMode(mode))
	case "charform":
		form, err := config.ParseCharForm(value)
		if err != nil {
			e.log.Warn("unknown property", "name", propName)
			return nil
		}
		e.ctrl.HandleKey(SetCharForm(form))
	default:
		e.log.Debug("ignoring property", "name", propName, "state", state)
	}
	return nil
}

// PageUp shows the previous page of candidates.
func (e *IBusEngine) PageUp() *dbus.Error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.page > 0 {
		e.page--
		e.render(e.ctrl.View())
	}
	return nil
}

// PageDown shows the next page, loading more candidates when the
// loaded ones run out.
func (e *IBusEngine) PageDown() *dbus.Error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if (e.page+1)*e.pageSize >= len(e.candidates) {
		e.ctrl.CandidateSource().LoadMore()
	}
	v := e.ctrl.View()
	if (e.page+1)*e.pageSize < len(v.Candidates) {
		e.page++
	}
	e.render(v)
	return nil
}

// CursorUp is unused; candidates are picked by number or click.
func (e *IBusEngine) CursorUp() *dbus.Error {
	return nil
}

// CursorDown is unused; candidates are picked by number or click.
func (e *IBusEngine) CursorDown() *dbus.Error {
	return nil
}

// CandidateClicked selects a candidate on the visible page.
func (e *IBusEngine) CandidateClicked(index, button, state uint32) *dbus.Error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ctrl.HandleKey(SelectCandidate(e.page*e.pageSize + int(index)))
	return nil
}

// GetStats returns engine statistics.
func (e *IBusEngine) GetStats() IBusEngineStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// keyContext is the engine state key translation depends on.
type keyContext struct {
	composing bool
	pageStart int
	onPage    int
}

// translateKey maps an IBus key event to controller actions and reports
// whether the client should see the key. Keys the controller has no use
// for return no actions and pass through.
func translateKey(keyval, state uint32, ctx keyContext) ([]KeyAction, bool) {
	if keyval == GDKShiftL || keyval == GDKShiftR {
		if state&IBusReleaseMask != 0 {
			return []KeyAction{ShiftRelax(), ShiftUp()}, false
		}
		return []KeyAction{ShiftDown()}, false
	}
	if state&IBusReleaseMask != 0 {
		return nil, false
	}
	if state&(IBusControlMask|IBusMod1Mask|IBusMod4Mask) != 0 {
		if keyval == GDKBackSpace && state&IBusControlMask != 0 && ctx.composing {
			return []KeyAction{DeleteWordSwipe()}, true
		}
		return nil, false
	}

	switch keyval {
	case GDKSpace:
		return []KeyAction{Space()}, true
	case GDKReturn, GDKKPEnter:
		if ctx.composing {
			return []KeyAction{NewLine()}, true
		}
		return nil, false
	case GDKBackSpace:
		if ctx.composing {
			return []KeyAction{Backspace()}, true
		}
		return nil, false
	case GDKEscape:
		if ctx.composing {
			return []KeyAction{DeleteWordSwipe()}, true
		}
		return nil, false
	case GDKLeft, GDKRight:
		if !ctx.composing {
			return nil, false
		}
		if keyval == GDKLeft {
			return []KeyAction{MoveCursor(-1)}, true
		}
		return []KeyAction{MoveCursor(1)}, true
	}

	r := keyvalToRune(keyval)
	if r == 0 || !unicode.IsPrint(r) {
		return nil, false
	}
	if ctx.composing {
		if r >= '1' && r <= '9' && int(r-'1') < ctx.onPage {
			return []KeyAction{SelectCandidate(ctx.pageStart + int(r-'1'))}, true
		}
		if r == rune(SymbolDelimiter) {
			return []KeyAction{Symbol(SymbolDelimiter)}, true
		}
	}
	return []KeyAction{Char(string(r))}, true
}

// surfaceKindForPurpose maps an IBusInputPurpose to a surface kind.
func surfaceKindForPurpose(purpose uint32) SurfaceKind {
	switch purpose {
	case IBusPurposeDigits:
		return SurfaceASCIINumeric
	case IBusPurposeNumber:
		return SurfaceDecimal
	case IBusPurposePhone:
		return SurfacePhonePad
	case IBusPurposeURL:
		return SurfaceURL
	case IBusPurposeEmail:
		return SurfaceEmail
	case IBusPurposeName:
		return SurfaceNamePhone
	case IBusPurposePIN:
		return SurfaceNumeric
	case IBusPurposeTerminal:
		return SurfacePlain
	default:
		return SurfaceDefault
	}
}

// keyvalToRune converts X11 keysym to Unicode rune.
func keyvalToRune(keyval uint32) rune {
	// Direct Unicode mapping for Latin-1 range
	if keyval >= 0x20 && keyval <= 0x7e {
		return rune(keyval)
	}

	// Extended Latin (ISO 8859-1)
	if keyval >= 0xa0 && keyval <= 0xff {
		return rune(keyval)
	}

	// Unicode keysyms (0x01000000 + codepoint)
	if keyval >= 0x01000000 {
		return rune(keyval - 0x01000000)
	}

	return 0
}

// IBusFactory implements the IBus Factory D-Bus interface.
type IBusFactory struct {
	engine   *IBusEngine
	engineID uint32
}

// CreateEngine exports the engine at a fresh path for IBus.
func (f *IBusFactory) CreateEngine(engineName string) (dbus.ObjectPath, *dbus.Error) {
	f.engine.log.Info("create engine", "name", engineName)

	if engineName != CantokeyEngineName {
		return "", dbus.NewError("org.freedesktop.IBus.NoEngine",
			[]interface{}{"Unknown engine: " + engineName})
	}

	f.engine.mu.Lock()
	defer f.engine.mu.Unlock()

	f.engineID++
	path := dbus.ObjectPath(fmt.Sprintf("/org/freedesktop/IBus/Engine/%d", f.engineID))
	if err := f.engine.conn.Export(f.engine, path, IBusEngineInterface); err != nil {
		return "", dbus.MakeFailedError(err)
	}
	f.engine.path = path
	return path, nil
}
