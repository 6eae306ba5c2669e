// cantokey runs the Cantonese/English keyboard against a document in the
// terminal.
//
// Usage:
//
//	cantokey [-config path] [-kind default|url|email|...] [-debug]
//
// Letters compose Jyutping; space takes the best candidate and the digit
// keys pick one. Tab cycles the input mode. See actionsFor for the control
// keys. On exit the document is printed to stdout.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"cantokey/internal/config"
	"cantokey/internal/engine"
	"cantokey/internal/ime"
	"cantokey/internal/logging"
	"cantokey/internal/store"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	kind := flag.String("kind", "default", "Kind of text field to emulate")
	debug := flag.Bool("debug", false, "Log at debug level")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("cantokey", version)
		return
	}

	if err := run(*configPath, *kind, *debug); err != nil {
		fmt.Fprintf(os.Stderr, "cantokey: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, kindName string, debug bool) error {
	kind, err := ime.ParseSurfaceKind(kindName)
	if err != nil {
		return err
	}

	loader, created, err := config.LoadOrCreate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	defer loader.Close()
	cfg := loader.Config()
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.Logging, debug)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logger.Close()
	logging.SetDefault(logger)
	if created {
		logger.Info("created default configuration", "path", loader.Path())
	}

	crash := logging.NewCrashHandler(&logging.CrashHandlerConfig{
		Version:   version,
		Component: "cantokey",
		Logger:    logger,
	})

	st, err := store.OpenConfig(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	eng := engine.NewTableEngine(engine.Options{
		Keyboard: cfg.Keyboard,
		Words:    st,
		Logger:   logger.Logger,
	})
	states := make(chan engine.State, 4)
	eng.OnStateChange(func(_, to engine.State) {
		select {
		case states <- to:
		default:
		}
	})
	go deploy(eng, cfg.Engine, logger)

	changes := make(chan *config.Config, 1)
	loader.OnChange(func(c *config.Config) {
		select {
		case <-changes:
		default:
		}
		select {
		case changes <- c:
		default:
		}
	})
	if err := loader.Watch(); err != nil {
		logger.Warn("config hot reload unavailable", "error", err)
	}

	fd := int(os.Stdin.Fd())
	a := &app{
		log:       logger,
		crash:     crash,
		engine:    eng,
		settings:  loader,
		surface:   ime.NewMemorySurface(kind),
		out:       os.Stdout,
		fd:        fd,
		keyboard:  cfg.Keyboard,
		engineCfg: cfg.Engine,
	}
	a.ctrl = ime.NewController(ime.Options{
		Engine:    eng,
		Surface:   a.surface,
		Settings:  loader,
		Lexicon:   st,
		Session:   st,
		Logger:    logger.Logger,
		InputMode: initialInputMode(st, cfg.Keyboard, logger),
		OnUpdate:  a.draw,
	})
	a.surface.SetObserver(a.ctrl)

	if term.IsTerminal(fd) {
		old, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("raw mode: %w", err)
		}
		defer func() {
			term.Restore(fd, old)
			fmt.Fprintln(os.Stdout, a.surface.Text())
		}()
	}
	a.draw(a.ctrl.View())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	input := readInput(os.Stdin)

	var pending []byte
	for {
		select {
		case chunk, ok := <-input:
			if !ok {
				return nil
			}
			var keys []key
			keys, pending = decodeKeys(append(pending, chunk...))
			for _, k := range keys {
				if a.handleKey(k) {
					return nil
				}
			}
		case s := <-states:
			logger.Debug("engine state", "state", s.String())
			if s == engine.StateSucceeded || s == engine.StateFailure {
				a.ctrl.SetEnabled(s == engine.StateSucceeded)
			}
		case c := <-changes:
			a.applyConfig(c)
		case err := <-loader.Errors():
			logger.Warn("config watch error", "error", err)
		case <-sigs:
			return nil
		}
	}
}

// newLogger builds the logger from the config file. Terminal output would
// corrupt the raw-mode screen, so console outputs go to the log file.
func newLogger(s config.LoggingConfig, debug bool) (*logging.Logger, error) {
	lc, err := logging.FromSettings(s)
	if err != nil {
		return nil, err
	}
	if debug {
		lc.Level = logging.LevelDebug
	}
	if !strings.EqualFold(lc.Output, "file") {
		lc.Output = "file"
	}
	return logging.New(lc)
}

func deploy(eng *engine.TableEngine, cfg config.EngineConfig, log *logging.Logger) {
	if err := eng.Deploy(cfg); err != nil {
		log.Error("engine deployment failed", "error", err)
	}
}

// initialInputMode restores the last mode, falling back to the config file.
func initialInputMode(st *store.Store, kb config.Keyboard, log *logging.Logger) ime.InputMode {
	name := kb.InputMode
	session, err := st.LoadSession()
	switch {
	case err == nil && session.LastInputMode != "":
		name = session.LastInputMode
	case err != nil && !errors.Is(err, store.ErrNotFound):
		log.Warn("session not restored", "error", err)
	}
	mode, err := ime.ParseInputMode(name)
	if err != nil {
		log.Warn("unknown input mode, using mixed", "mode", name)
		return ime.InputModeMixed
	}
	return mode
}

func readInput(r io.Reader) <-chan []byte {
	ch := make(chan []byte)
	go func() {
		defer close(ch)
		buf := make([]byte, 256)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				ch <- append([]byte(nil), buf[:n]...)
			}
			if err != nil {
				return
			}
		}
	}()
	return ch
}

type app struct {
	log      *logging.Logger
	crash    *logging.CrashHandler
	engine   *engine.TableEngine
	settings ime.Settings
	ctrl     *ime.Controller
	surface  *ime.MemorySurface
	out      io.Writer
	fd       int

	keyboard  config.Keyboard
	engineCfg config.EngineConfig
	page      pager
}

func (a *app) keyState() keyState {
	v := a.ctrl.View()
	return keyState{
		composing: a.engine.IsComposing(),
		keyboard:  v.KeyboardType,
		mode:      v.InputMode,
		reverse:   v.ReverseLookup,
		charForm:  a.settings.Keyboard().CharForm,
		pageStart: a.page.start(),
		onPage:    a.page.onPage(len(v.Candidates)),
	}
}

// handleKey runs one key through the controller and reports whether the
// user asked to quit.
func (a *app) handleKey(k key) bool {
	actions, cmd := actionsFor(k, a.keyState())
	switch cmd {
	case cmdQuit:
		return true
	case cmdNextPage:
		if a.page.next(a.ctrl.CandidateSource()) {
			a.draw(a.ctrl.View())
		}
		return false
	case cmdPrevPage:
		if a.page.prev() {
			a.draw(a.ctrl.View())
		}
		return false
	}

	a.page = pager{}
	for _, action := range actions {
		if a.crash.Recover("key:"+action.Kind.String(), func() { a.ctrl.HandleKey(action) }) {
			a.ctrl.ResetState()
		}
	}
	return false
}

// applyConfig reacts to an edited config file. Changed engine settings
// invalidate the quick start flag and trigger a full redeploy.
func (a *app) applyConfig(c *config.Config) {
	if c.Keyboard.MixedMode != a.keyboard.MixedMode {
		a.engine.SetMixedMode(c.Keyboard.MixedMode)
	}
	if c.Keyboard.CharForm != a.keyboard.CharForm {
		a.engine.RefreshCharForm(c.Keyboard.CharForm)
	}
	a.keyboard = c.Keyboard

	if c.Engine != a.engineCfg {
		a.engineCfg = c.Engine
		if err := engine.RemoveQuickStartFlag(c.Engine.UserDataDir); err != nil {
			a.log.Warn("quick start flag not removed", "error", err)
		}
		a.log.Info("engine settings changed, redeploying")
		go deploy(a.engine, c.Engine, a.log)
	}
	a.ctrl.HandleKey(ime.RefreshMarkedText())
}

func (a *app) draw(v ime.View) {
	width := 0
	if w, _, err := term.GetSize(a.fd); err == nil {
		width = w
	}
	marked, caret := a.surface.MarkedText()
	f := frame{
		before:      a.surface.TextBeforeCaret(),
		after:       a.surface.TextAfterCaret(),
		marked:      marked,
		markedCaret: caret,
		view:        v,
		charForm:    a.settings.Keyboard().CharForm,
		surface:     a.surface.Kind(),
		page:        a.page,
		width:       width,
	}
	fmt.Fprint(a.out, "\x1b[H\x1b[2J"+strings.ReplaceAll(f.String(), "\n", "\r\n"))
}
