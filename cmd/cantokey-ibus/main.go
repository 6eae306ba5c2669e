//go:build linux

// cantokey-ibus is the Linux IBus input method engine.
//
// It connects to the IBus daemon over D-Bus and runs key events through
// the cantokey controller, showing compositions as preedit text and
// candidates in the IBus lookup table.
//
// Installation:
//  1. Copy binary to /usr/local/bin/cantokey-ibus
//  2. Run: cantokey-ibus -install
//  3. Restart IBus: ibus restart
//  4. Enable via: ibus-setup or GNOME Settings > Keyboard > Input Sources
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"cantokey/internal/config"
	"cantokey/internal/engine"
	"cantokey/internal/ime"
	"cantokey/internal/logging"
	"cantokey/internal/store"
)

var version = "dev"

func main() {
	installFlag := flag.Bool("install", false, "Install IBus component")
	uninstallFlag := flag.Bool("uninstall", false, "Uninstall IBus component")
	flag.Bool("ibus", false, "Started by the IBus daemon")
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	if *installFlag {
		path, err := installComponent()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to install: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Installed %s. Run 'ibus restart' to load.\n", path)
		return
	}

	if *uninstallFlag {
		if err := uninstallComponent(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to uninstall: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Uninstalled successfully.")
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "cantokey-ibus: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	loader, _, err := config.LoadOrCreate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	defer loader.Close()
	cfg := loader.Config()
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	lc, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	lc.Component = "cantokey-ibus"
	logger, err := logging.New(lc)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logger.Close()
	logging.SetDefault(logger)

	crash := logging.NewCrashHandler(&logging.CrashHandlerConfig{
		Version:   version,
		Component: "cantokey-ibus",
		Logger:    logger,
	})
	defer func() {
		if r := recover(); r != nil {
			crash.HandlePanic(r, map[string]string{"op": "main"})
			panic(r)
		}
	}()

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
	if err := eng.Deploy(cfg.Engine); err != nil {
		// The controller stays disabled and keys pass through.
		logger.Error("engine deployment failed", "error", err)
	}

	ibus, err := ime.NewIBusEngine(ime.IBusOptions{
		Engine:    eng,
		Settings:  loader,
		Lexicon:   st,
		Session:   st,
		Logger:    logger.Logger,
		InputMode: initialInputMode(st, cfg.Keyboard),
		PageSize:  cfg.Engine.PageSize,
	})
	if err != nil {
		return err
	}

	var redeploy sync.Mutex
	engineCfg := cfg.Engine
	loader.OnChange(func(c *config.Config) {
		eng.SetMixedMode(c.Keyboard.MixedMode)

		redeploy.Lock()
		defer redeploy.Unlock()
		if c.Engine == engineCfg {
			return
		}
		engineCfg = c.Engine
		if err := engine.RemoveQuickStartFlag(c.Engine.UserDataDir); err != nil {
			logger.Warn("quick start flag not removed", "error", err)
		}
		logger.Info("engine settings changed, redeploying")
		if err := eng.Deploy(c.Engine); err != nil {
			logger.Error("engine deployment failed", "error", err)
		}
	})
	if err := loader.Watch(); err != nil {
		logger.Warn("config hot reload unavailable", "error", err)
	}

	if err := ibus.Start(); err != nil {
		return err
	}
	logger.Info("cantokey IBus engine started", "version", version)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("shutting down", "signal", sig.String())

	stats := ibus.GetStats()
	logger.Info("session stats",
		"keys_handled", stats.KeysHandled,
		"keys_passed", stats.KeysPassed,
		"focus_changes", stats.FocusChanges,
	)
	return ibus.Stop()
}

func initialInputMode(st *store.Store, kb config.Keyboard) ime.InputMode {
	name := kb.InputMode
	if session, err := st.LoadSession(); err == nil && session.LastInputMode != "" {
		name = session.LastInputMode
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		logging.Warn("session not restored", "error", err)
	}
	if mode, err := ime.ParseInputMode(name); err == nil {
		return mode
	}
	return ime.InputModeMixed
}

func componentPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "ibus", "component", ime.CantokeyEngineName+".xml"), nil
}

func componentXML(binPath string) string {
	r := strings.NewReplacer(
		"{{bus}}", ime.CantokeyBusName,
		"{{exec}}", binPath+" -ibus",
		"{{version}}", ime.CantokeyEngineVersion,
		"{{engine}}", ime.CantokeyEngineName,
	)
	return r.Replace(`<?xml version="1.0" encoding="utf-8"?>
<component>
    <name>{{bus}}</name>
    <description>Cantonese and English keyboard</description>
    <exec>{{exec}}</exec>
    <version>{{version}}</version>
    <author>Cantokey</author>
    <license>MIT</license>
    <textdomain>cantokey</textdomain>
    <engines>
        <engine>
            <name>{{engine}}</name>
            <language>zh_HK</language>
            <license>MIT</license>
            <author>Cantokey</author>
            <icon>cantokey</icon>
            <layout>us</layout>
            <longname>Cantokey</longname>
            <description>Jyutping input with mixed English</description>
            <rank>99</rank>
            <symbol>粵</symbol>
        </engine>
    </engines>
</component>
`)
}

func installComponent() (string, error) {
	path, err := componentPath()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}

	binPath, err := os.Executable()
	if err != nil {
		binPath = "/usr/local/bin/cantokey-ibus"
	}
	return path, os.WriteFile(path, []byte(componentXML(binPath)), 0644)
}

func uninstallComponent() error {
	path, err := componentPath()
	if err != nil {
		return err
	}
	return os.Remove(path)
}
