package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

const defaultDebounce = 100 * time.Millisecond

// Loader handles configuration loading, watching, and hot-reloading.
// It also serves the keyboard settings to the input controller.
type Loader struct {
	path     string
	config   *Config
	mu       sync.RWMutex
	watcher  *fsnotify.Watcher
	onChange []func(*Config)
	debounce time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	errChan  chan error
}

// NewLoader creates a new configuration loader.
func NewLoader(path string) *Loader {
	if path == "" {
		path = ConfigPath()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Loader{
		path:     path,
		debounce: defaultDebounce,
		errChan:  make(chan error, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Path returns the file the loader reads and writes.
func (l *Loader) Path() string {
	return l.path
}

// Load reads and parses the configuration file.
func (l *Loader) Load() (*Config, error) {
	cfg, err := l.read()
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.config = cfg
	l.mu.Unlock()
	return cfg, nil
}

func (l *Loader) read() (*Config, error) {
	cfg, raw, err := loadConfigFromFile(l.path)
	if err != nil {
		return nil, err
	}

	if cfg.Version < Version {
		result, err := MigrateConfig(cfg, raw, l.path)
		if err != nil {
			return nil, fmt.Errorf("migration failed: %w", err)
		}
		if result != nil {
			_ = SaveMigrationHistory(result)
		}
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

// Config returns the current configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// Keyboard returns the current keyboard settings, or the defaults before
// the first successful load.
func (l *Loader) Keyboard() Keyboard {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.config == nil {
		return DefaultKeyboard()
	}
	return l.config.Keyboard
}

// UpdateKeyboard applies fn to a copy of the keyboard settings, validates the
// result and persists it. The in-memory settings change only if the write succeeds.
func (l *Loader) UpdateKeyboard(fn func(*Keyboard)) error {
	l.mu.Lock()
	var next *Config
	if l.config == nil {
		next = DefaultConfig()
	} else {
		next = l.config.Clone()
	}
	fn(&next.Keyboard)

	if errs := ValidateKeyboard(&next.Keyboard); len(errs) > 0 {
		l.mu.Unlock()
		return errs
	}
	if err := SaveConfig(next, l.path); err != nil {
		l.mu.Unlock()
		return err
	}
	l.config = next
	callbacks := append([]func(*Config){}, l.onChange...)
	l.mu.Unlock()

	for _, cb := range callbacks {
		cb(next)
	}
	return nil
}

// Watch starts watching the configuration file for changes.
// When changes are detected, the configuration is reloaded and
// registered callbacks are invoked.
func (l *Loader) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	l.watcher = watcher

	// Editors replace files by rename, so watch the directory rather than the file.
	dir := filepath.Dir(l.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}

	go l.watchLoop()

	return nil
}

func (l *Loader) watchLoop() {
	var debounceTimer *time.Timer

	for {
		select {
		case <-l.ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}

			if filepath.Base(event.Name) != filepath.Base(l.path) {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(l.debounce, l.reload)

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.reportError(err)
		}
	}
}

func (l *Loader) reload() {
	if l.ctx.Err() != nil {
		return
	}

	newCfg, err := l.read()
	if err != nil {
		l.reportError(fmt.Errorf("reload config: %w", err))
		return
	}

	l.mu.Lock()
	l.config = newCfg
	callbacks := append([]func(*Config){}, l.onChange...)
	l.mu.Unlock()

	for _, cb := range callbacks {
		cb(newCfg)
	}
}

func (l *Loader) reportError(err error) {
	select {
	case l.errChan <- err:
	default:
	}
}

// OnChange registers a callback to be invoked when the configuration changes.
func (l *Loader) OnChange(cb func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, cb)
}

// Errors returns a channel for receiving errors that occur during watching.
func (l *Loader) Errors() <-chan error {
	return l.errChan
}

// Close stops the watcher and releases resources.
func (l *Loader) Close() error {
	l.cancel()
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}

// loadConfigFromFile reads and parses a config file based on its extension.
// The raw document is returned alongside for migrations.
func loadConfigFromFile(path string) (*Config, map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil, nil
		}
		return nil, nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	raw := map[string]any{}

	switch filepath.Ext(path) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, nil, fmt.Errorf("decode TOML: %w", err)
		}
		_, _ = toml.Decode(string(data), &raw)
	case ".json":
		if err := ValidateJSON(data); err != nil {
			return nil, nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, nil, fmt.Errorf("decode JSON: %w", err)
		}
		_ = json.Unmarshal(data, &raw)
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, nil, fmt.Errorf("decode YAML: %w", err)
		}
		_ = yaml.Unmarshal(data, &raw)
	default:
		if err := autoDetectAndParse(data, cfg, &raw); err != nil {
			return nil, nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// A document without a version predates versioning.
	if _, ok := raw["version"]; !ok {
		cfg.Version = 1
	}

	return cfg, raw, nil
}

// autoDetectAndParse attempts to parse the config in multiple formats.
func autoDetectAndParse(data []byte, cfg *Config, raw *map[string]any) error {
	if _, err := toml.Decode(string(data), cfg); err == nil {
		_, _ = toml.Decode(string(data), raw)
		return nil
	}

	if err := json.Unmarshal(data, cfg); err == nil {
		_ = json.Unmarshal(data, raw)
		return nil
	}

	if err := yaml.Unmarshal(data, cfg); err == nil {
		_ = yaml.Unmarshal(data, raw)
		return nil
	}

	return errors.New("unable to parse config file (tried TOML, JSON, YAML)")
}

// LoadOrCreate loads the configuration from the specified path,
// creating a default configuration file if it doesn't exist. An empty
// path picks up an existing file in any supported format before falling
// back to ConfigPath. The returned loader holds the loaded config.
func LoadOrCreate(path string) (*Loader, bool, error) {
	if path == "" {
		path = FindConfigFile()
	}
	loader := NewLoader(path)

	if _, err := os.Stat(loader.path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.ApplyEnvOverrides()
		if err := SaveConfig(cfg, loader.path); err != nil {
			return nil, false, fmt.Errorf("create default config: %w", err)
		}
		loader.config = cfg
		return loader, true, nil
	}

	if _, err := loader.Load(); err != nil {
		return nil, false, err
	}
	return loader, false, nil
}

// SaveConfig writes the configuration in the format implied by the path's
// extension, defaulting to TOML. The file is replaced atomically.
func SaveConfig(cfg *Config, path string) error {
	data, err := encodeConfig(cfg, filepath.Ext(path))
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

func encodeConfig(cfg *Config, ext string) ([]byte, error) {
	snapshot := cfg.Clone()

	switch ext {
	case ".json":
		return json.MarshalIndent(snapshot, "", "  ")
	case ".yaml", ".yml":
		return yaml.Marshal(snapshot)
	default:
		var buf bytes.Buffer
		buf.WriteString("# cantokey configuration\n\n")
		if err := toml.NewEncoder(&buf).Encode(snapshot); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
}

// Load reads the configuration at path, falling back to defaults when the
// file does not exist.
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}
