// Package config handles configuration loading, validation, and management for cantokey.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Version is the current configuration schema version.
const Version = 2

// SpaceOutputMode controls what the space key commits while composing.
type SpaceOutputMode string

const (
	// SpaceInput commits the raw composing text.
	SpaceInput SpaceOutputMode = "input"
	// SpaceBestCandidate commits the top engine candidate.
	SpaceBestCandidate SpaceOutputMode = "best_candidate"
)

// SymbolShape selects half-width, full-width, or context-driven punctuation.
type SymbolShape string

const (
	SymbolHalf  SymbolShape = "half"
	SymbolFull  SymbolShape = "full"
	SymbolSmart SymbolShape = "smart"
)

// CharForm is the Chinese character form rendered by the engine.
type CharForm string

const (
	CharFormTraditional CharForm = "traditional"
	CharFormSimplified  CharForm = "simplified"
)

// ParseCharForm validates a character form name.
func ParseCharForm(s string) (CharForm, error) {
	switch f := CharForm(s); f {
	case CharFormTraditional, CharFormSimplified:
		return f, nil
	}
	return "", fmt.Errorf("unknown char form %q", s)
}

// Config holds the complete keyboard configuration.
type Config struct {
	// Version is the configuration schema version for migrations.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Keyboard holds the input behaviour settings read by the controller.
	Keyboard Keyboard `toml:"keyboard" json:"keyboard" yaml:"keyboard"`

	// Engine configures the composition engine and its schema patches.
	Engine EngineConfig `toml:"engine" json:"engine" yaml:"engine"`

	// Storage configures the user dictionary database.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// Keyboard holds the per-user input settings.
type Keyboard struct {
	// SpaceOutputMode decides whether space inserts the best candidate or the raw input.
	SpaceOutputMode SpaceOutputMode `toml:"space_output_mode" json:"space_output_mode" yaml:"space_output_mode"`

	// SymbolShape selects the punctuation shape policy.
	SymbolShape SymbolShape `toml:"symbol_shape" json:"symbol_shape" yaml:"symbol_shape"`

	// AutoCap enables automatic capitalization at sentence starts.
	AutoCap bool `toml:"auto_cap" json:"auto_cap" yaml:"auto_cap"`

	// SmartFullStop turns a double space into a full stop.
	SmartFullStop bool `toml:"smart_full_stop" json:"smart_full_stop" yaml:"smart_full_stop"`

	// MixedMode allows English and Chinese candidates in the same composition.
	MixedMode bool `toml:"mixed_mode" json:"mixed_mode" yaml:"mixed_mode"`

	// CharForm is the Chinese character form.
	CharForm CharForm `toml:"char_form" json:"char_form" yaml:"char_form"`

	// InputMode is the initial display mode: "mixed", "chinese" or "english".
	InputMode string `toml:"input_mode" json:"input_mode" yaml:"input_mode"`
}

// EngineConfig holds composition engine configuration.
type EngineConfig struct {
	// LexiconPath points to a YAML lexicon. Empty uses the built-in table.
	LexiconPath string `toml:"lexicon_path" json:"lexicon_path" yaml:"lexicon_path"`

	// UserDataDir receives generated schema patches.
	UserDataDir string `toml:"user_data_dir" json:"user_data_dir" yaml:"user_data_dir"`

	EnableCompletion bool `toml:"enable_completion" json:"enable_completion" yaml:"enable_completion"`
	EnableCorrector  bool `toml:"enable_corrector" json:"enable_corrector" yaml:"enable_corrector"`
	EnableSentence   bool `toml:"enable_sentence" json:"enable_sentence" yaml:"enable_sentence"`
	EnableLearning   bool `toml:"enable_learning" json:"enable_learning" yaml:"enable_learning"`

	// PageSize is the number of candidates loaded per page.
	PageSize int `toml:"page_size" json:"page_size" yaml:"page_size"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// Path is the path to the SQLite database file.
	Path string `toml:"path" json:"path" yaml:"path"`

	// BusyTimeoutMs is the SQLite busy timeout in milliseconds.
	BusyTimeoutMs int `toml:"busy_timeout_ms" json:"busy_timeout_ms" yaml:"busy_timeout_ms"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `toml:"level" json:"level" yaml:"level"`
	Format     string `toml:"format" json:"format" yaml:"format"`
	Output     string `toml:"output" json:"output" yaml:"output"`
	FilePath   string `toml:"file_path" json:"file_path" yaml:"file_path"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `toml:"compress" json:"compress" yaml:"compress"`
}

// DefaultKeyboard returns the keyboard settings of a fresh install.
func DefaultKeyboard() Keyboard {
	return Keyboard{
		SpaceOutputMode: SpaceBestCandidate,
		SymbolShape:     SymbolSmart,
		AutoCap:         true,
		SmartFullStop:   true,
		MixedMode:       true,
		CharForm:        CharFormTraditional,
		InputMode:       "mixed",
	}
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := DataDir()

	return &Config{
		Version:  Version,
		Keyboard: DefaultKeyboard(),
		Engine: EngineConfig{
			UserDataDir:      filepath.Join(dir, "rime"),
			EnableCompletion: true,
			EnableCorrector:  false,
			EnableSentence:   true,
			EnableLearning:   true,
			PageSize:         10,
		},
		Storage: StorageConfig{
			Path:          filepath.Join(dir, "user.db"),
			BusyTimeoutMs: 5000,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "file",
			FilePath:   filepath.Join(PlatformLogDir(), "cantokey.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
			Compress:   true,
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// DataDir returns the base data directory.
// Uses platform-specific paths or the CANTOKEY_DATA_DIR environment override.
func DataDir() string {
	if envDir := os.Getenv("CANTOKEY_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the keyboard writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Storage.Path),
		filepath.Dir(c.Logging.FilePath),
		c.Engine.UserDataDir,
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with CANTOKEY_ and use underscores.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := os.Getenv("CANTOKEY_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("CANTOKEY_LEXICON_PATH"); v != "" {
		c.Engine.LexiconPath = v
	}
	if v := os.Getenv("CANTOKEY_USER_DATA_DIR"); v != "" {
		c.Engine.UserDataDir = v
	}
	if v := os.Getenv("CANTOKEY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CANTOKEY_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("CANTOKEY_SYMBOL_SHAPE"); v != "" {
		c.Keyboard.SymbolShape = SymbolShape(v)
	}
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return &Config{
		Version:  c.Version,
		Keyboard: c.Keyboard,
		Engine:   c.Engine,
		Storage:  c.Storage,
		Logging:  c.Logging,
	}
}
