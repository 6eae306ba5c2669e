package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CANTOKEY_DATA_DIR", dir)
	for _, k := range []string{
		"CANTOKEY_STORAGE_PATH", "CANTOKEY_LEXICON_PATH", "CANTOKEY_USER_DATA_DIR",
		"CANTOKEY_LOG_LEVEL", "CANTOKEY_LOG_PATH", "CANTOKEY_SYMBOL_SHAPE",
	} {
		t.Setenv(k, "")
	}
	return dir
}

func TestDefaultConfig(t *testing.T) {
	dir := isolate(t)

	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, Version, cfg.Version)
	assert.Equal(t, SpaceBestCandidate, cfg.Keyboard.SpaceOutputMode)
	assert.Equal(t, SymbolSmart, cfg.Keyboard.SymbolShape)
	assert.True(t, cfg.Keyboard.AutoCap)
	assert.True(t, cfg.Keyboard.SmartFullStop)
	assert.Equal(t, CharFormTraditional, cfg.Keyboard.CharForm)
	assert.Equal(t, filepath.Join(dir, "user.db"), cfg.Storage.Path)
	assert.NoError(t, cfg.Validate())
}

func TestConfigPath(t *testing.T) {
	path := ConfigPath()
	if path == "" {
		t.Fatal("ConfigPath returned empty string")
	}
	if !strings.HasSuffix(path, "config.toml") {
		t.Errorf("expected path ending with config.toml, got %s", path)
	}
	if !strings.Contains(path, appName) {
		t.Errorf("config path should contain %s: %s", appName, path)
	}
}

func TestLoadNonexistent(t *testing.T) {
	isolate(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing", "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultKeyboard(), cfg.Keyboard)
}

func TestLoadFormats(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{
			name: "toml",
			file: "config.toml",
			body: "version = 2\n[keyboard]\nspace_output_mode = \"input\"\nsymbol_shape = \"full\"\nchar_form = \"simplified\"\n",
		},
		{
			name: "json",
			file: "config.json",
			body: `{"version": 2, "keyboard": {"space_output_mode": "input", "symbol_shape": "full", "char_form": "simplified"}}`,
		},
		{
			name: "yaml",
			file: "config.yaml",
			body: "version: 2\nkeyboard:\n  space_output_mode: input\n  symbol_shape: full\n  char_form: simplified\n",
		},
		{
			name: "no extension",
			file: "cantokeyrc",
			body: "version = 2\n[keyboard]\nspace_output_mode = \"input\"\nsymbol_shape = \"full\"\nchar_form = \"simplified\"\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0600))

			cfg, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, SpaceInput, cfg.Keyboard.SpaceOutputMode)
			assert.Equal(t, SymbolFull, cfg.Keyboard.SymbolShape)
			assert.Equal(t, CharFormSimplified, cfg.Keyboard.CharForm)
			// Unspecified fields keep their defaults.
			assert.True(t, cfg.Keyboard.AutoCap)
			assert.Equal(t, 10, cfg.Engine.PageSize)
		})
	}
}

func TestLoadJSONSchemaRejectsUnknownSection(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 2, "watch": {"paths": []}}`), 0600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema validation")
}

func TestValidateJSON(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{"empty object", `{}`, false},
		{"valid keyboard", `{"keyboard": {"symbol_shape": "half", "auto_cap": false}}`, false},
		{"bad enum", `{"keyboard": {"symbol_shape": "round"}}`, true},
		{"bad type", `{"engine": {"page_size": "ten"}}`, true},
		{"page size out of range", `{"engine": {"page_size": 0}}`, true},
		{"not json", `version = 2`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateJSON([]byte(tt.doc))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad version", func(c *Config) { c.Version = 99 }, "version"},
		{"bad space mode", func(c *Config) { c.Keyboard.SpaceOutputMode = "nextPage" }, "keyboard.space_output_mode"},
		{"bad symbol shape", func(c *Config) { c.Keyboard.SymbolShape = "wide" }, "keyboard.symbol_shape"},
		{"bad char form", func(c *Config) { c.Keyboard.CharForm = "hk" }, "keyboard.char_form"},
		{"mixed without mixed mode", func(c *Config) { c.Keyboard.MixedMode = false }, "keyboard.input_mode"},
		{"missing lexicon", func(c *Config) { c.Engine.LexiconPath = "/nonexistent/lexicon.yaml" }, "engine.lexicon_path"},
		{"page size", func(c *Config) { c.Engine.PageSize = 0 }, "engine.page_size"},
		{"storage path", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"busy timeout", func(c *Config) { c.Storage.BusyTimeoutMs = -1 }, "storage.busy_timeout_ms"},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"log file", func(c *Config) { c.Logging.FilePath = "" }, "logging.file_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := ValidateConfig(cfg)
			require.Error(t, err)

			var errs ValidationErrors
			require.ErrorAs(t, err, &errs)
			var fields []string
			for _, e := range errs {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	isolate(t)
	cfg := DefaultConfig()
	cfg.Keyboard.SymbolShape = "wide"
	cfg.Logging.Format = "xml"
	cfg.Storage.Path = ""

	var errs ValidationErrors
	require.ErrorAs(t, cfg.Validate(), &errs)
	assert.Len(t, errs, 3)
}

func TestMigrateV1(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantSpace SpaceOutputMode
		wantShape SymbolShape
	}{
		{
			name:      "insert text",
			body:      "[keyboard]\nspace_action = \"insertText\"\nfull_width_symbols = true\n",
			wantSpace: SpaceInput,
			wantShape: SymbolFull,
		},
		{
			name:      "next page",
			body:      "version = 1\n[keyboard]\nspace_action = \"nextPage\"\nfull_width_symbols = false\n",
			wantSpace: SpaceBestCandidate,
			wantShape: SymbolHalf,
		},
		{
			name:      "new keys win",
			body:      "version = 1\n[keyboard]\nspace_action = \"insertText\"\nspace_output_mode = \"best_candidate\"\n",
			wantSpace: SpaceBestCandidate,
			wantShape: SymbolSmart,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			path := filepath.Join(t.TempDir(), "config.toml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0600))

			cfg, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, Version, cfg.Version)
			assert.Equal(t, tt.wantSpace, cfg.Keyboard.SpaceOutputMode)
			assert.Equal(t, tt.wantShape, cfg.Keyboard.SymbolShape)

			backups, _ := filepath.Glob(path + ".backup-*")
			assert.Len(t, backups, 1)

			history, err := GetMigrationHistory()
			require.NoError(t, err)
			require.Len(t, history, 1)
			assert.Equal(t, 1, history[0].FromVersion)
		})
	}
}

func TestMigrateUnknownSpaceAction(t *testing.T) {
	isolate(t)
	cfg := DefaultConfig()
	cfg.Version = 1
	raw := map[string]any{"keyboard": map[string]any{"space_action": "teleport"}}

	result, err := MigrateConfig(cfg, raw, "")
	require.NoError(t, err)
	assert.Equal(t, SpaceBestCandidate, cfg.Keyboard.SpaceOutputMode)
	assert.Len(t, result.Warnings, 1)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	for _, ext := range SupportedConfigFormats() {
		t.Run(ext, func(t *testing.T) {
			isolate(t)
			path := filepath.Join(t.TempDir(), "config."+ext)

			cfg := DefaultConfig()
			cfg.Keyboard.SymbolShape = SymbolHalf
			cfg.Keyboard.AutoCap = false
			cfg.Engine.PageSize = 25
			require.NoError(t, SaveConfig(cfg, path))

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, cfg.Keyboard, loaded.Keyboard)
			assert.Equal(t, cfg.Engine, loaded.Engine)
			assert.Equal(t, cfg.Storage, loaded.Storage)
		})
	}
}

func TestLoadOrCreate(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")

	loader, created, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.True(t, created)
	assert.FileExists(t, path)
	assert.Equal(t, DefaultKeyboard(), loader.Keyboard())

	loader, created, err = LoadOrCreate(path)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, DefaultKeyboard(), loader.Keyboard())
}

func TestLoadOrCreateFindsExistingFile(t *testing.T) {
	isolate(t)
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "cfg"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(home, "data"))

	assert.Empty(t, FindConfigFile())

	cfg := DefaultConfig()
	cfg.Keyboard.AutoCap = false
	path := filepath.Join(PlatformConfigDir(), "config.yaml")
	require.NoError(t, SaveConfig(cfg, path))
	assert.Equal(t, path, FindConfigFile())

	loader, created, err := LoadOrCreate("")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, path, loader.Path())
	assert.False(t, loader.Keyboard().AutoCap)
}

func TestEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("CANTOKEY_SYMBOL_SHAPE", "half")
	t.Setenv("CANTOKEY_LOG_LEVEL", "debug")
	t.Setenv("CANTOKEY_STORAGE_PATH", "/tmp/cantokey-test.db")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, SymbolHalf, cfg.Keyboard.SymbolShape)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/tmp/cantokey-test.db", cfg.Storage.Path)
}

func TestUpdateKeyboard(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	loader := NewLoader(path)
	_, err := loader.Load()
	require.NoError(t, err)

	var notified *Config
	loader.OnChange(func(c *Config) { notified = c })

	require.NoError(t, loader.UpdateKeyboard(func(k *Keyboard) {
		k.CharForm = CharFormSimplified
	}))
	assert.Equal(t, CharFormSimplified, loader.Keyboard().CharForm)
	require.NotNil(t, notified)
	assert.Equal(t, CharFormSimplified, notified.Keyboard.CharForm)

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, CharFormSimplified, reloaded.Keyboard.CharForm)

	err = loader.UpdateKeyboard(func(k *Keyboard) { k.SymbolShape = "wide" })
	require.Error(t, err)
	assert.Equal(t, SymbolSmart, loader.Keyboard().SymbolShape)
}

func TestKeyboardBeforeLoad(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "config.toml"))
	assert.Equal(t, DefaultKeyboard(), loader.Keyboard())
	assert.Nil(t, loader.Config())
}

func TestWatchReloads(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, SaveConfig(DefaultConfig(), path))

	loader := NewLoader(path)
	loader.debounce = 10 * time.Millisecond
	_, err := loader.Load()
	require.NoError(t, err)

	changed := make(chan *Config, 4)
	loader.OnChange(func(c *Config) { changed <- c })
	require.NoError(t, loader.Watch())
	defer loader.Close()

	cfg := DefaultConfig()
	cfg.Keyboard.SmartFullStop = false
	require.NoError(t, SaveConfig(cfg, path))

	select {
	case c := <-changed:
		assert.False(t, c.Keyboard.SmartFullStop)
		assert.False(t, loader.Keyboard().SmartFullStop)
	case err := <-loader.Errors():
		t.Fatalf("watch error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("config change not observed")
	}
}

func TestWatchReportsInvalidConfig(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, SaveConfig(DefaultConfig(), path))

	loader := NewLoader(path)
	loader.debounce = 10 * time.Millisecond
	_, err := loader.Load()
	require.NoError(t, err)
	require.NoError(t, loader.Watch())
	defer loader.Close()

	require.NoError(t, os.WriteFile(path, []byte("version = 2\n[keyboard]\nsymbol_shape = \"wide\"\n"), 0600))

	select {
	case err := <-loader.Errors():
		assert.Contains(t, err.Error(), "keyboard.symbol_shape")
	case <-time.After(5 * time.Second):
		t.Fatal("reload error not reported")
	}
	assert.Equal(t, SymbolSmart, loader.Keyboard().SymbolShape)
}

func TestClone(t *testing.T) {
	isolate(t)
	cfg := DefaultConfig()
	clone := cfg.Clone()
	clone.Keyboard.AutoCap = false
	clone.Storage.Path = "/elsewhere"

	assert.True(t, cfg.Keyboard.AutoCap)
	assert.NotEqual(t, "/elsewhere", cfg.Storage.Path)
}

func TestEnsureDirectories(t *testing.T) {
	dir := isolate(t)
	cfg := DefaultConfig()
	cfg.Logging.FilePath = filepath.Join(dir, "logs", "cantokey.log")

	require.NoError(t, cfg.EnsureDirectories())
	assert.DirExists(t, filepath.Join(dir, "logs"))
	assert.DirExists(t, cfg.Engine.UserDataDir)
}
