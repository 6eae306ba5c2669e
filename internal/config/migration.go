package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// MigrationResult contains the result of a configuration migration.
type MigrationResult struct {
	FromVersion int       `json:"from_version"`
	ToVersion   int       `json:"to_version"`
	Backup      string    `json:"backup,omitempty"`
	Changes     []string  `json:"changes,omitempty"`
	Warnings    []string  `json:"warnings,omitempty"`
	MigratedAt  time.Time `json:"migrated_at"`
}

// legacySpaceActions maps the v1 keyboard.space_action values onto space output modes.
var legacySpaceActions = map[string]SpaceOutputMode{
	"nextPage":        SpaceBestCandidate,
	"insertCandidate": SpaceBestCandidate,
	"insertText":      SpaceInput,
}

// MigrateConfig migrates a configuration from an older version to the current version.
// raw is the undecoded document; fields removed from the schema are only visible there.
// A backup of configPath is written before anything changes.
func MigrateConfig(cfg *Config, raw map[string]any, configPath string) (*MigrationResult, error) {
	if cfg.Version >= Version {
		return nil, nil
	}

	result := &MigrationResult{
		FromVersion: cfg.Version,
		ToVersion:   Version,
		MigratedAt:  time.Now(),
	}

	if configPath != "" {
		backup, err := backupConfig(configPath)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("could not create backup: %v", err))
		} else {
			result.Backup = backup
		}
	}

	for cfg.Version < Version {
		changes, warnings, err := applyMigration(cfg, raw)
		if err != nil {
			return result, fmt.Errorf("migration from v%d to v%d failed: %w", cfg.Version, cfg.Version+1, err)
		}
		result.Changes = append(result.Changes, changes...)
		result.Warnings = append(result.Warnings, warnings...)
	}

	return result, nil
}

func applyMigration(cfg *Config, raw map[string]any) (changes []string, warnings []string, err error) {
	switch cfg.Version {
	case 0, 1:
		changes, warnings = migrateV1ToV2(cfg, raw)
		cfg.Version = 2
		return changes, warnings, nil
	default:
		return nil, nil, fmt.Errorf("unknown version %d", cfg.Version)
	}
}

// migrateV1ToV2 replaces the three-way space_action with space_output_mode
// and the full_width_symbols toggle with symbol_shape.
func migrateV1ToV2(cfg *Config, raw map[string]any) (changes []string, warnings []string) {
	kb, _ := raw["keyboard"].(map[string]any)
	if kb == nil {
		return nil, nil
	}

	if _, set := kb["space_output_mode"]; !set {
		if action, ok := kb["space_action"].(string); ok {
			if mode, known := legacySpaceActions[action]; known {
				cfg.Keyboard.SpaceOutputMode = mode
				changes = append(changes, fmt.Sprintf("keyboard.space_action %q -> space_output_mode %q", action, mode))
			} else {
				warnings = append(warnings, fmt.Sprintf("unknown keyboard.space_action %q, keeping %q", action, cfg.Keyboard.SpaceOutputMode))
			}
		}
	}

	if _, set := kb["symbol_shape"]; !set {
		if full, ok := kb["full_width_symbols"].(bool); ok {
			if full {
				cfg.Keyboard.SymbolShape = SymbolFull
			} else {
				cfg.Keyboard.SymbolShape = SymbolHalf
			}
			changes = append(changes, fmt.Sprintf("keyboard.full_width_symbols -> symbol_shape %q", cfg.Keyboard.SymbolShape))
		}
	}

	return changes, warnings
}

// backupConfig creates a backup of the config file.
func backupConfig(configPath string) (string, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return "", nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	backupPath := configPath + ".backup-" + timestamp

	if err := os.WriteFile(backupPath, data, 0600); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}

	return backupPath, nil
}

func migrationHistoryPath() string {
	return filepath.Join(DataDir(), "migration_history.json")
}

// GetMigrationHistory returns the recorded migrations, oldest first.
func GetMigrationHistory() ([]MigrationResult, error) {
	data, err := os.ReadFile(migrationHistoryPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read migration history: %w", err)
	}

	var history []MigrationResult
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("parse migration history: %w", err)
	}

	return history, nil
}

// SaveMigrationHistory appends a migration result to the history file.
func SaveMigrationHistory(result *MigrationResult) error {
	history, err := GetMigrationHistory()
	if err != nil {
		history = nil
	}
	history = append(history, *result)

	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return fmt.Errorf("encode migration history: %w", err)
	}

	historyPath := migrationHistoryPath()
	if err := os.MkdirAll(filepath.Dir(historyPath), 0700); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	if err := os.WriteFile(historyPath, data, 0600); err != nil {
		return fmt.Errorf("write migration history: %w", err)
	}

	return nil
}
