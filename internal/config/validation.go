package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ValidateConfig performs comprehensive validation of the configuration.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	if kbErrs := ValidateKeyboard(&c.Keyboard); len(kbErrs) > 0 {
		errs = append(errs, kbErrs...)
	}

	if engineErrs := validateEngine(&c.Engine); len(engineErrs) > 0 {
		errs = append(errs, engineErrs...)
	}

	if storageErrs := validateStorage(&c.Storage); len(storageErrs) > 0 {
		errs = append(errs, storageErrs...)
	}

	if loggingErrs := validateLogging(&c.Logging); len(loggingErrs) > 0 {
		errs = append(errs, loggingErrs...)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidateKeyboard checks the keyboard section on its own. It is also used
// before persisting settings changed at runtime.
func ValidateKeyboard(k *Keyboard) ValidationErrors {
	var errs ValidationErrors

	switch k.SpaceOutputMode {
	case SpaceInput, SpaceBestCandidate:
	default:
		errs = append(errs, ValidationError{
			Field:   "keyboard.space_output_mode",
			Message: fmt.Sprintf("invalid space output mode: %s (valid: input, best_candidate)", k.SpaceOutputMode),
		})
	}

	switch k.SymbolShape {
	case SymbolHalf, SymbolFull, SymbolSmart:
	default:
		errs = append(errs, ValidationError{
			Field:   "keyboard.symbol_shape",
			Message: fmt.Sprintf("invalid symbol shape: %s (valid: half, full, smart)", k.SymbolShape),
		})
	}

	switch k.CharForm {
	case CharFormTraditional, CharFormSimplified:
	default:
		errs = append(errs, ValidationError{
			Field:   "keyboard.char_form",
			Message: fmt.Sprintf("invalid char form: %s (valid: traditional, simplified)", k.CharForm),
		})
	}

	switch k.InputMode {
	case "mixed", "chinese", "english":
		if k.InputMode == "mixed" && !k.MixedMode {
			errs = append(errs, ValidationError{
				Field:   "keyboard.input_mode",
				Message: "mixed input mode requires mixed_mode = true",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "keyboard.input_mode",
			Message: fmt.Sprintf("invalid input mode: %s (valid: mixed, chinese, english)", k.InputMode),
		})
	}

	return errs
}

func validateEngine(e *EngineConfig) ValidationErrors {
	var errs ValidationErrors

	if e.LexiconPath != "" {
		if _, err := os.Stat(expandPath(e.LexiconPath)); err != nil {
			errs = append(errs, ValidationError{
				Field:   "engine.lexicon_path",
				Message: fmt.Sprintf("lexicon not readable: %v", err),
			})
		}
	}

	if e.PageSize < 1 || e.PageSize > 100 {
		errs = append(errs, ValidationError{
			Field:   "engine.page_size",
			Message: "page size must be between 1 and 100",
		})
	}

	return errs
}

func validateStorage(s *StorageConfig) ValidationErrors {
	var errs ValidationErrors

	if s.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "storage.path",
			Message: "database path is required",
		})
	}

	if s.BusyTimeoutMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "storage.busy_timeout_ms",
			Message: "busy timeout cannot be negative",
		})
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr", "file", "both":
		if (l.Output == "file" || l.Output == "both") && l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: "file path is required when output is 'file'",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}

	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}

	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "max age cannot be negative",
		})
	}

	return errs
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
