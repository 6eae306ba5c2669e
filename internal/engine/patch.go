package engine

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"cantokey/internal/config"
)

// Option is a schema switch applied through common.custom.yaml.
type Option string

const (
	OptionDisableCompletion  Option = "disable_completion"
	OptionEnableCorrection   Option = "enable_correction"
	OptionDisableSentence    Option = "disable_sentence"
	OptionDisableLearning    Option = "disable_learning"
	OptionSeparateCandidates Option = "separate_candidates"
	OptionShowFullCode       Option = "show_full_code"
)

const (
	commonPatchFile   = "common.custom.yaml"
	stalePatchFile    = "jyut6ping3.custom.yaml"
	quickStartFlag    = "quick_start.flag"
	patchEntryPrefix  = "common:/"
	patchFileMode     = 0644
	userDataDirectory = 0755
)

// SchemaPatch is the document written to common.custom.yaml.
type SchemaPatch struct {
	Patch struct {
		Entries []string `yaml:"__patch"`
	} `yaml:"patch"`
}

// PatchOptions returns the options implied by the engine settings.
func PatchOptions(cfg config.EngineConfig) []Option {
	opts := []Option{OptionSeparateCandidates, OptionShowFullCode}
	if !cfg.EnableCompletion {
		opts = append(opts, OptionDisableCompletion)
	}
	if cfg.EnableCorrector {
		opts = append(opts, OptionEnableCorrection)
	}
	if !cfg.EnableSentence {
		opts = append(opts, OptionDisableSentence)
	}
	if !cfg.EnableLearning {
		opts = append(opts, OptionDisableLearning)
	}
	return opts
}

// GenerateSchemaPatch rewrites common.custom.yaml in cfg.UserDataDir from
// the settings and removes the patch file older versions wrote.
func GenerateSchemaPatch(cfg config.EngineConfig) error {
	dir := cfg.UserDataDir
	if dir == "" {
		return fmt.Errorf("generate schema patch: no user data directory")
	}
	if err := os.MkdirAll(dir, userDataDirectory); err != nil {
		return fmt.Errorf("create user data directory: %w", err)
	}
	if err := os.Remove(filepath.Join(dir, stalePatchFile)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale patch: %w", err)
	}

	var doc SchemaPatch
	for _, opt := range PatchOptions(cfg) {
		doc.Patch.Entries = append(doc.Patch.Entries, patchEntryPrefix+string(opt))
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("encode schema patch: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode schema patch: %w", err)
	}

	path := filepath.Join(dir, commonPatchFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), patchFileMode); err != nil {
		return fmt.Errorf("write schema patch: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write schema patch: %w", err)
	}
	return nil
}

// ReadSchemaPatch loads the patch written by GenerateSchemaPatch.
func ReadSchemaPatch(dir string) (*SchemaPatch, error) {
	data, err := os.ReadFile(filepath.Join(dir, commonPatchFile))
	if err != nil {
		return nil, err
	}
	var doc SchemaPatch
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse schema patch: %w", err)
	}
	return &doc, nil
}

// RemoveQuickStartFlag forces a full deployment on the next start. It is
// called when the engine settings change.
func RemoveQuickStartFlag(dir string) error {
	err := os.Remove(filepath.Join(dir, quickStartFlag))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove quick start flag: %w", err)
	}
	return nil
}

// writeQuickStartFlag marks a completed deployment.
func writeQuickStartFlag(dir string) error {
	return os.WriteFile(filepath.Join(dir, quickStartFlag), nil, patchFileMode)
}

func hasQuickStartFlag(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, quickStartFlag))
	return err == nil
}
