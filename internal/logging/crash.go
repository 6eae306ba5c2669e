package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"cantokey/internal/config"
)

// CrashReport is written for every panic recovered at a host boundary.
// It never carries document text.
type CrashReport struct {
	Timestamp    time.Time         `json:"timestamp"`
	Version      string            `json:"version,omitempty"`
	GOOS         string            `json:"goos"`
	GOARCH       string            `json:"goarch"`
	NumGoroutine int               `json:"num_goroutine"`
	PanicValue   string            `json:"panic_value"`
	StackTrace   string            `json:"stack_trace"`
	Component    string            `json:"component,omitempty"`
	Context      map[string]string `json:"context,omitempty"`
}

// CrashHandler recovers panics so a faulty keystroke cannot take the
// input method process down with it.
type CrashHandler struct {
	mu        sync.Mutex
	crashDir  string
	version   string
	component string
	logger    *Logger
}

// CrashHandlerConfig configures the crash handler.
type CrashHandlerConfig struct {
	CrashDir  string
	Version   string
	Component string
	Logger    *Logger
}

// DefaultCrashDir returns the platform-specific default crash directory.
func DefaultCrashDir() string {
	return filepath.Join(config.PlatformLogDir(), "crashes")
}

// NewCrashHandler creates a new CrashHandler.
func NewCrashHandler(cfg *CrashHandlerConfig) *CrashHandler {
	if cfg == nil {
		cfg = &CrashHandlerConfig{}
	}
	if cfg.CrashDir == "" {
		cfg.CrashDir = DefaultCrashDir()
	}
	if cfg.Logger == nil {
		cfg.Logger = Default()
	}

	os.MkdirAll(cfg.CrashDir, 0750)

	return &CrashHandler{
		crashDir:  cfg.CrashDir,
		version:   cfg.Version,
		component: cfg.Component,
		logger:    cfg.Logger,
	}
}

// Recover runs fn and converts a panic into a crash report.
// It reports whether fn panicked.
func (h *CrashHandler) Recover(op string, fn func()) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			h.HandlePanic(r, map[string]string{"op": op})
		}
	}()
	fn()
	return false
}

// HandlePanic records a recovered panic value.
func (h *CrashHandler) HandlePanic(panicValue any, contextInfo map[string]string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	report := CrashReport{
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		GOOS:         runtime.GOOS,
		GOARCH:       runtime.GOARCH,
		NumGoroutine: runtime.NumGoroutine(),
		PanicValue:   fmt.Sprintf("%v", panicValue),
		StackTrace:   string(debug.Stack()),
		Component:    h.component,
		Context:      contextInfo,
	}

	path, err := h.writeCrashDump(report)
	if err != nil {
		h.logger.Error("write crash report", "error", err)
	}
	h.logger.Error("recovered panic",
		"panic", report.PanicValue,
		"op", contextInfo["op"],
		"report", path,
	)
}

func (h *CrashHandler) writeCrashDump(report CrashReport) (string, error) {
	name := fmt.Sprintf("crash-%s-%s.json", report.Component, report.Timestamp.Format("20060102-150405.000000000"))
	path := filepath.Join(h.crashDir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash report: %w", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}
	return path, nil
}

// CrashReports returns the stored crash reports.
func (h *CrashHandler) CrashReports() ([]CrashReport, error) {
	files, err := filepath.Glob(filepath.Join(h.crashDir, "crash-*.json"))
	if err != nil {
		return nil, err
	}

	reports := make([]CrashReport, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		var report CrashReport
		if err := json.Unmarshal(data, &report); err != nil {
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// CleanupOldCrashReports removes crash reports older than maxAge.
func (h *CrashHandler) CleanupOldCrashReports(maxAge time.Duration) error {
	files, err := filepath.Glob(filepath.Join(h.crashDir, "crash-*.json"))
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-maxAge)
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(file)
		}
	}
	return nil
}
