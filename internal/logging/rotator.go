package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// FileRotator is an io.Writer over a log file that rotates by size and by day.
// Rotated files are optionally gzipped and pruned by count and age.
type FileRotator struct {
	config *Config
	mu     sync.Mutex
	file   *os.File
	size   int64
	opened time.Time
	seq    int
	wg     sync.WaitGroup
}

// NewFileRotator creates a new FileRotator.
func NewFileRotator(cfg *Config) (*FileRotator, error) {
	r := &FileRotator{config: cfg}

	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if err := r.openFile(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileRotator) openFile() error {
	file, err := os.OpenFile(r.config.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat log file: %w", err)
	}

	r.file = file
	r.size = info.Size()
	r.opened = time.Now()
	return nil
}

// Write implements io.Writer.
func (r *FileRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		if err := r.openFile(); err != nil {
			return 0, err
		}
	}

	if r.shouldRotate(int64(len(p)), time.Now()) {
		if err := r.rotate(); err != nil {
			return 0, fmt.Errorf("rotate log: %w", err)
		}
	}

	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *FileRotator) shouldRotate(writeSize int64, now time.Time) bool {
	if r.config.MaxSize > 0 && r.size > 0 && r.size+writeSize > r.config.MaxSize*1024*1024 {
		return true
	}
	y1, m1, d1 := r.opened.Date()
	y2, m2, d2 := now.Date()
	return y1 != y2 || m1 != m2 || d1 != d2
}

// nameParts splits the log path into directory, stem and extension.
func (r *FileRotator) nameParts() (dir, stem, ext string) {
	dir = filepath.Dir(r.config.FilePath)
	base := filepath.Base(r.config.FilePath)
	ext = filepath.Ext(base)
	return dir, strings.TrimSuffix(base, ext), ext
}

func (r *FileRotator) rotate() error {
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			return fmt.Errorf("close current log: %w", err)
		}
		r.file = nil
	}

	dir, stem, ext := r.nameParts()
	r.seq++
	rotatedPath := filepath.Join(dir, fmt.Sprintf("%s-%s-%d%s", stem, time.Now().Format("20060102-150405"), r.seq, ext))

	if err := os.Rename(r.config.FilePath, rotatedPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rename log file: %w", err)
	}

	if err := r.openFile(); err != nil {
		return err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if r.config.Compress {
			compressFile(rotatedPath)
		}
		r.prune()
	}()
	return nil
}

// compressFile gzips path and removes the original on success.
func compressFile(path string) {
	input, err := os.Open(path)
	if err != nil {
		return
	}
	defer input.Close()

	output, err := os.Create(path + ".gz")
	if err != nil {
		return
	}
	defer output.Close()

	gz := gzip.NewWriter(output)
	gz.Name = filepath.Base(path)
	gz.ModTime = time.Now()

	if _, err := io.Copy(gz, input); err != nil {
		gz.Close()
		os.Remove(path + ".gz")
		return
	}
	if err := gz.Close(); err != nil {
		os.Remove(path + ".gz")
		return
	}

	os.Remove(path)
}

type rotatedFile struct {
	path    string
	modTime time.Time
}

func (r *FileRotator) rotatedFiles() []rotatedFile {
	dir, stem, ext := r.nameParts()
	matches, err := filepath.Glob(filepath.Join(dir, stem+"-*"+ext+"*"))
	if err != nil {
		return nil
	}

	files := make([]rotatedFile, 0, len(matches))
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil {
			continue
		}
		files = append(files, rotatedFile{path: match, modTime: info.ModTime()})
	}

	slices.SortFunc(files, func(a, b rotatedFile) int {
		return a.modTime.Compare(b.modTime)
	})
	return files
}

// prune removes rotated files beyond MaxBackups or older than MaxAge days.
func (r *FileRotator) prune() {
	files := r.rotatedFiles()

	if r.config.MaxBackups > 0 && len(files) > r.config.MaxBackups {
		excess := len(files) - r.config.MaxBackups
		for _, f := range files[:excess] {
			os.Remove(f.path)
		}
		files = files[excess:]
	}

	if r.config.MaxAge > 0 {
		cutoff := time.Now().AddDate(0, 0, -r.config.MaxAge)
		for _, f := range files {
			if f.modTime.Before(cutoff) {
				os.Remove(f.path)
			}
		}
	}
}

// Close waits for pending compression and closes the current file.
func (r *FileRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.wg.Wait()
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}

// Sync flushes any buffered data to the file.
func (r *FileRotator) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		return r.file.Sync()
	}
	return nil
}

// LogFiles returns the current log file followed by its rotated siblings, oldest first.
func (r *FileRotator) LogFiles() []string {
	files := []string{r.config.FilePath}
	for _, f := range r.rotatedFiles() {
		files = append(files, f.path)
	}
	return files
}
