// Package store provides SQLite-backed persistence for the keyboard:
// learned user words and the session state restored at startup.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"cantokey/internal/config"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

const defaultBusyTimeout = 5 * time.Second

// Store represents the SQLite user database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path and runs migrations.
func Open(path string) (*Store, error) {
	return open(path, defaultBusyTimeout)
}

// OpenConfig opens the database described by the storage section of the config.
func OpenConfig(cfg config.StorageConfig) (*Store, error) {
	timeout := defaultBusyTimeout
	if cfg.BusyTimeoutMs > 0 {
		timeout = time.Duration(cfg.BusyTimeoutMs) * time.Millisecond
	}
	return open(cfg.Path, timeout)
}

func open(path string, busyTimeout time.Duration) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d", path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	// Learned words reveal what the user types.
	if err := os.Chmod(path, 0600); err != nil && !os.IsNotExist(err) {
		db.Close()
		return nil, fmt.Errorf("set database permissions: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Verify runs SQLite's integrity check and confirms the schema is complete.
func (s *Store) Verify() error {
	var result string
	if err := s.db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check: %s", result)
	}
	return ValidateSchema(s.db)
}

// LearnWord records a use of word, creating it on first sight.
func (s *Store) LearnWord(word string) error {
	word = strings.TrimSpace(word)
	if word == "" {
		return nil
	}

	_, err := s.db.Exec(`
		INSERT INTO user_words (word, frequency, last_used) VALUES (?, 1, ?)
		ON CONFLICT(word) DO UPDATE SET frequency = frequency + 1, last_used = excluded.last_used`,
		word, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("learn word: %w", err)
	}
	return nil
}

// ForgetWord removes a learned word.
func (s *Store) ForgetWord(word string) error {
	result, err := s.db.Exec("DELETE FROM user_words WHERE word = ?", word)
	if err != nil {
		return fmt.Errorf("forget word: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("forget word: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// WordsWithPrefix returns up to limit learned words starting with prefix,
// most frequent first. Matching ignores ASCII case.
func (s *Store) WordsWithPrefix(prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.Query(`
		SELECT word FROM user_words
		WHERE word LIKE ? ESCAPE '\'
		ORDER BY frequency DESC, last_used DESC, word ASC
		LIMIT ?`,
		escapeLike(prefix)+"%", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query words: %w", err)
	}
	defer rows.Close()

	var words []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, fmt.Errorf("scan word: %w", err)
		}
		words = append(words, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate words: %w", err)
	}
	return words, nil
}

// UserWords lists learned words, most frequent first.
func (s *Store) UserWords(limit int) ([]UserWord, error) {
	rows, err := s.db.Query(`
		SELECT word, frequency, last_used FROM user_words
		ORDER BY frequency DESC, word ASC
		LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query user words: %w", err)
	}
	defer rows.Close()

	var words []UserWord
	for rows.Next() {
		var w UserWord
		var lastUsed int64
		if err := rows.Scan(&w.Word, &w.Frequency, &lastUsed); err != nil {
			return nil, fmt.Errorf("scan user word: %w", err)
		}
		w.LastUsed = time.Unix(0, lastUsed)
		words = append(words, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user words: %w", err)
	}
	return words, nil
}

// LoadSession returns the saved session state, or ErrNotFound on first run.
func (s *Store) LoadSession() (*SessionState, error) {
	var st SessionState
	var updatedAt int64
	err := s.db.QueryRow(`
		SELECT last_input_mode, updated_at
		FROM session_state WHERE id = 1`,
	).Scan(&st.LastInputMode, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	st.UpdatedAt = time.Unix(0, updatedAt)
	return &st, nil
}

// SaveInputMode persists the display mode chosen by the user.
func (s *Store) SaveInputMode(mode string) error {
	_, err := s.db.Exec(`
		INSERT INTO session_state (id, last_input_mode, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET last_input_mode = excluded.last_input_mode, updated_at = excluded.updated_at`,
		mode, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save input mode: %w", err)
	}
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
