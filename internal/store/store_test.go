package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cantokey/internal/config"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenAndClose(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}

func TestOpenCreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	s, err := Open(dbPath)
	require.NoError(t, err)
	defer s.Close()

	info, err := os.Stat(dbPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestOpenConfig(t *testing.T) {
	s, err := OpenConfig(config.StorageConfig{
		Path:          filepath.Join(t.TempDir(), "user.db"),
		BusyTimeoutMs: 250,
	})
	require.NoError(t, err)
	defer s.Close()
	assert.NoError(t, s.Verify())
}

func TestCloseNilDB(t *testing.T) {
	s := &Store{db: nil}
	assert.NoError(t, s.Close())
}

func TestReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.LearnWord("hello"))
	require.NoError(t, s.Close())

	s, err = Open(dbPath)
	require.NoError(t, err)
	defer s.Close()

	words, err := s.WordsWithPrefix("he", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, words)
}

func TestLearnWordFrequency(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.LearnWord("hello"))
	require.NoError(t, s.LearnWord("help"))
	require.NoError(t, s.LearnWord("help"))
	require.NoError(t, s.LearnWord("Help"))
	require.NoError(t, s.LearnWord("  "))

	words, err := s.UserWords(10)
	require.NoError(t, err)
	require.Len(t, words, 2)
	assert.Equal(t, "help", words[0].Word)
	assert.Equal(t, 3, words[0].Frequency)
	assert.Equal(t, "hello", words[1].Word)
	assert.Equal(t, 1, words[1].Frequency)
	assert.False(t, words[0].LastUsed.IsZero())
}

func TestWordsWithPrefix(t *testing.T) {
	s := openTestStore(t)
	for _, w := range []string{"hello", "help", "help", "world", "he_llo", "he%"} {
		require.NoError(t, s.LearnWord(w))
	}

	tests := []struct {
		name   string
		prefix string
		limit  int
		want   []string
	}{
		{"frequency order", "hel", 10, []string{"help", "hello"}},
		{"limit", "hel", 1, []string{"help"}},
		{"case insensitive", "WOR", 10, []string{"world"}},
		{"underscore literal", "he_", 10, []string{"he_llo"}},
		{"percent literal", "he%", 10, []string{"he%"}},
		{"no match", "xyz", 10, nil},
		{"zero limit", "h", 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			words, err := s.WordsWithPrefix(tt.prefix, tt.limit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, words)
		})
	}
}

func TestForgetWord(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.LearnWord("hello"))

	require.NoError(t, s.ForgetWord("hello"))
	assert.ErrorIs(t, s.ForgetWord("hello"), ErrNotFound)

	words, err := s.WordsWithPrefix("h", 5)
	require.NoError(t, err)
	assert.Empty(t, words)
}

func TestSessionState(t *testing.T) {
	s := openTestStore(t)

	_, err := s.LoadSession()
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SaveInputMode("english"))
	st, err := s.LoadSession()
	require.NoError(t, err)
	assert.Equal(t, "english", st.LastInputMode)

	require.NoError(t, s.SaveInputMode("mixed"))
	st, err = s.LoadSession()
	require.NoError(t, err)
	assert.Equal(t, "mixed", st.LastInputMode)
	assert.False(t, st.UpdatedAt.IsZero())
}

func TestMigrationStatus(t *testing.T) {
	s := openTestStore(t)

	status, err := GetMigrationStatus(s.db)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), status.CurrentVersion)
	assert.Equal(t, len(migrations), status.LatestVersion)
	assert.Len(t, status.Applied, len(migrations))
	assert.Empty(t, status.Pending)
	assert.NoError(t, ValidateSchema(s.db))
}

func TestRollbackMigration(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, RollbackMigration(s.db))
	assert.Error(t, ValidateSchema(s.db))

	status, err := GetMigrationStatus(s.db)
	require.NoError(t, err)
	assert.Equal(t, 1, status.CurrentVersion)
	require.Len(t, status.Pending, 1)
	assert.Equal(t, 2, status.Pending[0].Version)

	require.NoError(t, MigrateDB(s.db))
	assert.NoError(t, s.Verify())
}

func TestMigrateDBIdempotent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, MigrateDB(s.db))
	require.NoError(t, MigrateDB(s.db))

	status, err := GetMigrationStatus(s.db)
	require.NoError(t, err)
	assert.Len(t, status.Applied, len(migrations))
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `a\%b\_c\\d`, escapeLike(`a%b_c\d`))
}
