package store

import "time"

// UserWord is an English word learned from committed text.
type UserWord struct {
	Word      string
	Frequency int
	LastUsed  time.Time
}

// SessionState is what the keyboard restores when it starts again.
type SessionState struct {
	LastInputMode string
	UpdatedAt     time.Time
}
