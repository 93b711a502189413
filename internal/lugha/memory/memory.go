// Package memory defines the context store adapter used by the message
// pipeline: recent conversation turns and per-user language preferences.
// The SQLite implementation lives in package store; InMemory is used for
// tests and single-process deployments without a database.
package memory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultHistory is how many turns the pipeline reads back per event.
const DefaultHistory = 5

// ErrNoPreference is returned by Preference when the user has none yet.
var ErrNoPreference = errors.New("no language preference")

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerUser Speaker = "user"
	SpeakerBot  Speaker = "bot"
)

// Turn is one persisted message. Turns are insert-only.
type Turn struct {
	ID               string
	Speaker          Speaker
	Content          string
	Timestamp        time.Time
	DetectedLanguage string
	TurnType         string // classify.Kind of the originating event
}

// NewTurn stamps a turn with a fresh ID and the current time.
func NewTurn(speaker Speaker, content, detectedLang, turnType string) Turn {
	return Turn{
		ID:               uuid.New().String(),
		Speaker:          speaker,
		Content:          content,
		Timestamp:        time.Now().UTC(),
		DetectedLanguage: detectedLang,
		TurnType:         turnType,
	}
}

// Preference is a user's preferred reply language.
type Preference struct {
	UserID    string
	Language  string // canonical code
	UpdatedAt time.Time
}

// ContextStore reads and appends conversation turns.
type ContextStore interface {
	// RecentTurns returns up to limit turns for userID, oldest first.
	// Unknown users yield an empty slice and no error.
	RecentTurns(ctx context.Context, userID string, limit int) ([]Turn, error)
	// AppendTurn persists one turn.
	AppendTurn(ctx context.Context, userID string, t Turn) error
}

// PreferenceStore reads and writes language preferences.
type PreferenceStore interface {
	// Preference returns ErrNoPreference when the user has none.
	Preference(ctx context.Context, userID string) (*Preference, error)
	// SetPreference overwrites the stored preference (last write wins).
	SetPreference(ctx context.Context, p Preference) error
	// EnsurePreference returns the existing preference or creates one with
	// defaultLang. created reports whether this call created it.
	EnsurePreference(ctx context.Context, userID, defaultLang string) (p Preference, created bool, err error)
}

// Store is the full adapter surface.
type Store interface {
	ContextStore
	PreferenceStore
}
