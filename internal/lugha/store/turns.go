package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/Lugha/internal/lugha/memory"
)

var _ memory.Store = (*Store)(nil)

// RecentTurns returns up to limit turns for userID, oldest first.
func (s *Store) RecentTurns(ctx context.Context, userID string, limit int) ([]memory.Turn, error) {
	if limit <= 0 {
		limit = memory.DefaultHistory
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, speaker, content, detected_language, turn_type, created_at
		FROM turns
		WHERE user_id = ?
		ORDER BY seq DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent turns: %w", err)
	}
	defer rows.Close()

	var turns []memory.Turn
	for rows.Next() {
		var (
			t       memory.Turn
			speaker string
			created string
		)
		if err := rows.Scan(&t.ID, &speaker, &t.Content, &t.DetectedLanguage, &t.TurnType, &created); err != nil {
			return nil, fmt.Errorf("store: scan turn: %w", err)
		}
		t.Speaker = memory.Speaker(speaker)
		t.Timestamp = parseTime(created)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent turns: %w", err)
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	if turns == nil {
		turns = []memory.Turn{}
	}
	return turns, nil
}

// AppendTurn inserts one turn. Missing IDs and timestamps are filled in.
func (s *Store) AppendTurn(ctx context.Context, userID string, t memory.Turn) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO turns (id, user_id, speaker, content, detected_language, turn_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.ID, userID, string(t.Speaker), t.Content, t.DetectedLanguage, t.TurnType, formatTime(t.Timestamp))
	if err != nil {
		return fmt.Errorf("store: append turn: %w", err)
	}
	return nil
}

// PruneTurns deletes turns created before cutoff and returns how many were
// removed.
func (s *Store) PruneTurns(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE created_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("store: prune turns: %w", err)
	}
	return res.RowsAffected()
}

// Preference returns memory.ErrNoPreference when userID has no row.
func (s *Store) Preference(ctx context.Context, userID string) (*memory.Preference, error) {
	var (
		p       = memory.Preference{UserID: userID}
		updated string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT language, updated_at FROM preferences WHERE user_id = ?
	`, userID).Scan(&p.Language, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, memory.ErrNoPreference
	}
	if err != nil {
		return nil, fmt.Errorf("store: preference: %w", err)
	}
	p.UpdatedAt = parseTime(updated)
	return &p, nil
}

// SetPreference upserts the user's preference.
func (s *Store) SetPreference(ctx context.Context, p memory.Preference) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (user_id, language, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			language = excluded.language,
			updated_at = excluded.updated_at
	`, p.UserID, p.Language, formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("store: set preference: %w", err)
	}
	return nil
}

// EnsurePreference creates a preference with defaultLang when none exists.
func (s *Store) EnsurePreference(ctx context.Context, userID, defaultLang string) (memory.Preference, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO preferences (user_id, language, updated_at)
		VALUES (?, ?, ?)
	`, userID, defaultLang, formatTime(time.Now()))
	if err != nil {
		return memory.Preference{}, false, fmt.Errorf("store: ensure preference: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return memory.Preference{}, false, fmt.Errorf("store: ensure preference: %w", err)
	}

	p, err := s.Preference(ctx, userID)
	if err != nil {
		return memory.Preference{}, false, err
	}
	return *p, n == 1, nil
}
