package store

import (
	"context"
	"fmt"
	"time"
)

// MarkEvent records a platform message ID. fresh is false when the ID was
// already recorded, meaning the event is a redelivery and must be dropped.
func (s *Store) MarkEvent(ctx context.Context, eventID string) (fresh bool, err error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO processed_events (event_id, seen_at) VALUES (?, ?)
	`, eventID, formatTime(time.Now()))
	if err != nil {
		return false, fmt.Errorf("store: mark event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: mark event: %w", err)
	}
	return n == 1, nil
}

// ForgetEvent removes a recorded message ID so a redelivery of it is
// processed again.
func (s *Store) ForgetEvent(ctx context.Context, eventID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM processed_events WHERE event_id = ?`, eventID); err != nil {
		return fmt.Errorf("store: forget event: %w", err)
	}
	return nil
}

// PruneEvents forgets event IDs seen before cutoff.
func (s *Store) PruneEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM processed_events WHERE seen_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("store: prune events: %w", err)
	}
	return res.RowsAffected()
}
