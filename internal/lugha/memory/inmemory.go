package memory

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxTurns bounds the per-user turn buffer of InMemory.
const DefaultMaxTurns = 50

// InMemory is a Store backed by process memory. Each user keeps a sliding
// window of the most recent turns. It is safe for concurrent use.
type InMemory struct {
	mu       sync.Mutex
	maxTurns int
	turns    map[string][]Turn
	prefs    map[string]Preference
}

// NewInMemory creates an InMemory store keeping at most maxTurns turns per
// user. Non-positive values select DefaultMaxTurns.
func NewInMemory(maxTurns int) *InMemory {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &InMemory{
		maxTurns: maxTurns,
		turns:    make(map[string][]Turn),
		prefs:    make(map[string]Preference),
	}
}

// RecentTurns implements ContextStore.
func (m *InMemory) RecentTurns(ctx context.Context, userID string, limit int) ([]Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := m.turns[userID]
	if limit <= 0 || limit > len(buf) {
		limit = len(buf)
	}
	out := make([]Turn, limit)
	copy(out, buf[len(buf)-limit:])
	return out, nil
}

// AppendTurn implements ContextStore.
func (m *InMemory) AppendTurn(ctx context.Context, userID string, t Turn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := append(m.turns[userID], t)
	if len(buf) > m.maxTurns {
		buf = buf[len(buf)-m.maxTurns:]
	}
	m.turns[userID] = buf
	return nil
}

// Preference implements PreferenceStore.
func (m *InMemory) Preference(ctx context.Context, userID string) (*Preference, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.prefs[userID]
	if !ok {
		return nil, ErrNoPreference
	}
	return &p, nil
}

// SetPreference implements PreferenceStore.
func (m *InMemory) SetPreference(ctx context.Context, p Preference) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	m.prefs[p.UserID] = p
	m.mu.Unlock()
	return nil
}

// EnsurePreference implements PreferenceStore.
func (m *InMemory) EnsurePreference(ctx context.Context, userID, defaultLang string) (Preference, bool, error) {
	if err := ctx.Err(); err != nil {
		return Preference{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.prefs[userID]; ok {
		return p, false, nil
	}
	p := Preference{UserID: userID, Language: defaultLang, UpdatedAt: time.Now().UTC()}
	m.prefs[userID] = p
	return p, true, nil
}
