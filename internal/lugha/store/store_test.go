package store_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bdobrica/Lugha/internal/lugha/memory"
	"github.com/bdobrica/Lugha/internal/lugha/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "lugha-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp db file: %v", err)
	}
	f.Close()

	s, err := store.New(f.Name())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNew_AppliesMigrations(t *testing.T) {
	s := newTestStore(t)
	v, err := s.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != 3 {
		t.Errorf("schema version: got %d, want 3", v)
	}
}

func TestNew_ReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	s, err := store.New(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := s.AppendTurn(context.Background(), "u", memory.NewTurn(memory.SpeakerUser, "hi", "eng", "text")); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	s.Close()

	s, err = store.New(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer s.Close()
	turns, err := s.RecentTurns(context.Background(), "u", 5)
	if err != nil || len(turns) != 1 {
		t.Fatalf("expected persisted turn after reopen, got %d (err=%v)", len(turns), err)
	}
}

func TestTurns_RecentOldestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		speaker := memory.SpeakerUser
		if i%2 == 1 {
			speaker = memory.SpeakerBot
		}
		if err := s.AppendTurn(ctx, "256700000001", memory.NewTurn(speaker, fmt.Sprintf("turn %d", i), "lug", "text")); err != nil {
			t.Fatalf("AppendTurn %d: %v", i, err)
		}
	}
	// Another user's turns must not leak in.
	_ = s.AppendTurn(ctx, "other", memory.NewTurn(memory.SpeakerUser, "foreign", "", "text"))

	turns, err := s.RecentTurns(ctx, "256700000001", memory.DefaultHistory)
	if err != nil {
		t.Fatalf("RecentTurns: %v", err)
	}
	if len(turns) != 5 {
		t.Fatalf("expected 5 turns, got %d", len(turns))
	}
	for i, want := range []string{"turn 3", "turn 4", "turn 5", "turn 6", "turn 7"} {
		if turns[i].Content != want {
			t.Errorf("turn[%d]: got %q, want %q", i, turns[i].Content, want)
		}
	}
	if turns[0].Speaker != memory.SpeakerBot || turns[0].DetectedLanguage != "lug" {
		t.Errorf("unexpected fields on first turn: %+v", turns[0])
	}
	if turns[0].Timestamp.IsZero() {
		t.Error("timestamp not round-tripped")
	}
}

func TestTurns_UnknownUserEmpty(t *testing.T) {
	s := newTestStore(t)
	turns, err := s.RecentTurns(context.Background(), "ghost", 5)
	if err != nil {
		t.Fatalf("RecentTurns: %v", err)
	}
	if turns == nil || len(turns) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", turns)
	}
}

func TestTurns_DuplicateIDRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	turn := memory.NewTurn(memory.SpeakerUser, "once", "", "text")
	if err := s.AppendTurn(ctx, "u", turn); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if err := s.AppendTurn(ctx, "u", turn); err == nil {
		t.Fatal("expected error re-inserting an existing turn ID")
	}
}

func TestPruneTurns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	old := memory.NewTurn(memory.SpeakerUser, "old", "", "text")
	old.Timestamp = time.Now().Add(-48 * time.Hour)
	_ = s.AppendTurn(ctx, "u", old)
	_ = s.AppendTurn(ctx, "u", memory.NewTurn(memory.SpeakerUser, "new", "", "text"))

	n, err := s.PruneTurns(ctx, time.Now().Add(-24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("PruneTurns: n=%d err=%v", n, err)
	}
	turns, _ := s.RecentTurns(ctx, "u", 5)
	if len(turns) != 1 || turns[0].Content != "new" {
		t.Errorf("unexpected turns after prune: %+v", turns)
	}
}

func TestPreferences(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Preference(ctx, "u"); !errors.Is(err, memory.ErrNoPreference) {
		t.Fatalf("expected ErrNoPreference, got %v", err)
	}

	p, created, err := s.EnsurePreference(ctx, "u", "eng")
	if err != nil {
		t.Fatalf("EnsurePreference: %v", err)
	}
	if !created || p.Language != "eng" {
		t.Errorf("first EnsurePreference: created=%v lang=%q", created, p.Language)
	}

	p, created, err = s.EnsurePreference(ctx, "u", "nyn")
	if err != nil {
		t.Fatalf("EnsurePreference: %v", err)
	}
	if created || p.Language != "eng" {
		t.Errorf("second EnsurePreference: created=%v lang=%q", created, p.Language)
	}

	if err := s.SetPreference(ctx, memory.Preference{UserID: "u", Language: "lug"}); err != nil {
		t.Fatalf("SetPreference: %v", err)
	}
	if err := s.SetPreference(ctx, memory.Preference{UserID: "u", Language: "teo"}); err != nil {
		t.Fatalf("SetPreference: %v", err)
	}
	got, err := s.Preference(ctx, "u")
	if err != nil {
		t.Fatalf("Preference: %v", err)
	}
	if got.Language != "teo" {
		t.Errorf("last write should win: got %q", got.Language)
	}
}

func TestMarkEvent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	fresh, err := s.MarkEvent(ctx, "wamid.1")
	if err != nil || !fresh {
		t.Fatalf("first MarkEvent: fresh=%v err=%v", fresh, err)
	}
	fresh, err = s.MarkEvent(ctx, "wamid.1")
	if err != nil || fresh {
		t.Fatalf("redelivery must not be fresh: fresh=%v err=%v", fresh, err)
	}

	n, err := s.PruneEvents(ctx, time.Now().Add(time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("PruneEvents: n=%d err=%v", n, err)
	}
	fresh, _ = s.MarkEvent(ctx, "wamid.1")
	if !fresh {
		t.Error("event should be fresh again after prune")
	}
}

func TestForgetEvent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.MarkEvent(ctx, "wamid.2"); err != nil {
		t.Fatalf("MarkEvent: %v", err)
	}
	if err := s.ForgetEvent(ctx, "wamid.2"); err != nil {
		t.Fatalf("ForgetEvent: %v", err)
	}
	fresh, err := s.MarkEvent(ctx, "wamid.2")
	if err != nil || !fresh {
		t.Fatalf("forgotten event should be fresh: fresh=%v err=%v", fresh, err)
	}
	if err := s.ForgetEvent(ctx, "never-seen"); err != nil {
		t.Errorf("forgetting an unknown event: %v", err)
	}
}
