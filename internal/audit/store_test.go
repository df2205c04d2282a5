package audit

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"groundbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "audit.db"), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	outcomes := []domain.RequestOutcome{
		{ID: "r1", Channel: "line", ConversationID: "U1", EventID: "m1",
			State: domain.StateReplied, LatencyMS: 120, CreatedAt: base},
		{ID: "r2", Channel: "line", ConversationID: "U2", EventID: "m2",
			State: domain.StateFailed, ErrorKind: "transient", LatencyMS: 3400, CreatedAt: base.Add(time.Second)},
		{ID: "r3", Channel: "telegram", ConversationID: "42", EventID: "7",
			State: domain.StateReplied, LatencyMS: 90, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, out := range outcomes {
		if err := store.RecordOutcome(ctx, out); err != nil {
			t.Fatal(err)
		}
	}

	recent, err := store.RecentOutcomes(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(recent))
	}
	// Newest first.
	if recent[0].ID != "r3" || recent[2].ID != "r1" {
		t.Errorf("order = %s, %s, %s", recent[0].ID, recent[1].ID, recent[2].ID)
	}

	failed := recent[1]
	if failed.State != domain.StateFailed {
		t.Errorf("state = %v", failed.State)
	}
	if failed.ErrorKind != "transient" {
		t.Errorf("error kind = %q", failed.ErrorKind)
	}
	if failed.LatencyMS != 3400 {
		t.Errorf("latency = %d", failed.LatencyMS)
	}
}

func TestRecentOutcomes_Limit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		out := domain.RequestOutcome{
			ID:        string(rune('a' + i)),
			Channel:   "line",
			State:     domain.StateReplied,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := store.RecordOutcome(ctx, out); err != nil {
			t.Fatal(err)
		}
	}

	recent, err := store.RecentOutcomes(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(recent))
	}
}

func TestRecentOutcomes_Empty(t *testing.T) {
	store := newTestStore(t)
	recent, err := store.RecentOutcomes(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 0 {
		t.Fatalf("expected no outcomes, got %d", len(recent))
	}
}

func TestNewStore_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "audit.db")
	store, err := NewStore(path, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}
