package audit

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/wolf-bridge/internal/infrastructure/config"
	"github.com/nerrad567/wolf-bridge/internal/infrastructure/database"
	_ "github.com/nerrad567/wolf-bridge/migrations"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "journal.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestCreate_GeneratesIDAndTimestamp(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	entry := &WriteEntry{Name: "Mode", Value: "3", Source: "cli", ValueID: 2, BundleID: 1000}
	if err := repo.Create(ctx, entry); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if !strings.HasPrefix(entry.ID, "wr-") {
		t.Errorf("ID = %q, want wr- prefix", entry.ID)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
	if entry.Outcome != OutcomeOK {
		t.Errorf("Outcome = %q, want %q", entry.Outcome, OutcomeOK)
	}

	result, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 || len(result.Entries) != 1 {
		t.Fatalf("List() = %d entries (total %d), want 1", len(result.Entries), result.Total)
	}

	got := result.Entries[0]
	if got.ID != entry.ID || got.Name != "Mode" || got.Value != "3" || got.ValueID != 2 || got.BundleID != 1000 {
		t.Errorf("List() entry = %+v, want %+v", got, *entry)
	}
	if !got.CreatedAt.Equal(entry.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, entry.CreatedAt)
	}
}

func TestList_FilterAndOrder(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	entries := []*WriteEntry{
		{Name: "Mode", Value: "1", Source: "cli", CreatedAt: base},
		{Name: "Mode", Value: "2", Source: "mqtt", CreatedAt: base.Add(time.Minute)},
		{Name: "Nope", Value: "x", Source: "mqtt", Outcome: OutcomeSkipped, CreatedAt: base.Add(2 * time.Minute)},
		{Name: "Mode", Value: "3", Source: "mqtt", Outcome: OutcomeFailed, Error: "boom", CreatedAt: base.Add(3 * time.Minute)},
	}
	for _, e := range entries {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	tests := []struct {
		name       string
		filter     Filter
		wantTotal  int
		wantValues []string
	}{
		{name: "all newest first", filter: Filter{}, wantTotal: 4, wantValues: []string{"3", "x", "2", "1"}},
		{name: "by name", filter: Filter{Name: "Mode"}, wantTotal: 3, wantValues: []string{"3", "2", "1"}},
		{name: "by source", filter: Filter{Source: "mqtt"}, wantTotal: 3, wantValues: []string{"3", "x", "2"}},
		{name: "by outcome", filter: Filter{Outcome: OutcomeSkipped}, wantTotal: 1, wantValues: []string{"x"}},
		{name: "paged", filter: Filter{Limit: 2, Offset: 1}, wantTotal: 4, wantValues: []string{"x", "2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if result.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", result.Total, tt.wantTotal)
			}
			var values []string
			for _, e := range result.Entries {
				values = append(values, e.Value)
			}
			if strings.Join(values, ",") != strings.Join(tt.wantValues, ",") {
				t.Errorf("values = %v, want %v", values, tt.wantValues)
			}
		})
	}

	failed, err := repo.List(ctx, Filter{Outcome: OutcomeFailed})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if failed.Entries[0].Error != "boom" {
		t.Errorf("Error = %q, want boom", failed.Entries[0].Error)
	}
}

func TestList_LimitClamp(t *testing.T) {
	repo := newTestRepo(t)

	result, err := repo.List(context.Background(), Filter{Limit: 1000, Offset: -5})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Limit != maxLimit {
		t.Errorf("Limit = %d, want %d", result.Limit, maxLimit)
	}
	if result.Offset != 0 {
		t.Errorf("Offset = %d, want 0", result.Offset)
	}
	if result.Entries == nil {
		t.Error("Entries should be empty, not nil")
	}
}

func TestCreate_RejectsUnknownOutcome(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.Create(context.Background(), &WriteEntry{Name: "Mode", Value: "1", Source: "cli", Outcome: "maybe"})
	if err == nil {
		t.Error("Create() with unknown outcome should fail the CHECK constraint")
	}
}
