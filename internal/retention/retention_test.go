package retention

import (
	"context"
	"strings"
	"testing"
	"time"

	"sensor-hub/internal/store"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openRepo(t *testing.T) *store.Repo {
	t.Helper()
	// Use a unique in-memory DB per test to avoid cross-test contamination.
	dsn := "file:retention_" + strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()) + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	repo, err := store.New(db)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo
}

func TestSweepRemovesExpiredTelemetry(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	old := &store.TelemetrySample{Temperature: 1, Timestamp: now.AddDate(0, 0, -10)}
	fresh := &store.TelemetrySample{Temperature: 2, Timestamp: now.Add(-time.Hour)}
	for _, s := range []*store.TelemetrySample{old, fresh} {
		if err := repo.InsertSample(ctx, s); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	s := New(repo, 7)
	s.sweep()

	page, err := repo.SearchSamples(ctx, store.SampleQuery{Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(page.Data) != 1 || page.Data[0].Temperature != 2 {
		t.Fatalf("expected only the fresh sample to survive, got %+v", page.Data)
	}
}

func TestStartDisabledWithoutRetention(t *testing.T) {
	s := New(openRepo(t), 0)
	if err := s.Start("30 3 * * *"); err != nil {
		t.Fatalf("disabled sweeper must not error: %v", err)
	}
	s.Stop()
}
