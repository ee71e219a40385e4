package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cochaviz/kernelsize/internal/history"
	"github.com/cochaviz/kernelsize/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "state", "ledger.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleTable(versions ...string) *history.Table {
	table := &history.Table{Unit: "KiB", Scale: 1024}
	for i, v := range versions {
		record := models.SizeRecord{Version: models.Version(v), Text: int64(1000 + i), Data: 200, BSS: 50, Dec: int64(1250 + i), Compressed: 400}
		table.Entries = append(table.Entries, history.NewEntry(record, table.Scale))
	}
	return table
}

func TestRecordAndGetRun(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	recorded, err := store.RecordRun(ctx, "x86", sampleTable("3.0", "3.1", "3.10"))
	if err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}
	if recorded.ID == "" {
		t.Fatal("RecordRun() returned empty run ID")
	}

	got, err := store.GetRun(ctx, recorded.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.Arch != "x86" || got.Unit != "KiB" || got.Scale != 1024 || got.Versions != 3 {
		t.Fatalf("GetRun() = %+v", got)
	}
	order := []models.Version{"3.0", "3.1", "3.10"}
	for i, r := range got.Records {
		if r.Version != order[i] {
			t.Fatalf("record %d version = %q, want %q", i, r.Version, order[i])
		}
	}
	if got.Records[2].Text != 1002 || got.Records[2].Compressed != 400 {
		t.Fatalf("record 3.10 = %+v", got.Records[2])
	}
}

func TestLatestAndListRuns(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.LatestRun(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LatestRun() on empty ledger error = %v, want ErrNotFound", err)
	}

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }
	first, err := store.RecordRun(ctx, "x86", sampleTable("3.0"))
	if err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}
	store.now = func() time.Time { return base.Add(time.Hour) }
	second, err := store.RecordRun(ctx, "arm", sampleTable("3.0", "3.1"))
	if err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}

	latest, err := store.LatestRun(ctx)
	if err != nil {
		t.Fatalf("LatestRun() error = %v", err)
	}
	if latest.ID != second.ID {
		t.Fatalf("LatestRun() = %s, want %s", latest.ID, second.ID)
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 || runs[0].ID != second.ID || runs[1].ID != first.ID {
		t.Fatalf("ListRuns() = %+v, want newest first", runs)
	}
	if runs[0].Versions != 2 || runs[0].Records != nil {
		t.Fatalf("ListRuns() summary = %+v", runs[0])
	}
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()

	_, err := newTestStore(t).GetRun(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetRun() error = %v, want ErrNotFound", err)
	}
}
