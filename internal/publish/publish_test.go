package publish

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"gocloud.dev/blob/memblob"

	"github.com/cochaviz/kernelsize/internal/history"
	"github.com/cochaviz/kernelsize/internal/models"
)

func TestPublishWritesChartsAndHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	p := NewPublisher(bucket, nil)
	t.Cleanup(func() { p.Close() })

	dir := t.TempDir()
	chart := filepath.Join(dir, "kernel-size-history_0.png")
	if err := os.WriteFile(chart, []byte("\x89PNG"), 0o644); err != nil {
		t.Fatalf("write chart: %v", err)
	}
	table := &history.Table{Unit: "KiB", Scale: 1024, Entries: []history.Entry{
		history.NewEntry(models.SizeRecord{Version: "3.0", Text: 1024, Data: 1024, BSS: 1024, Compressed: 2048}, 1024),
	}}

	keys, err := p.Publish(ctx, []string{chart}, table)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(keys) != 2 || keys[0] != "kernel-size-history_0.png" || keys[1] != HistoryKey {
		t.Fatalf("Publish() keys = %v", keys)
	}

	data, err := bucket.ReadAll(ctx, HistoryKey)
	if err != nil {
		t.Fatalf("ReadAll(%s) error = %v", HistoryKey, err)
	}
	var got history.Table
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(got.Entries) != 1 || got.Entries[0].ROMCompressed != 2 {
		t.Fatalf("published history = %+v", got)
	}
}

func TestOpenFileBucket(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p, err := Open(context.Background(), "file://"+dir, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer p.Close()

	if _, err := p.Publish(context.Background(), nil, &history.Table{Unit: "KiB", Scale: 1024}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, HistoryKey)); err != nil {
		t.Fatalf("history.json not written: %v", err)
	}
}

func TestPublishMissingChart(t *testing.T) {
	t.Parallel()

	p := NewPublisher(memblob.OpenBucket(nil), nil)
	defer p.Close()
	if _, err := p.Publish(context.Background(), []string{filepath.Join(t.TempDir(), "absent.png")}, nil); err == nil {
		t.Fatal("Publish() error = nil for missing chart")
	}
}
