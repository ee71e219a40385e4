// Package publish uploads rendered charts and the history table to a blob
// bucket addressed by URL (file://, s3://, gs:// or mem://).
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // local directory driver
	_ "gocloud.dev/blob/gcsblob"  // GCS driver
	_ "gocloud.dev/blob/memblob"  // in-memory driver
	_ "gocloud.dev/blob/s3blob"   // S3 driver

	"github.com/cochaviz/kernelsize/internal/history"
	"github.com/cochaviz/kernelsize/internal/logging"
)

// HistoryKey is the object key of the serialized history table.
const HistoryKey = "history.json"

// Publisher writes run outputs to a bucket.
type Publisher struct {
	bucket *blob.Bucket
	url    string
	logger *slog.Logger
}

// Open opens the bucket at url.
func Open(ctx context.Context, url string, logger *slog.Logger) (*Publisher, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", url, err)
	}
	return &Publisher{bucket: bucket, url: url, logger: logging.Ensure(logger)}, nil
}

// NewPublisher wraps an already opened bucket.
func NewPublisher(bucket *blob.Bucket, logger *slog.Logger) *Publisher {
	return &Publisher{bucket: bucket, logger: logging.Ensure(logger)}
}

// Publish uploads every chart under its base name and the table as
// history.json. It returns the keys written.
func (p *Publisher) Publish(ctx context.Context, charts []string, table *history.Table) ([]string, error) {
	var keys []string
	for _, path := range charts {
		data, err := os.ReadFile(path)
		if err != nil {
			return keys, fmt.Errorf("read chart %s: %w", path, err)
		}
		key := filepath.Base(path)
		if err := p.write(ctx, key, data, "image/png"); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}

	if table != nil {
		data, err := json.MarshalIndent(table, "", "  ")
		if err != nil {
			return keys, fmt.Errorf("marshal history: %w", err)
		}
		if err := p.write(ctx, HistoryKey, data, "application/json"); err != nil {
			return keys, err
		}
		keys = append(keys, HistoryKey)
	}

	p.logger.Info("published run outputs", "bucket", p.url, "objects", len(keys))
	return keys, nil
}

func (p *Publisher) write(ctx context.Context, key string, data []byte, contentType string) error {
	w, err := p.bucket.NewWriter(ctx, key, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", key, err)
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", key, err)
	}
	return nil
}

// Close releases the bucket connection.
func (p *Publisher) Close() error {
	if p.bucket != nil {
		return p.bucket.Close()
	}
	return nil
}
