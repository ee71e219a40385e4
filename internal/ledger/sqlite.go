// Package ledger records every aggregation run and its size records in a
// SQLite database. The ledger is append-only and is never consulted to skip
// pipeline work.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/cochaviz/kernelsize/internal/history"
	"github.com/cochaviz/kernelsize/internal/models"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = errors.New("run not found")

// Run is one recorded aggregation.
type Run struct {
	ID        string              `json:"id"`
	Arch      string              `json:"arch"`
	Unit      string              `json:"unit"`
	Scale     float64             `json:"scale"`
	CreatedAt time.Time           `json:"createdAt"`
	Versions  int                 `json:"versions"`
	Records   []models.SizeRecord `json:"records,omitempty"`
}

// SQLiteStore persists runs in a SQLite file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens or creates the database at path and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id         TEXT PRIMARY KEY,
			arch       TEXT NOT NULL,
			unit       TEXT NOT NULL,
			scale      REAL NOT NULL,
			created_at DATETIME NOT NULL
		);
		CREATE TABLE IF NOT EXISTS records (
			run_id     TEXT NOT NULL,
			position   INTEGER NOT NULL,
			version    TEXT NOT NULL,
			text       INTEGER NOT NULL,
			data       INTEGER NOT NULL,
			bss        INTEGER NOT NULL,
			dec        INTEGER NOT NULL,
			compressed INTEGER NOT NULL,
			PRIMARY KEY (run_id, position),
			FOREIGN KEY (run_id) REFERENCES runs(id)
		);
		CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
	`)
	return err
}

// RecordRun stores the table under a new run ID.
func (s *SQLiteStore) RecordRun(ctx context.Context, arch string, table *history.Table) (*Run, error) {
	if table == nil {
		return nil, errors.New("history table is required")
	}

	run := &Run{
		ID:        uuid.NewString(),
		Arch:      arch,
		Unit:      table.Unit,
		Scale:     table.Scale,
		CreatedAt: s.now().UTC(),
		Versions:  len(table.Entries),
		Records:   table.Records(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO runs (id, arch, unit, scale, created_at) VALUES (?, ?, ?, ?, ?)",
		run.ID, run.Arch, run.Unit, run.Scale, run.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}

	for i, r := range run.Records {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO records (run_id, position, version, text, data, bss, dec, compressed) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			run.ID, i, r.Version.String(), r.Text, r.Data, r.BSS, r.Dec, r.Compressed,
		); err != nil {
			return nil, fmt.Errorf("recording %s: %w", r.Version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing run: %w", err)
	}
	return run, nil
}

// ListRuns returns run summaries, newest first. Records are not loaded.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.arch, r.unit, r.scale, r.created_at, COUNT(c.position)
		FROM runs r LEFT JOIN records c ON c.run_id = r.id
		GROUP BY r.id
		ORDER BY r.created_at DESC, r.rowid DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.Arch, &run.Unit, &run.Scale, &run.CreatedAt, &run.Versions); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns the run with its records in aggregation order.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	err := s.db.QueryRowContext(ctx,
		"SELECT id, arch, unit, scale, created_at FROM runs WHERE id = ?", id,
	).Scan(&run.ID, &run.Arch, &run.Unit, &run.Scale, &run.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting run: %w", err)
	}

	records, err := s.records(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	run.Records = records
	run.Versions = len(records)
	return &run, nil
}

// LatestRun returns the most recently recorded run.
func (s *SQLiteStore) LatestRun(ctx context.Context) (*Run, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM runs ORDER BY created_at DESC, rowid DESC LIMIT 1",
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting latest run: %w", err)
	}
	return s.GetRun(ctx, id)
}

func (s *SQLiteStore) records(ctx context.Context, runID string) ([]models.SizeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT version, text, data, bss, dec, compressed FROM records WHERE run_id = ? ORDER BY position", runID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var records []models.SizeRecord
	for rows.Next() {
		var r models.SizeRecord
		var version string
		if err := rows.Scan(&version, &r.Text, &r.Data, &r.BSS, &r.Dec, &r.Compressed); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		r.Version = models.Version(version)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
