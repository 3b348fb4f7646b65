package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lafamilia/og-scanner/pkg/logger"
	"github.com/lafamilia/og-scanner/pkg/storage"
)

type Repository struct {
	pool *pgxpool.Pool
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository wraps an existing pool. Call EnsureSchema before using it.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureSchema creates the scans table if it is missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	ddl := `
CREATE TABLE IF NOT EXISTS scans (
  barcode TEXT PRIMARY KEY,
  scanned_at TEXT NOT NULL
);`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create scans table: %w", err)
	}
	return nil
}

// InsertIfAbsent records the first sighting of a barcode. A conflicting row
// is left untouched and returned instead.
func (r *Repository) InsertIfAbsent(ctx context.Context, record storage.ScanRecord) (storage.ScanRecord, bool, error) {
	const query = `
INSERT INTO scans (barcode, scanned_at)
VALUES ($1, $2)
ON CONFLICT (barcode) DO NOTHING;
`
	ts := storage.FormatTimestamp(record.ScannedAt)
	tag, err := r.pool.Exec(ctx, query, record.Barcode, ts)

	logger.Log.Debugw("db query",
		"query", oneLine(query),
		"args", []any{record.Barcode, ts},
		"error", err,
	)

	if err != nil {
		return storage.ScanRecord{}, false, fmt.Errorf("insert scan: %w", err)
	}
	if tag.RowsAffected() == 1 {
		scannedAt, err := storage.ParseTimestamp(ts)
		if err != nil {
			return storage.ScanRecord{}, false, err
		}
		return storage.ScanRecord{Barcode: record.Barcode, ScannedAt: scannedAt}, true, nil
	}

	existing, err := r.Get(ctx, record.Barcode)
	if err != nil {
		return storage.ScanRecord{}, false, err
	}
	return existing, false, nil
}

// Get returns the stored record for barcode or storage.ErrNotFound.
func (r *Repository) Get(ctx context.Context, barcode string) (storage.ScanRecord, error) {
	const query = `SELECT scanned_at FROM scans WHERE barcode = $1`

	var ts string
	err := r.pool.QueryRow(ctx, query, barcode).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ScanRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.ScanRecord{}, fmt.Errorf("select scan: %w", err)
	}

	scannedAt, err := storage.ParseTimestamp(ts)
	if err != nil {
		return storage.ScanRecord{}, err
	}
	return storage.ScanRecord{Barcode: barcode, ScannedAt: scannedAt}, nil
}

// List returns stored records newest first.
func (r *Repository) List(ctx context.Context, limit int) ([]storage.ScanRecord, error) {
	query := `SELECT barcode, scanned_at FROM scans ORDER BY scanned_at DESC, barcode`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	records := make([]storage.ScanRecord, 0)
	for rows.Next() {
		var barcode, ts string
		if err := rows.Scan(&barcode, &ts); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		scannedAt, err := storage.ParseTimestamp(ts)
		if err != nil {
			return nil, err
		}
		records = append(records, storage.ScanRecord{Barcode: barcode, ScannedAt: scannedAt})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	return records, nil
}

// Close helps when wiring Repository to a lifecycle manager.
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// NewDB opens a pgx pool with tuned defaults.
func NewDB(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	// A handful of stations share one ledger; keep the pool small.
	cfg.MaxConns = 4
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

func oneLine(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
