// Package sqlstore keeps the scan ledger in a local single-file SQLite
// database, the default for a standalone scanning station.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/lafamilia/og-scanner/pkg/logger"
	"github.com/lafamilia/og-scanner/pkg/storage"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

type scanRow struct {
	Barcode   string `db:"barcode"`
	ScannedAt string `db:"scanned_at"`
}

func (r scanRow) record() (storage.ScanRecord, error) {
	ts, err := storage.ParseTimestamp(r.ScannedAt)
	if err != nil {
		return storage.ScanRecord{}, err
	}
	return storage.ScanRecord{Barcode: r.Barcode, ScannedAt: ts}, nil
}

// Repository is a storage.Repository on top of sqlx.
type Repository struct {
	db *sqlx.DB
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository wraps an open handle. Call EnsureSchema before using it.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// DSN builds a SQLite URI for path. The path is percent-encoded so that
// '?', '#' and '%' in file names are not read as URI syntax.
func DSN(path string) string {
	return "file:" + (&url.URL{Path: path}).EscapedPath() + "?_pragma=busy_timeout(5000)"
}

// Open connects to the SQLite file at path, creating it if needed.
func Open(ctx context.Context, path string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, DriverName, DSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite serialises writers anyway; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	return db, nil
}

// EnsureSchema creates the scans table if it is missing.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS scans (
			barcode TEXT PRIMARY KEY,
			scanned_at TEXT NOT NULL
		)
	`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create scans table: %w", err)
	}
	return nil
}

func (r *Repository) InsertIfAbsent(ctx context.Context, record storage.ScanRecord) (storage.ScanRecord, bool, error) {
	const query = `
		INSERT INTO scans (barcode, scanned_at)
		VALUES (?, ?)
		ON CONFLICT (barcode) DO NOTHING
	`
	ts := storage.FormatTimestamp(record.ScannedAt)
	args := []any{record.Barcode, ts}

	res, err := r.db.ExecContext(ctx, query, args...)
	var rowsAffected int64
	if res != nil {
		rowsAffected, _ = res.RowsAffected()
	}

	logger.Log.Debugw("db query",
		"query", strings.Join(strings.Fields(query), " "),
		"args", args,
		"result", rowsAffected,
		"error", err,
	)

	if err != nil {
		return storage.ScanRecord{}, false, fmt.Errorf("insert scan: %w", err)
	}
	if rowsAffected == 1 {
		stored, err := scanRow{Barcode: record.Barcode, ScannedAt: ts}.record()
		return stored, true, err
	}

	existing, err := r.Get(ctx, record.Barcode)
	if err != nil {
		return storage.ScanRecord{}, false, err
	}
	return existing, false, nil
}

func (r *Repository) Get(ctx context.Context, barcode string) (storage.ScanRecord, error) {
	const query = `SELECT barcode, scanned_at FROM scans WHERE barcode = ?`

	var row scanRow
	err := r.db.GetContext(ctx, &row, query, barcode)

	logger.Log.Debugw("db query",
		"query", query,
		"args", []any{barcode},
		"result", row,
		"error", err,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return storage.ScanRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.ScanRecord{}, fmt.Errorf("select scan: %w", err)
	}
	return row.record()
}

func (r *Repository) List(ctx context.Context, limit int) ([]storage.ScanRecord, error) {
	query := `SELECT barcode, scanned_at FROM scans ORDER BY scanned_at DESC, barcode`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []scanRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}

	records := make([]storage.ScanRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}
