package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TimestampLayout is the fixed on-disk format of ScanRecord.ScannedAt.
const TimestampLayout = "2006-01-02 15:04:05"

// ErrNotFound is returned by Get when no record exists for a barcode.
var ErrNotFound = errors.New("scan record not found")

// ScanRecord is the first sighting of a barcode. Records are written once
// and never updated.
type ScanRecord struct {
	Barcode   string
	ScannedAt time.Time
}

// Repository defines persistence operations for scans.
type Repository interface {
	// InsertIfAbsent stores record unless its barcode already exists. It
	// returns the record that is stored after the call and whether this
	// call created it.
	InsertIfAbsent(ctx context.Context, record ScanRecord) (ScanRecord, bool, error)
	Get(ctx context.Context, barcode string) (ScanRecord, error)
	// List returns records newest first. A limit <= 0 returns all of them.
	List(ctx context.Context, limit int) ([]ScanRecord, error)
	Close() error
}

// FormatTimestamp renders t in TimestampLayout using local wall-clock time.
func FormatTimestamp(t time.Time) string {
	return t.Local().Format(TimestampLayout)
}

// ParseTimestamp parses a stored timestamp as local time.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.ParseInLocation(TimestampLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse scanned_at %q: %w", s, err)
	}
	return t, nil
}
