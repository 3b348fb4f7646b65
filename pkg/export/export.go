// Package export writes the scan ledger out as CSV and can ship the file to
// S3-compatible object storage.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/lafamilia/og-scanner/pkg/storage"
)

// Lister is the read side of the ledger needed for an export.
type Lister interface {
	List(ctx context.Context, limit int) ([]storage.ScanRecord, error)
}

// Uploader stores an export object under key.
type Uploader interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
}

// WriteCSV writes a header row and one barcode,scanned_at row per record.
func WriteCSV(w io.Writer, records []storage.ScanRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"barcode", "scanned_at"}); err != nil {
		return err
	}
	for _, rec := range records {
		if err := cw.Write([]string{rec.Barcode, storage.FormatTimestamp(rec.ScannedAt)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ObjectKey names an export taken at t.
func ObjectKey(t time.Time) string {
	return "scans-" + t.Local().Format("20060102-150405") + ".csv"
}

// Export writes every record from src to w and returns how many it wrote.
func Export(ctx context.Context, src Lister, w io.Writer) (int, error) {
	records, err := src.List(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("list scans: %w", err)
	}
	if err := WriteCSV(w, records); err != nil {
		return 0, fmt.Errorf("write csv: %w", err)
	}
	return len(records), nil
}

// ExportTo renders the ledger and uploads it under ObjectKey(at). It
// returns the uploaded location and the record count.
func ExportTo(ctx context.Context, src Lister, up Uploader, at time.Time) (string, int, error) {
	var buf bytes.Buffer
	n, err := Export(ctx, src, &buf)
	if err != nil {
		return "", 0, err
	}
	loc, err := up.Upload(ctx, ObjectKey(at), &buf, int64(buf.Len()), "text/csv")
	if err != nil {
		return "", 0, fmt.Errorf("upload export: %w", err)
	}
	return loc, n, nil
}
