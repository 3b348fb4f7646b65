package processing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lafamilia/og-scanner/pkg/storage"
)

// ScanMessage is a scan submitted by a remote station.
type ScanMessage struct {
	Barcode string `json:"barcode"`
	Station string `json:"station,omitempty"`
	// ScannedAt uses storage.TimestampLayout; empty means "on receipt".
	ScannedAt string `json:"scanned_at,omitempty"`
}

// ParseScanMessage unmarshals the JSON payload into a ScanMessage.
func ParseScanMessage(raw []byte) (ScanMessage, error) {
	var msg ScanMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ScanMessage{}, fmt.Errorf("unmarshal scan: %w", err)
	}
	return msg, nil
}

// SubmittedAt returns the station's scan time, or fallback when the
// message does not carry one.
func (m ScanMessage) SubmittedAt(fallback time.Time) (time.Time, error) {
	if m.ScannedAt == "" {
		return fallback, nil
	}
	return storage.ParseTimestamp(m.ScannedAt)
}
