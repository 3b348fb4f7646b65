// Package ledger decides whether a scanned barcode is new or a repeat and
// tells interested observers about the outcome.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lafamilia/og-scanner/pkg/logger"
	"github.com/lafamilia/og-scanner/pkg/storage"
)

//go:generate mockgen -source=ledger.go -destination=mock_ledger.go -package=ledger

// DisplayLayout renders first-seen times as 12-hour clock time.
const DisplayLayout = "03:04 PM"

// Store is the persistence the ledger depends on.
type Store interface {
	InsertIfAbsent(ctx context.Context, record storage.ScanRecord) (storage.ScanRecord, bool, error)
	Get(ctx context.Context, barcode string) (storage.ScanRecord, error)
}

// Outcome classifies a scan submission.
type Outcome int

const (
	// OutcomeNone means the submission was blank and ignored.
	OutcomeNone Outcome = iota
	OutcomeNew
	OutcomeDuplicate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNew:
		return "new"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return "none"
	}
}

// Result describes one recorded submission.
type Result struct {
	Outcome Outcome
	Barcode string
	// ScannedAt is the time of this submission.
	ScannedAt time.Time
	// FirstSeen is the stored time of the first submission. It equals
	// ScannedAt for OutcomeNew.
	FirstSeen time.Time
}

// FirstSeenDisplay formats FirstSeen with DisplayLayout.
func (r Result) FirstSeenDisplay() string {
	return r.FirstSeen.Local().Format(DisplayLayout)
}

// Observer is notified after every non-blank submission.
type Observer interface {
	ObserveScan(ctx context.Context, res Result)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, res Result)

func (f ObserverFunc) ObserveScan(ctx context.Context, res Result) { f(ctx, res) }

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithObserver registers observers, called in registration order.
func WithObserver(obs ...Observer) Option {
	return func(l *Ledger) { l.observers = append(l.observers, obs...) }
}

// Ledger records the first sighting of each barcode.
type Ledger struct {
	store     Store
	now       func() time.Time
	observers []Observer
}

// New builds a Ledger over store. The caller owns store and closes it.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RecordScan records code at the current time. Surrounding whitespace is
// trimmed; a blank code yields the zero Result and touches nothing.
func (l *Ledger) RecordScan(ctx context.Context, code string) (Result, error) {
	return l.RecordScanAt(ctx, code, l.now())
}

// RecordScanAt records code as submitted at the given time.
func (l *Ledger) RecordScanAt(ctx context.Context, code string, at time.Time) (Result, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Result{}, nil
	}
	at = at.Truncate(time.Second)

	stored, inserted, err := l.store.InsertIfAbsent(ctx, storage.ScanRecord{Barcode: code, ScannedAt: at})
	if err != nil {
		return Result{}, fmt.Errorf("record scan %q: %w", code, err)
	}

	res := Result{
		Outcome:   OutcomeDuplicate,
		Barcode:   code,
		ScannedAt: at,
		FirstSeen: stored.ScannedAt,
	}
	if inserted {
		res.Outcome = OutcomeNew
	}

	logger.Log.Infow("scan recorded",
		"barcode", code,
		"outcome", res.Outcome.String(),
		"first_seen", storage.FormatTimestamp(res.FirstSeen),
	)

	for _, obs := range l.observers {
		obs.ObserveScan(ctx, res)
	}
	return res, nil
}

// Lookup returns the stored record for code without recording anything.
func (l *Ledger) Lookup(ctx context.Context, code string) (storage.ScanRecord, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return storage.ScanRecord{}, storage.ErrNotFound
	}
	return l.store.Get(ctx, code)
}
