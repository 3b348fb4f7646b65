package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lafamilia/og-scanner/pkg/ledger"
	"github.com/lafamilia/og-scanner/pkg/logger"
	"github.com/lafamilia/og-scanner/pkg/storage"
)

//go:generate mockgen -source=handlers.go -destination=mock_handlers.go -package=httpapi

// Scanner is the ledger surface the HTTP API drives.
type Scanner interface {
	RecordScan(ctx context.Context, code string) (ledger.Result, error)
	Lookup(ctx context.Context, code string) (storage.ScanRecord, error)
}

// Lister lists stored scans, newest first.
type Lister interface {
	List(ctx context.Context, limit int) ([]storage.ScanRecord, error)
}

// ScanRequest is the body of POST /scans.
type ScanRequest struct {
	Barcode string `json:"barcode"`
}

// ScanResponse reports the outcome of a submission.
type ScanResponse struct {
	Outcome          string `json:"outcome"`
	Barcode          string `json:"barcode"`
	ScannedAt        string `json:"scanned_at"`
	FirstSeen        string `json:"first_seen"`
	FirstSeenDisplay string `json:"first_seen_display"`
}

// RecordResponse is one stored scan.
type RecordResponse struct {
	Barcode   string `json:"barcode"`
	ScannedAt string `json:"scanned_at"`
}

// maxScanBody caps POST /scans bodies; a barcode fits in a fraction of it.
const maxScanBody = 4 << 10

// ErrorResponse is returned for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func toRecordResponse(rec storage.ScanRecord) RecordResponse {
	return RecordResponse{Barcode: rec.Barcode, ScannedAt: storage.FormatTimestamp(rec.ScannedAt)}
}

// NewRecordScanHandler handles POST /scans.
func NewRecordScanHandler(svc Scanner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxScanBody)

		var req ScanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			return
		}

		res, err := svc.RecordScan(r.Context(), req.Barcode)
		if err != nil {
			logger.Log.Errorw("record scan failed", "request_id", RequestID(r.Context()), "error", err)
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}

		status := http.StatusOK
		switch res.Outcome {
		case ledger.OutcomeNone:
			w.WriteHeader(http.StatusNoContent)
			return
		case ledger.OutcomeNew:
			status = http.StatusCreated
		}

		writeJSON(w, status, ScanResponse{
			Outcome:          res.Outcome.String(),
			Barcode:          res.Barcode,
			ScannedAt:        storage.FormatTimestamp(res.ScannedAt),
			FirstSeen:        storage.FormatTimestamp(res.FirstSeen),
			FirstSeenDisplay: res.FirstSeenDisplay(),
		})
	}
}

// barcodeParam returns the decoded {barcode} segment. chi routes on
// URL.RawPath when it is set (e.g. "A%2F1"), leaving the param escaped.
func barcodeParam(r *http.Request) (string, error) {
	code := chi.URLParam(r, "barcode")
	if r.URL.RawPath == "" {
		return code, nil
	}
	return url.PathUnescape(code)
}

// NewLookupHandler handles GET /scans/{barcode}.
func NewLookupHandler(svc Scanner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, err := barcodeParam(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid barcode"})
			return
		}

		rec, err := svc.Lookup(r.Context(), code)
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "barcode not scanned"})
			return
		}
		if err != nil {
			logger.Log.Errorw("lookup failed", "request_id", RequestID(r.Context()), "error", err)
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}
		writeJSON(w, http.StatusOK, toRecordResponse(rec))
	}
}

// NewHistoryHandler handles GET /scans?limit=N.
func NewHistoryHandler(src Lister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
				return
			}
			limit = n
		}

		recs, err := src.List(r.Context(), limit)
		if err != nil {
			logger.Log.Errorw("list scans failed", "request_id", RequestID(r.Context()), "error", err)
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}

		out := make([]RecordResponse, 0, len(recs))
		for _, rec := range recs {
			out = append(out, toRecordResponse(rec))
		}
		writeJSON(w, http.StatusOK, out)
	}
}
