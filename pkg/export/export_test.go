package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lafamilia/og-scanner/pkg/config"
	"github.com/lafamilia/og-scanner/pkg/storage"
)

type MockLister struct {
	mock.Mock
}

func (m *MockLister) List(ctx context.Context, limit int) ([]storage.ScanRecord, error) {
	args := m.Called(ctx, limit)
	recs, _ := args.Get(0).([]storage.ScanRecord)
	return recs, args.Error(1)
}

type MockUploader struct {
	mock.Mock
	body []byte
}

func (m *MockUploader) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	m.body, _ = io.ReadAll(r)
	args := m.Called(ctx, key, size, contentType)
	return args.String(0), args.Error(1)
}

var records = []storage.ScanRecord{
	{Barcode: "B200", ScannedAt: time.Date(2026, 10, 18, 11, 0, 0, 0, time.Local)},
	{Barcode: "A,100", ScannedAt: time.Date(2026, 10, 18, 10, 0, 0, 0, time.Local)},
}

const wantCSV = "barcode,scanned_at\nB200,2026-10-18 11:00:00\n\"A,100\",2026-10-18 10:00:00\n"

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, records))
	assert.Equal(t, wantCSV, buf.String())
}

func TestObjectKey(t *testing.T) {
	at := time.Date(2026, 10, 18, 17, 30, 5, 0, time.Local)
	assert.Equal(t, "scans-20261018-173005.csv", ObjectKey(at))
}

func TestExport(t *testing.T) {
	src := new(MockLister)
	src.On("List", mock.Anything, 0).Return(records, nil)

	var buf bytes.Buffer
	n, err := Export(context.Background(), src, &buf)

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, wantCSV, buf.String())
	src.AssertExpectations(t)
}

func TestExport_ListError(t *testing.T) {
	src := new(MockLister)
	src.On("List", mock.Anything, 0).Return(nil, errors.New("db closed"))

	_, err := Export(context.Background(), src, io.Discard)
	assert.ErrorContains(t, err, "db closed")
}

func TestExportTo(t *testing.T) {
	at := time.Date(2026, 10, 18, 17, 30, 5, 0, time.Local)

	src := new(MockLister)
	src.On("List", mock.Anything, 0).Return(records, nil)
	up := new(MockUploader)
	up.On("Upload", mock.Anything, "scans-20261018-173005.csv", int64(len(wantCSV)), "text/csv").
		Return("scan-exports/scans-20261018-173005.csv", nil)

	loc, n, err := ExportTo(context.Background(), src, up, at)

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "scan-exports/scans-20261018-173005.csv", loc)
	assert.Equal(t, wantCSV, string(up.body))
	up.AssertExpectations(t)
}

func TestExportTo_UploadError(t *testing.T) {
	src := new(MockLister)
	src.On("List", mock.Anything, 0).Return(records, nil)
	up := new(MockUploader)
	up.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("access denied"))

	_, _, err := ExportTo(context.Background(), src, up, time.Now())
	assert.ErrorContains(t, err, "access denied")
}

func TestNewMinIOUploader_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.MinIOConfig
	}{
		{name: "missing endpoint", cfg: config.MinIOConfig{AccessKey: "a", SecretKey: "s", Bucket: "b"}},
		{name: "missing credentials", cfg: config.MinIOConfig{Endpoint: "localhost:9000", Bucket: "b"}},
		{name: "missing bucket", cfg: config.MinIOConfig{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMinIOUploader(context.Background(), tt.cfg)
			assert.Error(t, err)
		})
	}
}
