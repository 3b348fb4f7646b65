package sqlstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lafamilia/og-scanner/pkg/storage"
)

func openTemp(t *testing.T) *Repository {
	t.Helper()
	ctx := context.Background()

	db, err := Open(ctx, filepath.Join(t.TempDir(), "barcode_scans.db"))
	require.NoError(t, err)
	require.NoError(t, EnsureSchema(ctx, db))

	repo := NewRepository(db)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestRepository_InsertIfAbsent(t *testing.T) {
	repo := openTemp(t)
	ctx := context.Background()

	first := time.Date(2026, 10, 18, 10, 0, 0, 0, time.Local)

	stored, inserted, err := repo.InsertIfAbsent(ctx, storage.ScanRecord{Barcode: "A100", ScannedAt: first})
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, "A100", stored.Barcode)
	assert.True(t, stored.ScannedAt.Equal(first))

	stored, inserted, err = repo.InsertIfAbsent(ctx, storage.ScanRecord{Barcode: "A100", ScannedAt: first.Add(5 * time.Minute)})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.True(t, stored.ScannedAt.Equal(first), "stored %s", stored.ScannedAt)
}

func TestRepository_TruncatesToSeconds(t *testing.T) {
	repo := openTemp(t)
	ctx := context.Background()

	at := time.Date(2026, 10, 18, 10, 0, 0, 999_000_000, time.Local)
	stored, _, err := repo.InsertIfAbsent(ctx, storage.ScanRecord{Barcode: "X", ScannedAt: at})
	require.NoError(t, err)
	assert.True(t, stored.ScannedAt.Equal(at.Truncate(time.Second)))
}

func TestRepository_GetAndList(t *testing.T) {
	repo := openTemp(t)
	ctx := context.Background()

	t.Run("missing", func(t *testing.T) {
		_, err := repo.Get(ctx, "nope")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	base := time.Date(2026, 10, 18, 9, 0, 0, 0, time.Local)
	for i, code := range []string{"B1", "B2", "B3"} {
		_, _, err := repo.InsertIfAbsent(ctx, storage.ScanRecord{Barcode: code, ScannedAt: base.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
	}

	t.Run("found", func(t *testing.T) {
		rec, err := repo.Get(ctx, "B2")
		require.NoError(t, err)
		assert.True(t, rec.ScannedAt.Equal(base.Add(time.Minute)))
	})

	t.Run("list all newest first", func(t *testing.T) {
		recs, err := repo.List(ctx, 0)
		require.NoError(t, err)
		require.Len(t, recs, 3)
		assert.Equal(t, []string{"B3", "B2", "B1"}, []string{recs[0].Barcode, recs[1].Barcode, recs[2].Barcode})
	})

	t.Run("list limited", func(t *testing.T) {
		recs, err := repo.List(ctx, 1)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "B3", recs[0].Barcode)
	})
}

func TestRepository_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "barcode_scans.db")

	db, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, EnsureSchema(ctx, db))
	_, _, err = NewRepository(db).InsertIfAbsent(ctx, storage.ScanRecord{Barcode: "P1", ScannedAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(ctx, path)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, EnsureSchema(ctx, db))

	_, err = NewRepository(db).Get(ctx, "P1")
	assert.NoError(t, err)
}

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func TestRepository_InsertError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT INTO scans").
		WithArgs("A100", "2026-10-18 10:00:00").
		WillReturnError(errors.New("disk I/O error"))

	_, _, err := repo.InsertIfAbsent(context.Background(), storage.ScanRecord{
		Barcode:   "A100",
		ScannedAt: time.Date(2026, 10, 18, 10, 0, 0, 0, time.Local),
	})

	assert.ErrorContains(t, err, "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ConflictReadsExisting(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT INTO scans").
		WithArgs("A100", "2026-10-18 10:05:00").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT barcode, scanned_at FROM scans WHERE barcode = ?")).
		WithArgs("A100").
		WillReturnRows(sqlmock.NewRows([]string{"barcode", "scanned_at"}).AddRow("A100", "2026-10-18 10:00:00"))

	stored, inserted, err := repo.InsertIfAbsent(context.Background(), storage.ScanRecord{
		Barcode:   "A100",
		ScannedAt: time.Date(2026, 10, 18, 10, 5, 0, 0, time.Local),
	})

	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, "2026-10-18 10:00:00", storage.FormatTimestamp(stored.ScannedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetCorruptTimestamp(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM scans WHERE barcode").
		WithArgs("A100").
		WillReturnRows(sqlmock.NewRows([]string{"barcode", "scanned_at"}).AddRow("A100", "yesterday"))

	_, err := repo.Get(context.Background(), "A100")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrNotFound)
}

func TestDSN(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{path: "barcode_scans.db", want: "file:barcode_scans.db?_pragma=busy_timeout(5000)"},
		{path: "/var/lib/og/scans.db", want: "file:/var/lib/og/scans.db?_pragma=busy_timeout(5000)"},
		{path: "/data/line?2#a%b.db", want: "file:/data/line%3F2%23a%25b.db?_pragma=busy_timeout(5000)"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, DSN(tt.path))
		})
	}
}

func TestOpen_PathWithURICharacters(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "line?2#a.db")

	db, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, EnsureSchema(ctx, db))
	_, _, err = NewRepository(db).InsertIfAbsent(ctx, storage.ScanRecord{Barcode: "Q1", ScannedAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = os.Stat(path)
	assert.NoError(t, err, "database should be created under its literal name")
}
