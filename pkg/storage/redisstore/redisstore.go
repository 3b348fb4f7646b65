package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/lafamilia/og-scanner/pkg/logger"
	"github.com/lafamilia/og-scanner/pkg/storage"
)

// DefaultPrefix namespaces scan keys inside a shared Redis database.
const DefaultPrefix = "scan:"

// Repository stores one string key per barcode holding its first-seen
// timestamp. SET NX is the uniqueness guarantee.
type Repository struct {
	client *redis.Client
	prefix string
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a repository over client. An empty prefix falls
// back to DefaultPrefix.
func NewRepository(client *redis.Client, prefix string) *Repository {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Repository{client: client, prefix: prefix}
}

func (r *Repository) key(barcode string) string {
	return r.prefix + barcode
}

func (r *Repository) InsertIfAbsent(ctx context.Context, record storage.ScanRecord) (storage.ScanRecord, bool, error) {
	key := r.key(record.Barcode)
	ts := storage.FormatTimestamp(record.ScannedAt)

	ok, err := r.client.SetNX(ctx, key, ts, 0).Result()

	logger.Log.Debugw("redis setnx",
		"key", key,
		"value", ts,
		"result", ok,
		"error", err,
	)

	if err != nil {
		return storage.ScanRecord{}, false, fmt.Errorf("setnx %s: %w", key, err)
	}
	if ok {
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

func (r *Repository) Get(ctx context.Context, barcode string) (storage.ScanRecord, error) {
	key := r.key(barcode)

	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return storage.ScanRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.ScanRecord{}, fmt.Errorf("get %s: %w", key, err)
	}

	scannedAt, err := storage.ParseTimestamp(val)
	if err != nil {
		return storage.ScanRecord{}, err
	}
	return storage.ScanRecord{Barcode: barcode, ScannedAt: scannedAt}, nil
}

// List walks the prefix with SCAN, so it is meant for exports and history
// views rather than hot paths.
func (r *Repository) List(ctx context.Context, limit int) ([]storage.ScanRecord, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, escapeGlob(r.prefix)+"*", 500).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan keys: %w", err)
	}

	records := make([]storage.ScanRecord, 0, len(keys))
	for start := 0; start < len(keys); start += 500 {
		end := min(start+500, len(keys))
		batch := keys[start:end]

		vals, err := r.client.MGet(ctx, batch...).Result()
		if err != nil {
			return nil, fmt.Errorf("mget: %w", err)
		}
		for i, v := range vals {
			s, ok := v.(string)
			if !ok {
				// Key vanished between SCAN and MGET.
				continue
			}
			scannedAt, err := storage.ParseTimestamp(s)
			if err != nil {
				logger.Log.Warnw("skipping unreadable scan key", "key", batch[i], "error", err)
				continue
			}
			records = append(records, storage.ScanRecord{
				Barcode:   strings.TrimPrefix(batch[i], r.prefix),
				ScannedAt: scannedAt,
			})
		}
	}

	sort.Slice(records, func(i, j int) bool {
		if !records[i].ScannedAt.Equal(records[j].ScannedAt) {
			return records[i].ScannedAt.After(records[j].ScannedAt)
		}
		return records[i].Barcode < records[j].Barcode
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// escapeGlob quotes the SCAN MATCH metacharacters in s.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (r *Repository) Close() error {
	return r.client.Close()
}
