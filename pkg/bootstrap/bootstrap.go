// Package bootstrap opens the configured scan store and assembles a ledger
// with its observers. Every command goes through here so they all share one
// notion of which backend and which side effects are active.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/lafamilia/og-scanner/pkg/config"
	"github.com/lafamilia/og-scanner/pkg/ledger"
	"github.com/lafamilia/og-scanner/pkg/logger"
	"github.com/lafamilia/og-scanner/pkg/metrics"
	"github.com/lafamilia/og-scanner/pkg/notify"
	"github.com/lafamilia/og-scanner/pkg/storage"
	pgstore "github.com/lafamilia/og-scanner/pkg/storage/postgres"
	"github.com/lafamilia/og-scanner/pkg/storage/redisstore"
	"github.com/lafamilia/og-scanner/pkg/storage/sqlstore"
)

// Open connects to the backend named by cfg.Kind and makes sure it is ready
// to store scans. The caller closes the returned repository.
func Open(ctx context.Context, cfg config.StorageConfig) (storage.Repository, error) {
	switch cfg.Kind {
	case config.StoreSQLite, "":
		db, err := sqlstore.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := sqlstore.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return sqlstore.NewRepository(db), nil

	case config.StorePostgres:
		pool, err := pgstore.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pgstore.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return pgstore.NewRepository(pool), nil

	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
		}
		return redisstore.NewRepository(client, cfg.RedisPrefix), nil

	default:
		return nil, fmt.Errorf("unknown scan store %q", cfg.Kind)
	}
}

// Options selects the observers attached by Build.
type Options struct {
	// Console receives the scan messages and, for duplicates, the sound
	// alert. Nil disables both.
	Console io.Writer
	// Registry, if set, gets the scans_total counter.
	Registry prometheus.Registerer
}

// App is an opened store plus the ledger recording into it.
type App struct {
	Repo   storage.Repository
	Ledger *ledger.Ledger

	closers []io.Closer
}

// Build opens the store from cfg and attaches the configured observers.
// Observers run in this order: console, sound alert, metrics, Kafka.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	repo, err := Open(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	app := &App{Repo: repo}

	var observers []ledger.Observer
	if opts.Console != nil {
		observers = append(observers,
			notify.NewConsole(opts.Console),
			notify.NewSoundAlert(cfg.Alert.SoundPath, cfg.Alert.Player, opts.Console),
		)
	}
	if opts.Registry != nil {
		counter, err := metrics.NewScanCounter(opts.Registry)
		if err != nil {
			_ = repo.Close()
			return nil, fmt.Errorf("register scan metrics: %w", err)
		}
		observers = append(observers, counter)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		pub := notify.NewKafkaPublisher(notify.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		observers = append(observers, pub)
		app.closers = append(app.closers, pub)
		logger.Log.Infow("kafka scan events enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	app.Ledger = ledger.New(repo, ledger.WithObserver(observers...))
	app.closers = append(app.closers, repo)

	logger.Log.Infow("scan store opened", "store", storeName(cfg.Storage.Kind))
	return app, nil
}

// Close releases the observers and then the store.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func storeName(kind string) string {
	if kind == "" {
		return config.StoreSQLite
	}
	return kind
}
