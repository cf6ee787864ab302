package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Options configures how Open reaches the database.
type Options struct {
	Driver      string
	DSN         string
	AutoMigrate bool
	Retry       RetryPolicy
}

// RetryPolicy controls reconnection at startup. A Multiplier of 1 gives a
// flat delay; MaxAttempts of 0 retries until the context is cancelled.
type RetryPolicy struct {
	Delay       time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	MaxAttempts int
}

// DefaultRetryPolicy retries every five seconds, forever.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Delay:      5 * time.Second,
		MaxDelay:   5 * time.Second,
		Multiplier: 1,
	}
}

// BackOff builds the delay sequence for the policy.
func (p RetryPolicy) BackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.Delay
	if bo.InitialInterval <= 0 {
		bo.InitialInterval = 5 * time.Second
	}
	bo.Multiplier = p.Multiplier
	if bo.Multiplier < 1 {
		bo.Multiplier = 1
	}
	bo.MaxInterval = p.MaxDelay
	if bo.MaxInterval < bo.InitialInterval {
		bo.MaxInterval = bo.InitialInterval
	}
	bo.RandomizationFactor = 0
	bo.Reset()
	return bo
}

// Open connects to the configured database, retrying per opts.Retry until a
// ping succeeds, then optionally migrates and inspects the schema.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dialect, err := DialectFor(opts.Driver)
	if err != nil {
		return nil, err
	}

	bo := opts.Retry.BackOff()
	var db *sql.DB
	for attempt := 1; ; attempt++ {
		db, err = connect(ctx, dialect, opts.DSN)
		if err == nil {
			break
		}
		if opts.Retry.MaxAttempts > 0 && attempt >= opts.Retry.MaxAttempts {
			return nil, fmt.Errorf("connect after %d attempts: %w: %w", attempt, ErrStoreUnavailable, err)
		}

		delay := bo.NextBackOff()
		logger.Warn("database unavailable, retrying", "driver", dialect.Name, "attempt", attempt, "retry_in", delay, "error", err)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect: %w: %w", ErrStoreUnavailable, ctx.Err())
		case <-time.After(delay):
		}
	}
	store, err := NewSQLStore(ctx, db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("connected to database", "driver", store.Dialect().Name)

	if opts.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		if version, err := store.SchemaVersion(ctx); err != nil {
			logger.Warn("read schema version", "error", err)
		} else {
			logger.Debug("schema up to date", "version", version)
		}
	}

	if !store.HasColumn("domain_tags") {
		logger.Warn("articles table has no domain_tags column; the critical feed will be empty and other tag feeds will fail until migrated")
	}
	return store, nil
}

func connect(ctx context.Context, dialect Dialect, dsn string) (*sql.DB, error) {
	db, err := sql.Open(dialect.DriverName, dialect.dsn(dsn))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Each connection to ":memory:" is its own database.
	if dialect.Name == SQLite.Name && isMemoryDSN(dsn) {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func isMemoryDSN(dsn string) bool {
	return strings.HasPrefix(dsn, ":memory:") ||
		strings.HasPrefix(dsn, "file::memory:") ||
		strings.Contains(dsn, "mode=memory")
}
