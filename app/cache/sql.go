package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

type sqlQueries struct {
	get    string
	set    string
	delete string
	purge  string
}

var dialectQueries = map[Dialect]sqlQueries{
	DialectSQLite: {
		get: `SELECT value, expires_at FROM cache_entries WHERE key = ?`,
		set: `INSERT INTO cache_entries (key, value, expires_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		delete: `DELETE FROM cache_entries WHERE key = ?`,
		purge:  `DELETE FROM cache_entries WHERE expires_at <= ?`,
	},
	DialectPostgres: {
		get: `SELECT value, expires_at FROM cache_entries WHERE key = $1`,
		set: `INSERT INTO cache_entries (key, value, expires_at) VALUES ($1, $2, $3)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		delete: `DELETE FROM cache_entries WHERE key = $1`,
		purge:  `DELETE FROM cache_entries WHERE expires_at <= $1`,
	},
}

// SQLBackend stores entries in the cache_entries table. Expiry is kept as
// unix milliseconds and checked on read.
type SQLBackend struct {
	db      *sql.DB
	dialect Dialect
	queries sqlQueries
	now     func() time.Time
}

var (
	_ Backend = (*SQLBackend)(nil)
	_ Purger  = (*SQLBackend)(nil)
)

// OpenSQLite opens (creating if needed) the database file at path and
// migrates it.
func OpenSQLite(path string) (*SQLBackend, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// Single writer; sqlite serializes writes anyway.
	db.SetMaxOpenConns(1)

	return newSQLBackend(db, DialectSQLite)
}

// OpenPostgres connects with the given DSN and migrates the schema.
func OpenPostgres(dsn string) (*SQLBackend, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return newSQLBackend(db, DialectPostgres)
}

func newSQLBackend(db *sql.DB, dialect Dialect) (*SQLBackend, error) {
	version, dirty, err := RunMigrations(db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	slog.Debug("Cache migrations applied", "dialect", string(dialect), "version", version, "dirty", dirty)

	return &SQLBackend{
		db:      db,
		dialect: dialect,
		queries: dialectQueries[dialect],
		now:     time.Now,
	}, nil
}

func (b *SQLBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value     []byte
		expiresAt int64
	)
	err := b.db.QueryRowContext(ctx, b.queries.get, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get key %s: %w", key, err)
	}

	if expiresAt <= b.now().UnixMilli() {
		return nil, false, nil
	}
	return value, true, nil
}

func (b *SQLBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	expiresAt := b.now().Add(ttl).UnixMilli()
	if _, err := b.db.ExecContext(ctx, b.queries.set, key, value, expiresAt); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

func (b *SQLBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx, b.queries.delete, key); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

func (b *SQLBackend) PurgeExpired(ctx context.Context) (int64, error) {
	result, err := b.db.ExecContext(ctx, b.queries.purge, b.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired entries: %w", err)
	}
	return result.RowsAffected()
}

func (b *SQLBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

func (b *SQLBackend) Close() error {
	return b.db.Close()
}
