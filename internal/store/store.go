// Package store persists shop configuration and sessions in SQLite or Postgres.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps a database handle and the dialect it speaks.
type DB struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS shop_configs (
	shop TEXT PRIMARY KEY,
	enabled BOOLEAN NOT NULL DEFAULT FALSE,
	endpoint TEXT NOT NULL DEFAULT '',
	api_key TEXT NOT NULL DEFAULT '',
	carrier_service_id TEXT,
	sync_status TEXT NOT NULL DEFAULT 'pending',
	last_error TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	shop TEXT NOT NULL,
	access_token TEXT NOT NULL,
	scope TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_shop ON sessions(shop)`,
}

// Open connects to the database and creates the schema if needed.
// driver is "sqlite3" or "postgres".
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}
	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %s database: %w", driver, err)
	}

	d := &DB{db: db, driver: driver, now: func() time.Time { return time.Now().UTC() }}
	if err := d.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) migrate(ctx context.Context) error {
	for _, q := range schema {
		if _, err := d.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database handle.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks the connection.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Forget deletes every session and the configuration of shop.
func (d *DB) Forget(ctx context.Context, shop string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("forgetting shop %s: %w", shop, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM sessions WHERE shop = ?`), shop); err != nil {
		return fmt.Errorf("deleting sessions of %s: %w", shop, err)
	}
	if _, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM shop_configs WHERE shop = ?`), shop); err != nil {
		return fmt.Errorf("deleting config of %s: %w", shop, err)
	}
	return tx.Commit()
}

// rebind rewrites ? placeholders to $n for Postgres.
func (d *DB) rebind(query string) string {
	if d.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
