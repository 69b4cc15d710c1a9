package beets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/holms/mpdstats/internal/core"
	"github.com/holms/mpdstats/internal/ports"

	_ "modernc.org/sqlite"
)

// Attribute keys written by the tracker.
const (
	KeyPlayCount  = "play_count"
	KeySkipCount  = "skip_count"
	KeyRating     = "rating"
	KeyLastPlayed = "last_played"
)

// Catalog reads and writes listening statistics in a beets library.db.
type Catalog struct {
	db *sql.DB
}

// Open opens the library at path. Tables are only created when missing so
// an existing beets schema is left alone.
func Open(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("library path is required")
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	c := &Catalog{db: db}
	if err := c.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

// Close releases the database handle.
func (c *Catalog) Close() error {
	return c.db.Close()
}

func (c *Catalog) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS items (
  id INTEGER PRIMARY KEY,
  path BLOB
);
CREATE TABLE IF NOT EXISTS item_attributes (
  id INTEGER PRIMARY KEY,
  entity_id INTEGER,
  key TEXT,
  value TEXT,
  UNIQUE(entity_id, key) ON CONFLICT REPLACE
);
`
	if _, err := c.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// FindByPath returns the item stored at path. beets keeps paths as raw
// bytes, so the comparison is byte-exact.
func (c *Catalog) FindByPath(ctx context.Context, path string) (ports.Item, error) {
	var id int64
	var stored []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT id, path FROM items WHERE path = ? OR path = ? LIMIT 1`,
		[]byte(path), path,
	).Scan(&id, &stored)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find item: %w", err)
	}

	attrs, err := c.attributes(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Item{catalog: c, id: id, path: string(stored), attrs: attrs, dirty: map[string]bool{}}, nil
}

// Add inserts a bare item and returns its id.
func (c *Catalog) Add(ctx context.Context, path string) (int64, error) {
	res, err := c.db.ExecContext(ctx, `INSERT INTO items (path) VALUES (?)`, []byte(path))
	if err != nil {
		return 0, fmt.Errorf("add item: %w", err)
	}
	return res.LastInsertId()
}

func (c *Catalog) attributes(ctx context.Context, id int64) (map[string]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT key, value FROM item_attributes WHERE entity_id = ? AND key IN (?, ?, ?, ?)`,
		id, KeyPlayCount, KeySkipCount, KeyRating, KeyLastPlayed,
	)
	if err != nil {
		return nil, fmt.Errorf("load attributes: %w", err)
	}
	defer rows.Close()

	attrs := map[string]string{}
	for rows.Next() {
		var key string
		var value sql.NullString
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan attribute: %w", err)
		}
		if value.Valid {
			attrs[key] = value.String
		}
	}
	return attrs, rows.Err()
}

func (c *Catalog) store(ctx context.Context, id int64, values map[string]string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	const stmt = `
INSERT INTO item_attributes (entity_id, key, value) VALUES (?, ?, ?)
ON CONFLICT(entity_id, key) DO UPDATE SET value=excluded.value;
`
	for key, value := range values {
		if _, err := tx.ExecContext(ctx, stmt, id, key, value); err != nil {
			return fmt.Errorf("store %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
