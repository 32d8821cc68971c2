// Package catalog stores rasters inside a single SQLite container file, the
// database flavour of an output workspace.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a raster name is not in the catalog.
var ErrNotFound = errors.New("raster not found in catalog")

const schema = `
CREATE TABLE IF NOT EXISTS rasters (
	name       TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	payload    BLOB NOT NULL,
	created_at TIMESTAMP NOT NULL
)`

// Catalog is an open raster container.
type Catalog struct {
	db   *sql.DB
	path string
}

// Open opens or creates the container at path.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping catalog: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create catalog schema: %w", err)
	}
	return &Catalog{db: db, path: path}, nil
}

func (c *Catalog) Path() string { return c.path }

// Put stores payload under name, replacing any raster of the same name.
func (c *Catalog) Put(ctx context.Context, name, source string, payload []byte) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO rasters (name, source, payload, created_at) VALUES (?, ?, ?, ?)`,
		name, source, payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to store raster %s: %w", name, err)
	}
	return nil
}

// Get returns the stored payload of name.
func (c *Catalog) Get(ctx context.Context, name string) ([]byte, error) {
	var payload []byte
	err := c.db.QueryRowContext(ctx, `SELECT payload FROM rasters WHERE name = ?`, name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load raster %s: %w", name, err)
	}
	return payload, nil
}

// Delete removes name. Deleting a missing raster returns ErrNotFound.
func (c *Catalog) Delete(ctx context.Context, name string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM rasters WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete raster %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

// Names lists stored rasters in name order.
func (c *Catalog) Names(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT name FROM rasters ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rasters: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (c *Catalog) Close() error {
	return c.db.Close()
}
