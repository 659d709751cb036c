package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// ErrLocked is returned when another process already holds the catalog.
var ErrLocked = errors.New("catalog is in use by another process")

const schema = `
CREATE TABLE IF NOT EXISTS creators (
	creator_id TEXT PRIMARY KEY,
	name       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS creator_purchases (
	creator_id  TEXT NOT NULL,
	purchase_id TEXT NOT NULL,
	PRIMARY KEY (creator_id, purchase_id)
);

CREATE TABLE IF NOT EXISTS library_entries (
	purchase_id  TEXT PRIMARY KEY,
	creator_id   TEXT NOT NULL,
	product_name TEXT NOT NULL,
	download_url TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS library_entries_creator ON library_entries (creator_id);

CREATE TABLE IF NOT EXISTS product_details (
	purchase_id TEXT PRIMARY KEY,
	creator_id  TEXT NOT NULL,
	name        TEXT NOT NULL,
	content     TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS product_details_creator ON product_details (creator_id);
`

// DB is an open catalog database together with the file lock that keeps other processes out.
type DB struct {
	*sql.DB

	lock *flock.Flock
}

// Open locks path, opens the SQLite database and creates the schema if needed.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create catalog directory: %w", err)
		}
	}

	lock := flock.New(path + ".lock")

	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock catalog: %w", err)
	}

	if !locked {
		return nil, fmt.Errorf("%s: %w", path, ErrLocked)
	}

	db, err := InitDB(path)
	if err != nil {
		_ = lock.Unlock()

		return nil, err
	}

	return &DB{DB: db, lock: lock}, nil
}

// InitDB opens the SQLite database at path and creates the catalog tables if they don't exist.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to create catalog schema: %w", err)
	}

	return db, nil
}

// Close closes the database and releases the file lock.
func (d *DB) Close() error {
	return errors.Join(d.DB.Close(), d.lock.Unlock())
}
