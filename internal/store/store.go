package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// SchemaVersion is the user_version schema.sql stamps on a database.
const SchemaVersion = 1

// ErrNewerSchema is returned by Open for a database written by a newer
// release. Its rows may not decode, so it is refused rather than read.
var ErrNewerSchema = errors.New("database schema is newer than this release")

// Store is the entity set registry on a single SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens the registry at path, creating the file and its tables when
// missing. Connections run in WAL mode with synchronous=NORMAL, a five
// second busy timeout and foreign keys on.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// One connection: SQLite has a single writer and the pragmas are
	// per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initialize(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func dsn(path string) string {
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_synchronous", "NORMAL")
	q.Set("_busy_timeout", "5000")
	q.Set("_foreign_keys", "on")
	return "file:" + path + "?" + q.Encode()
}

// initialize refuses newer databases and applies schema.sql, which only
// creates what is missing.
func initialize(db *sql.DB) error {
	version, err := pragma(db, "user_version")
	if err != nil {
		return err
	}
	var v int
	if _, err := fmt.Sscan(version, &v); err != nil {
		return fmt.Errorf("read user_version %q: %w", version, err)
	}
	if v > SchemaVersion {
		return fmt.Errorf("%w: version %d, expected at most %d", ErrNewerSchema, v, SchemaVersion)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// pragma reads one pragma value as text.
func pragma(db *sql.DB, name string) (string, error) {
	var value string
	if err := db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return value, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
