package ledger

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - initial revisions table
// 1 - immutability triggers on revisions
const currentSchemaVersion = 1

// Ledger is the SQLite-backed revision log.
type Ledger struct {
	db *sql.DB
}

// Open creates or opens the ledger database at path. ":memory:" gives a
// private in-memory ledger, which tests use.
//
// The database runs in WAL mode with NORMAL synchronous writes, a 5s busy
// timeout and foreign keys on. The pool is capped at one connection since
// SQLite admits a single writer.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect ledger: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Ledger{db: db}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// DB exposes the connection so derived projections (the search index) can
// keep their tables in the same file.
func (l *Ledger) DB() *sql.DB {
	return l.db
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return runMigrations(db)
}

func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// migrateToV1 makes committed revisions immutable at the storage level.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TRIGGER IF NOT EXISTS revisions_no_update
		BEFORE UPDATE ON revisions
		BEGIN
			SELECT RAISE(ABORT, 'revisions are immutable');
		END;
		CREATE TRIGGER IF NOT EXISTS revisions_no_delete
		BEFORE DELETE ON revisions
		BEGIN
			SELECT RAISE(ABORT, 'revisions are immutable');
		END;
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}
