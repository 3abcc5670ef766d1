package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver
)

const (
	currentSchemaVersion = 1
)

// Database is the project metadata store: a schema-flexible
// collection/document/field store persisted in a single SQLite file.
// All reads and writes go through scoped sessions (see WithSession).
type Database struct {
	db *sql.DB

	mu  sync.Mutex
	cur *Session
}

// Open opens or creates the metadata database at the given path,
// applies migrations and seeds the built-in collections and tags.
func Open(path string) (*Database, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_timeout=5000&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single writer; sessions are also
	// serialized on one connection so nesting can share a transaction.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	d := &Database{db: db}

	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	if err := d.seedBuiltins(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed builtin schema: %w", err)
	}

	return d, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// CheckIntegrity runs PRAGMA integrity_check on the database
func (d *Database) CheckIntegrity() error {
	var result string
	err := d.db.QueryRow("PRAGMA integrity_check").Scan(&result)
	if err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}

	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}

	return nil
}

// SQLiteVersion returns the SQLite version string
func SQLiteVersion() string {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return ""
	}
	defer db.Close()

	var version string
	if err := db.QueryRow("SELECT sqlite_version()").Scan(&version); err != nil {
		return ""
	}
	return version
}

// migrate applies database migrations
func (d *Database) migrate() error {
	version, err := d.getSchemaVersion()
	if err != nil {
		return err
	}

	if version >= currentSchemaVersion {
		return nil
	}

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if version < 1 {
		if _, err := tx.Exec(schemaV1); err != nil {
			return fmt.Errorf("failed to apply schema v1: %w", err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", 1); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
	}

	// Future migrations would go here:
	// if version < 2 { ... }

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	return nil
}

// getSchemaVersion returns the current schema version
func (d *Database) getSchemaVersion() (int, error) {
	var exists int
	err := d.db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&exists)
	if err != nil {
		return 0, err
	}

	if exists == 0 {
		return 0, nil
	}

	var version int
	err = d.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, err
	}

	return version, nil
}

// seedBuiltins declares the built-in collections and tags. Idempotent:
// existing declarations are left untouched, so user edits to visibility
// survive re-opening the project.
func (d *Database) seedBuiltins() error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, coll := range builtinCollections {
		if _, err := tx.Exec("INSERT OR IGNORE INTO collections (name) VALUES (?)", coll); err != nil {
			return fmt.Errorf("failed to seed collection %s: %w", coll, err)
		}
	}

	for _, f := range builtinFields() {
		var def sql.NullString
		if f.Default != nil {
			raw, err := json.Marshal(Serialize(f.Type, f.Default))
			if err != nil {
				return fmt.Errorf("failed to serialize default for %s.%s: %w", f.Collection, f.Name, err)
			}
			def = sql.NullString{String: string(raw), Valid: true}
		}
		_, err := tx.Exec(`
			INSERT OR IGNORE INTO fields
				(collection, name, type, description, unit, default_value, visibility, origin)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, f.Collection, f.Name, string(f.Type), f.Description, f.Unit, def, f.Visibility, f.Origin)
		if err != nil {
			return fmt.Errorf("failed to seed field %s.%s: %w", f.Collection, f.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit builtin seed: %w", err)
	}

	return nil
}
