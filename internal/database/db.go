package database

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

var db *sql.DB

// schema holds the full database schema. The database only persists TLS
// certificate material and the locks that coordinate ACME operations, so the
// schema is small enough to keep inline instead of shipping migration files
// next to the binary.
const schema = `
CREATE TABLE IF NOT EXISTS certificates (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS cert_locks (
	key         TEXT PRIMARY KEY,
	acquired_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Init opens the database with WAL mode and applies the schema
func Init(dbPath string) error {
	var err error

	// Ensure the directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err = sql.Open("sqlite3", dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	log.Println("Database initialized successfully")
	return nil
}

// GetDB returns the database instance
func GetDB() *sql.DB {
	return db
}

// Close closes the database connection
func Close() error {
	if db != nil {
		return db.Close()
	}
	return nil
}

// HealthCheck verifies the database connection is working. An unopened
// database is not a failure: it only backs certificate storage, which is not
// in use on plain-HTTP deployments.
func HealthCheck() error {
	if db == nil {
		return nil
	}
	return db.Ping()
}
