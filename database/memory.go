package database

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// MemoryPath selects a throwaway in-memory database
const MemoryPath = ":memory:"

//go:embed migrations/*.sql
var migrationFiles embed.FS

// OpenInMemory opens a private SQLite database and applies every embedded migration in name order
func OpenInMemory() (*sqlx.DB, error) {
	dbConn, err := sqlx.Open("sqlite3", "file::memory:?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// each connection to :memory: is its own database
	dbConn.SetMaxOpenConns(1)

	if err := ApplyEmbeddedMigrations(dbConn); err != nil {
		dbConn.Close()
		return nil, err
	}
	return dbConn, nil
}

// ApplyEmbeddedMigrations runs the bundled .sql files against dbConn
func ApplyEmbeddedMigrations(dbConn *sqlx.DB) error {
	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		body, err := migrationFiles.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := dbConn.Exec(string(body)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}
