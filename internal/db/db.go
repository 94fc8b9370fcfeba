// Package db opens the corridor survey database and manages its schema
// migrations.
package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// DB wraps the shared sqlite handle used by the run and tower stores.
type DB struct {
	*sql.DB
}

// connPragmas reach every pooled connection through the DSN. journal_mode
// is persistent but the rest are per-connection, so they cannot be set
// with a one-off Exec.
var connPragmas = []string{
	"_pragma=journal_mode(WAL)",
	"_pragma=busy_timeout(5000)",
	"_pragma=synchronous(NORMAL)",
	"_pragma=temp_store(MEMORY)",
	"_pragma=foreign_keys(ON)",
}

// NewDB opens the database at path, creating the file if missing. Schema
// setup is separate; see MigrateUp.
func NewDB(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?%s", path, strings.Join(connPragmas, "&"))
	sdb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := sdb.Ping(); err != nil {
		sdb.Close()
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	return &DB{sdb}, nil
}
