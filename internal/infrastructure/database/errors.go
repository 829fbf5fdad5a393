package database

import "errors"

// Sentinel errors for database operations.
var (
	// ErrNoPath is returned when Open is called without a database path.
	ErrNoPath = errors.New("database: path is required")

	// ErrMigrationNotFound is returned when a recorded migration has no
	// matching file in the registered filesystem.
	ErrMigrationNotFound = errors.New("database: migration not found")

	// ErrNoDownSQL is returned when rolling back a migration without a
	// .down.sql file.
	ErrNoDownSQL = errors.New("database: migration has no down SQL")
)
