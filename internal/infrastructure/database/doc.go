// Package database provides SQLite connectivity for the access gateway.
//
// This package manages:
//   - Database connection with WAL mode for concurrent reads
//   - Versioned schema migrations with per-migration transactions
//   - Connection lifecycle and health checks
//
// The database holds the audit trail and the state of simulated terminals.
// Real terminals keep their own users and attendance; nothing read from a
// device is cached here.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration files live in the top-level migrations package and are named
// YYYYMMDD_HHMMSS_description.up.sql with a matching .down.sql.
package database
