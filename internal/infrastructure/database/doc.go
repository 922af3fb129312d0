// Package database provides SQLite connectivity for coolpanel's durable state.
//
// This package manages:
//   - The database connection with WAL mode and a busy timeout
//   - Forward-only schema migrations embedded in the binary
//   - Transaction helpers used by the settings store
//
// The pool is limited to a single connection. Every write from the render
// loop and the control listener is therefore serialised by SQLite itself.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql and live in
// the top-level migrations package. A matching .down.sql is kept alongside for
// manual rollback.
package database
