// Package database provides SQLite connectivity for the mixer service.
//
// It manages:
//   - The connection, with WAL mode and a busy timeout for file databases
//   - In-memory databases (MemoryPath) for tests and ephemeral runs
//   - Schema migrations read from any fs.FS through a Source
//
// SQLite allows a single writer, so the pool is limited to one connection.
// Database files are created with 0600 permissions.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.Source); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive: every .up.sql has a matching .down.sql and new
// columns are nullable or carry a default.
package database
