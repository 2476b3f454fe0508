// Package migration applies versioned SQL files to a SQLite database.
//
// Files are read from an fs.FS (normally an embed.FS compiled into the
// binary) and must be named {version}_{description}.sql, for example
// "001_initial_schema.sql". Each file runs inside its own transaction and is
// recorded in the schema_migrations table together with its checksum, so a
// file edited after it was applied is reported instead of silently skipped.
//
// Example usage:
//
//	manager := migration.NewManager(migration.NewScanner(files, "migrations"), migration.NewExecutor(db), logger)
//	if err := manager.Run(ctx); err != nil {
//		return err
//	}
package migration
